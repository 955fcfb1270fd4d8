package handlers

import (
	"net/http"

	"github.com/seaward-systems/fleetgate/common/httputil"
)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.List(r.Context()); err != nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "storage not ready")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Home is the service banner at "/".
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "running",
		"service": "fleetgate",
		"version": Version,
	})
}
