package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/seaward-systems/fleetgate/common/httputil"
	"github.com/seaward-systems/fleetgate/gate/internal/models"
	"github.com/seaward-systems/fleetgate/gate/internal/repository"
)

// authorized checks the admin bearer token. An unset token disables the
// whole admin surface rather than leaving it open.
func (h *Handler) authorized(r *http.Request) bool {
	if h.adminToken == "" {
		return false
	}
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

// Devices handles /api/v1/devices: POST registers a device, GET lists the
// registry. Both require the admin token.
func (h *Handler) Devices(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		httputil.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.createDevice(w, r)
	case http.MethodGet:
		h.listDevices(w, r)
	default:
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *Handler) createDevice(w http.ResponseWriter, r *http.Request) {
	var device models.Device
	if err := json.NewDecoder(r.Body).Decode(&device); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	defer r.Body.Close()

	if device.ID == "" || device.Name == "" {
		httputil.WriteError(w, http.StatusBadRequest, "Device id and name are required")
		return
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}

	if err := h.repo.CreateDevice(r.Context(), &device); err != nil {
		if errors.Is(err, repository.ErrDeviceExists) {
			httputil.WriteError(w, http.StatusConflict, "Device already registered")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to register device")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, device)
}

func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.repo.ListDevices(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to list devices")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// SecurityEvents handles GET /api/v1/events, the newest-first security
// event feed. Requires the admin token.
func (h *Handler) SecurityEvents(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		httputil.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			httputil.WriteError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = parsed
	}

	events, err := h.repo.ListSecurityEvents(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to list security events")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}
