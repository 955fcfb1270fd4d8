package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/seaward-systems/fleetgate/common/httputil"
	"github.com/seaward-systems/fleetgate/gate/internal/admission"
	"github.com/seaward-systems/fleetgate/gate/internal/models"
)

// RequestDownload handles POST /api/v1/request-download, the signed
// admission request. Denial reasons map onto distinct status codes so
// clients can tell policy denials from transient failures.
func (h *Handler) RequestDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	defer r.Body.Close()

	g, denial := h.pipeline.Admit(r.Context(), &req, httputil.GetClientIP(r), r.UserAgent())
	if denial != nil {
		httputil.WriteError(w, denialStatus(denial.Reason), denial.Message)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.DownloadResponse{
		DownloadURL: g.DownloadURL,
		ExpiresAt:   g.ExpiresAt,
	})
}

func denialStatus(reason admission.Reason) int {
	switch reason {
	case admission.ReasonMissingParameters:
		return http.StatusBadRequest
	case admission.ReasonLocation, admission.ReasonBadSignature, admission.ReasonStaleTimestamp:
		return http.StatusForbidden
	case admission.ReasonRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
