package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/seaward-systems/fleetgate/common/httputil"
	"github.com/seaward-systems/fleetgate/common/logging"
	"github.com/seaward-systems/fleetgate/gate/internal/blobstore"
	"github.com/seaward-systems/fleetgate/gate/internal/metrics"
	"github.com/seaward-systems/fleetgate/gate/internal/models"
	"github.com/seaward-systems/fleetgate/gate/internal/repository"
)

// ListFiles handles GET /api/v1/files: the signed file-listing request.
// Only pre-registered, active devices get a listing.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q := r.URL.Query()
	deviceID := q.Get("device_id")
	timestamp := q.Get("timestamp")
	signature := q.Get("signature")
	if deviceID == "" || timestamp == "" || signature == "" {
		httputil.WriteError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}

	device, err := h.repo.GetDevice(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			httputil.WriteError(w, http.StatusForbidden, "Device not registered")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to look up device")
		return
	}
	if !device.Active {
		httputil.WriteError(w, http.StatusForbidden, "Device is inactive")
		return
	}

	if !h.signer.Verify(deviceID, timestamp, signature) {
		httputil.WriteError(w, http.StatusForbidden, "Invalid signature")
		return
	}
	if !h.freshTimestamp(timestamp) {
		httputil.WriteError(w, http.StatusForbidden, "Request timestamp is too old")
		return
	}

	objects, err := h.store.List(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "file listing failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to list files")
		return
	}

	files := make([]models.FileInfo, 0, len(objects))
	for _, obj := range objects {
		files = append(files, models.FileInfo{
			FileKey:   obj.Key,
			Name:      obj.Name,
			Size:      obj.Size,
			UpdatedAt: obj.UpdatedAt,
			SHA256:    obj.SHA256,
		})
	}

	httputil.WriteJSON(w, http.StatusOK, models.ListFilesResponse{
		Files: files,
		Device: models.DeviceInfo{
			Name: device.Name,
			Type: device.Type,
		},
	})
}

// freshTimestamp reports whether ts falls within the configured signature
// age window. A zero window disables the check.
func (h *Handler) freshTimestamp(ts string) bool {
	if h.maxSignatureAge <= 0 {
		return true
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	age := time.Since(time.Unix(unix, 0))
	if age < 0 {
		age = -age
	}
	return age <= h.maxSignatureAge
}

// ServeFile handles GET /api/v1/files/{file_key}: grant redemption. The
// token authorizes exactly one retrieval of exactly one object within its
// lifetime.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	fileKey := strings.TrimPrefix(r.URL.Path, "/api/v1/files/")
	if fileKey == "" {
		httputil.WriteError(w, http.StatusBadRequest, "File key is required")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.WriteError(w, http.StatusForbidden, "Download token is required")
		return
	}

	deviceID, err := h.issuer.Redeem(r.Context(), fileKey, token)
	if err != nil {
		httputil.WriteError(w, http.StatusForbidden, "Invalid or expired download link")
		return
	}

	rc, info, err := h.store.Open(r.Context(), fileKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrObjectNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "File not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to open object",
			logging.FileKey(fileKey), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to open file")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name))
	w.Header().Set("X-Content-SHA256", info.SHA256)

	written, err := io.Copy(w, rc)
	if err != nil {
		// Headers are out; all we can do is log the broken stream.
		slog.WarnContext(r.Context(), "file stream aborted",
			logging.FileKey(fileKey), logging.DeviceID(deviceID),
			logging.Bytes(written), logging.Error(err))
		return
	}

	metrics.FilesServed.Inc()
	metrics.BytesServed.Add(float64(written))
	slog.InfoContext(r.Context(), "file served",
		logging.FileKey(fileKey), logging.DeviceID(deviceID), logging.Bytes(written))
}
