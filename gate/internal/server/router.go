package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seaward-systems/fleetgate/common/middleware"
	"github.com/seaward-systems/fleetgate/gate/internal/handlers"
)

// NewRouter constructs a ServeMux with the gate API routes registered.
// corsOrigins lists browser origins allowed to call the API; empty disables
// CORS handling.
func NewRouter(h *handlers.Handler, corsOrigins []string) http.Handler {
	mux := http.NewServeMux()

	// Device-facing API
	mux.HandleFunc("/api/v1/request-download", h.RequestDownload)
	mux.HandleFunc("/api/v1/files", h.ListFiles)
	mux.HandleFunc("/api/v1/files/", h.ServeFile)

	// Admin API
	mux.HandleFunc("/api/v1/devices", h.Devices)
	mux.HandleFunc("/api/v1/events", h.SecurityEvents)

	// Health endpoints and service banner
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)
	mux.HandleFunc("/", h.Home)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(middleware.RequestLogger(middleware.CORS(corsOrigins)(mux)))
}
