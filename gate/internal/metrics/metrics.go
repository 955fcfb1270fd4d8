package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Admission pipeline metrics
	AdmissionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetgate_admission_requests_total",
			Help: "Total download admission requests by outcome",
		},
		[]string{"outcome"},
	)

	RateLimitDenials = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetgate_rate_limit_denials_total",
			Help: "Total requests denied by the failure rate limiter",
		},
	)

	// Grant redemption metrics
	GrantsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetgate_grants_issued_total",
			Help: "Total retrieval grants issued",
		},
	)

	FilesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetgate_files_served_total",
			Help: "Total file retrievals served",
		},
	)

	BytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetgate_bytes_served_total",
			Help: "Total bytes of file content served",
		},
	)
)
