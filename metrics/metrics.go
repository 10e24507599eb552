// Package metrics provides Prometheus metrics for the HTTP server and the
// enrichment pipeline:
//   - http_request_total, http_request_duration_seconds, http_request_in_flight
//   - inference_backend_attempts_total: one per backend call, by outcome
//   - medication_matches_total: resolved mentions by match type
//   - enrichment_degraded_total: degraded lookups by reason
//   - interaction_warnings_total: reported warnings by severity
//
// All metrics are registered with the Prometheus default registry during
// package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 15, 60},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~5 minutes)",
		},
	)

	BackendAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_backend_attempts_total",
			Help: "Inference backend calls by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	BackendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_backend_duration_seconds",
			Help:    "Inference backend call latency",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"backend"},
	)

	MedicationMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medication_matches_total",
			Help: "Resolved medication mentions by match type",
		},
		[]string{"match_type"},
	)

	EnrichmentDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_degraded_total",
			Help: "Degraded enrichment lookups by reason",
		},
		[]string{"reason"},
	)

	InteractionWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interaction_warnings_total",
			Help: "Reported drug interaction warnings by severity",
		},
		[]string{"severity"},
	)

	SnapshotRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snapshot_records",
			Help: "Rows held by the loaded dataset snapshot",
		},
		[]string{"dataset"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(BackendAttempts)
	prometheus.MustRegister(BackendDuration)
	prometheus.MustRegister(MedicationMatches)
	prometheus.MustRegister(EnrichmentDegraded)
	prometheus.MustRegister(InteractionWarnings)
	prometheus.MustRegister(SnapshotRecords)
}
