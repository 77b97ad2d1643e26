package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for DispatchTotal.
const (
	OutcomeOK      = "ok"
	OutcomeUnknown = "unknown_type"
	OutcomeFailed  = "failed"
)

// Type label values for keys that are not declared in the registry.
const (
	TypeUnknown    = "unknown"
	TypeUndeclared = "undeclared"
)

var (
	// Dispatch metrics
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debughawk_dispatch_total",
			Help: "Total number of dispatched envelopes",
		},
		[]string{"type", "path", "outcome"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "debughawk_dispatch_duration_seconds",
			Help:    "Duration of a dispatch call in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// Sandbox metrics
	SandboxErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debughawk_sandbox_errors_total",
			Help: "Total number of failed sandboxed module calls",
		},
		[]string{"stage"},
	)

	SandboxCompileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "debughawk_sandbox_compile_duration_seconds",
			Help:    "Duration of module compilation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Ingest metrics
	EnvelopesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debughawk_ingest_envelopes_total",
			Help: "Total number of envelopes received",
		},
		[]string{"source"},
	)

	EnvelopeBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debughawk_ingest_envelope_bytes_total",
			Help: "Total bytes of envelope data received over HTTP",
		},
	)

	RecordsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debughawk_records_published_total",
			Help: "Total number of records handed to the publisher",
		},
		[]string{"status"},
	)

	WorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "debughawk_workers_busy",
			Help: "Number of dispatch workers currently running",
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debughawk_rate_limit_hits_total",
			Help: "Total number of rejected rate-limited requests",
		},
	)
)
