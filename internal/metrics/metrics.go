package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runbox_executions_total",
			Help: "Completed executions by language and outcome",
		},
		[]string{"language", "outcome"},
	)

	ExecutionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runbox_execution_errors_total",
			Help: "Submissions that failed before producing a result",
		},
		[]string{"language", "stage"}, // stage: "provision", "stage", "run"
	)

	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runbox_phase_duration_seconds",
			Help:    "Duration of each pipeline phase",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"language", "phase"}, // phase: "provision", "stage", "run", "cleanup"
	)

	LiveEnvironments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runbox_live_environments",
			Help: "Execution environments created and not yet destroyed",
		},
	)

	CleanupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runbox_cleanup_failures_total",
			Help: "Environments whose destroy call failed",
		},
	)

	AdmissionRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runbox_admission_rejections_total",
			Help: "Submissions rejected because every execution slot was busy",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runbox_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)
