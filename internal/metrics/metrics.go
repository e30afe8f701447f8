package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "printconnect_jobs_total",
			Help: "Print jobs by terminal outcome",
		},
		[]string{"outcome"}, // printed_primary, printed_fallback, failed
	)

	ExecutorAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "printconnect_executor_attempts_total",
			Help: "Executor invocations by executor and result",
		},
		[]string{"executor", "result"}, // primary|fallback, ok|error
	)

	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "printconnect_batches_total",
			Help: "Dispatched batches by result",
		},
		[]string{"result"}, // success, failed
	)

	OTPRotationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "printconnect_otp_rotations_total",
			Help: "Number of one-time code rotations",
		},
	)

	AuthFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "printconnect_auth_failures_total",
			Help: "Submissions rejected for a wrong one-time code",
		},
	)

	// Buckets: 50ms .. ~100s, primary is bounded by its timeout
	ExecutorDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "printconnect_executor_duration_seconds",
			Help:    "Time spent in a print executor call",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"executor"},
	)
)

// ObserveExecutor records one executor call.
func ObserveExecutor(executor string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ExecutorAttemptsTotal.WithLabelValues(executor, result).Inc()
	ExecutorDurationSeconds.WithLabelValues(executor).Observe(elapsed.Seconds())
}
