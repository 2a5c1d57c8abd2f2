package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsProcessedTotal, stageDurationSeconds, softTimeoutWarningsTotal, cleanupWarningsTotal)
}

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "transcription_jobs_processed_total",
		Help: "Total number of transcription jobs processed, labeled by terminal status.",
	},
	[]string{"status"}, // 'completed', 'failed', 'cancelled'
)

var stageDurationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "transcription_stage_duration_seconds",
		Help:    "Wall-clock duration of each pipeline stage.",
		Buckets: prometheus.ExponentialBuckets(0.1, 4, 10), // 100ms .. ~7h
	},
	[]string{"stage"}, // 'normalize', 'transcribe', 'format'
)

var softTimeoutWarningsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "transcription_soft_timeout_warnings_total",
		Help: "Jobs that exceeded the soft processing-time budget.",
	},
)

var cleanupWarningsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "transcription_cleanup_warnings_total",
		Help: "Best-effort artifact cleanup failures (logged, never escalated).",
	},
)

func IncJobProcessed(status string) {
	jobsProcessedTotal.WithLabelValues(norm(status)).Inc()
}

func ObserveStageDuration(stage string, seconds float64) {
	stageDurationSeconds.WithLabelValues(norm(stage)).Observe(seconds)
}

func IncSoftTimeoutWarning() { softTimeoutWarningsTotal.Inc() }

func IncCleanupWarning() { cleanupWarningsTotal.Inc() }
