package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(retentionDeletedTotal, retentionErrorsTotal) }

var retentionDeletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "retention_jobs_deleted_total",
		Help: "Jobs purged by the retention sweeper, labeled by terminal status.",
	},
	[]string{"status"},
)

var retentionErrorsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "retention_delete_errors_total",
		Help: "Per-job deletion failures during retention sweeps.",
	},
)

func IncRetentionDeleted(status string, n int) {
	retentionDeletedTotal.WithLabelValues(norm(status)).Add(float64(n))
}

func IncRetentionError() { retentionErrorsTotal.Inc() }
