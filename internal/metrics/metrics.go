// Package metrics exposes Prometheus counters and gauges for queue depth,
// job outcomes, and breaker state. No call-site for client_golang exists
// anywhere in the retrieved examples; this wiring follows the library's
// documented NewCounterVec/NewGaugeVec conventions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the worker process reports through.
type Metrics struct {
	JobsClaimed   *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobsByStatus  *prometheus.GaugeVec
	BreakerState  *prometheus.GaugeVec
	PipelineDuration *prometheus.HistogramVec
}

// New registers and returns a fresh Metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsClaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ares",
			Name:      "jobs_claimed_total",
			Help:      "Total number of jobs claimed by a worker.",
		}, []string{"worker_id"}),
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ares",
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs completed successfully.",
		}, []string{"worker_id"}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ares",
			Name:      "jobs_failed_total",
			Help:      "Total number of jobs that failed an attempt, retried or not.",
		}, []string{"worker_id", "retryable"}),
		JobsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ares",
			Name:      "jobs_by_status",
			Help:      "Current number of jobs in each status.",
		}, []string{"status"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ares",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
		PipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ares",
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of a full fetch-clean-extract-persist run.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"worker_id"}),
	}

	reg.MustRegister(m.JobsClaimed, m.JobsCompleted, m.JobsFailed, m.JobsByStatus, m.BreakerState, m.PipelineDuration)
	return m
}
