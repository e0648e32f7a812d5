package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	BatchRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_runs_total",
			Help: "Total number of batch runs by status.",
		},
		[]string{"status"},
	)

	BatchRunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_run_duration_seconds",
			Help:    "Duration of batch runs in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)

	BatchesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_runs_active",
			Help: "Number of currently running batches.",
		},
	)

	DependencyErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_dependency_errors_total",
			Help: "Total number of batches aborted by dependency validation.",
		},
	)

	JobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_job_runs_total",
			Help: "Total number of job runs by status.",
		},
		[]string{"job", "status"},
	)

	JobRunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_job_run_duration_seconds",
			Help:    "Duration of a single job attempt including tests, in seconds.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"job", "status"},
	)

	JobRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_job_retries_total",
			Help: "Total number of job attempts retried after a fault.",
		},
		[]string{"job"},
	)

	JobsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_jobs_skipped_total",
			Help: "Total number of jobs skipped because they were still fresh.",
		},
		[]string{"job"},
	)
)

var registerOnce sync.Once

// Register registers all batch metrics with the default Prometheus
// registry. Later calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			BatchRunsTotal,
			BatchRunDurationSeconds,
			BatchesActive,
			DependencyErrorsTotal,
			JobRunsTotal,
			JobRunDurationSeconds,
			JobRetriesTotal,
			JobsSkippedTotal,
		)
	})
}
