package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
			// runs are paced, so jobs last minutes rather than milliseconds
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	DispatchMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_messages_total",
			Help: "Per-recipient outcomes by status",
		},
		[]string{"status"},
	)

	DispatchReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_reconnects_total",
			Help: "Transport reconnects triggered by a dropped session",
		},
	)

	DispatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_runs_total",
			Help: "Finished dispatch runs by terminal status",
		},
		[]string{"status"},
	)

	DispatchRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_run_duration_seconds",
			Help:    "Wall-clock duration of dispatch runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)
)
