package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flatbridge_jobs_submitted_total",
			Help: "Total number of ingestion jobs submitted, by kind.",
		},
		[]string{"kind"},
	)
	jobsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flatbridge_jobs_rejected_total",
			Help: "Total number of ingestion jobs rejected because the job queue was full.",
		},
		[]string{"kind"},
	)
	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flatbridge_jobs_finished_total",
			Help: "Total number of ingestion jobs that reached a terminal state, by kind and state.",
		},
		[]string{"kind", "state"},
	)
	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flatbridge_job_duration_seconds",
			Help:    "Wall time from job start to terminal state.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"kind", "state"},
	)
	recordsTransferredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flatbridge_records_transferred_total",
			Help: "Total number of records written by ingestion jobs, by kind.",
		},
		[]string{"kind"},
	)
	batchFlushesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flatbridge_import_batch_flushes_total",
			Help: "Total number of batch inserts executed by import jobs.",
		},
	)
	jobQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flatbridge_job_queue_depth",
			Help: "Number of submitted jobs waiting for a worker.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		jobsSubmittedTotal,
		jobsRejectedTotal,
		jobsFinishedTotal,
		jobDurationSeconds,
		recordsTransferredTotal,
		batchFlushesTotal,
		jobQueueDepth,
	)
}

func ObserveJobSubmitted(kind string) {
	jobsSubmittedTotal.WithLabelValues(kind).Inc()
}

func ObserveJobRejected(kind string) {
	jobsRejectedTotal.WithLabelValues(kind).Inc()
}

func ObserveJobFinished(kind, state string, records int64, elapsed time.Duration) {
	jobsFinishedTotal.WithLabelValues(kind, state).Inc()
	jobDurationSeconds.WithLabelValues(kind, state).Observe(elapsed.Seconds())
	if records > 0 {
		recordsTransferredTotal.WithLabelValues(kind).Add(float64(records))
	}
}

func ObserveBatchFlush() {
	batchFlushesTotal.Inc()
}

func SetJobQueueDepth(depth int) {
	if depth < 0 {
		depth = 0
	}
	jobQueueDepth.Set(float64(depth))
}
