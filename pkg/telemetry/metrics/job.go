package metrics

import "github.com/prometheus/client_golang/prometheus"

// JobMetrics tracks audit jobs and their documents.
type JobMetrics struct {
	created          prometheus.Counter
	finished         *prometheus.CounterVec
	running          prometheus.Gauge
	duration         *prometheus.HistogramVec
	documents        *prometheus.CounterVec
	documentDuration prometheus.Histogram
}

// NewJobMetrics creates and registers the job metrics.
func NewJobMetrics(cfg Config, registry *prometheus.Registry) *JobMetrics {
	jm := &JobMetrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "jobs_created_total",
			Help:      "Audit jobs created",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "jobs_finished_total",
			Help:      "Audit jobs that reached a terminal state",
		}, []string{"status"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "jobs_running",
			Help:      "Audit jobs created and not yet finished",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of audit jobs in seconds",
			Buckets:   cfg.DurationBuckets,
		}, []string{"status"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "documents_total",
			Help:      "Documents processed by audit jobs",
		}, []string{"outcome"}),
		documentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "document_duration_seconds",
			Help:      "Duration of one document through the pipeline in seconds",
			Buckets:   cfg.DurationBuckets,
		}),
	}
	registry.MustRegister(jm.created, jm.finished, jm.running, jm.duration, jm.documents, jm.documentDuration)
	return jm
}
