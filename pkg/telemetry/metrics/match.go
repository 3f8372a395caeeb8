package metrics

import "github.com/prometheus/client_golang/prometheus"

// MatchMetrics tracks rule evaluations.
type MatchMetrics struct {
	evaluations *prometheus.CounterVec
	results     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMatchMetrics creates and registers the match metrics.
func NewMatchMetrics(cfg Config, registry *prometheus.Registry) *MatchMetrics {
	mm := &MatchMetrics{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "match",
			Name:      "evaluations_total",
			Help:      "Rule evaluations by rule type",
		}, []string{"rule_type"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "match",
			Name:      "results_total",
			Help:      "Match results produced by rule type",
		}, []string{"rule_type"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "match",
			Name:      "duration_seconds",
			Help:      "Duration of one rule evaluation in seconds",
			Buckets:   cfg.DurationBuckets,
		}, []string{"rule_type"}),
	}
	registry.MustRegister(mm.evaluations, mm.results, mm.duration)
	return mm
}
