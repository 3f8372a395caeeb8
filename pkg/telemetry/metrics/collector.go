package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/auditor/pkg/audit"
)

// Config controls the Prometheus exporter.
type Config struct {
	// Enabled turns collection and the endpoint on.
	Enabled bool `yaml:"enabled"`

	// Address is the listen address of the metrics and health endpoint.
	// Default: ":9090"
	Address string `yaml:"address"`

	// Path is the metrics endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric.
	// Default: "auditor"
	Namespace string `yaml:"namespace"`

	// DurationBuckets are the histogram buckets in seconds.
	DurationBuckets []float64 `yaml:"duration_buckets"`
}

// Collector owns the audit metrics and the registry they live in.
type Collector struct {
	config   Config
	registry *prometheus.Registry

	gate  *GateMetrics
	jobs  *JobMetrics
	match *MatchMetrics
}

// NewCollector registers all metrics with registry. A nil registry gets a
// fresh one.
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "auditor"
	}
	if len(cfg.DurationBuckets) == 0 {
		// Rule evaluations take microseconds, whole jobs minutes.
		cfg.DurationBuckets = []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600}
	}
	return &Collector{
		config:   cfg,
		registry: registry,
		gate:     NewGateMetrics(cfg, registry),
		jobs:     NewJobMetrics(cfg, registry),
		match:    NewMatchMetrics(cfg, registry),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// ObserveTask records a finished gate task.
func (c *Collector) ObserveTask(outcome string, d time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.gate.tasks.WithLabelValues(outcome).Inc()
	c.gate.taskDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveExternal records a call through the external semaphore.
func (c *Collector) ObserveExternal(service, outcome string, d time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.gate.external.WithLabelValues(service, outcome).Inc()
	c.gate.externalDuration.WithLabelValues(service).Observe(d.Seconds())
}

// TaskRejected counts a refused submission.
func (c *Collector) TaskRejected(reason string) {
	if !c.config.Enabled {
		return
	}
	c.gate.rejections.WithLabelValues(reason).Inc()
}

// CallerRan counts a task run on the submitting goroutine.
func (c *Collector) CallerRan() {
	if !c.config.Enabled {
		return
	}
	c.gate.callerRuns.Inc()
}

// SetBreakerState sets the gauge of state to 1 and the others to 0.
func (c *Collector) SetBreakerState(state string) {
	if !c.config.Enabled {
		return
	}
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.gate.breaker.WithLabelValues(s).Set(v)
	}
}

// JobCreated counts a stored job.
func (c *Collector) JobCreated() {
	if !c.config.Enabled {
		return
	}
	c.jobs.created.Inc()
	c.jobs.running.Inc()
}

// JobFinished records a job reaching a terminal state.
func (c *Collector) JobFinished(status audit.JobStatus, d time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.jobs.finished.WithLabelValues(string(status)).Inc()
	c.jobs.duration.WithLabelValues(string(status)).Observe(d.Seconds())
	c.jobs.running.Dec()
}

// DocumentProcessed records one document of a job.
func (c *Collector) DocumentProcessed(outcome string, d time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.jobs.documents.WithLabelValues(outcome).Inc()
	c.jobs.documentDuration.Observe(d.Seconds())
}

// ObserveMatch records one rule evaluation.
func (c *Collector) ObserveMatch(ruleType audit.RuleType, results int, d time.Duration) {
	if !c.config.Enabled {
		return
	}
	t := string(ruleType)
	c.match.evaluations.WithLabelValues(t).Inc()
	c.match.results.WithLabelValues(t).Add(float64(results))
	c.match.duration.WithLabelValues(t).Observe(d.Seconds())
}
