package metrics

import "github.com/prometheus/client_golang/prometheus"

var breakerStates = []string{"CLOSED", "OPEN", "HALF_OPEN"}

// GateMetrics tracks the execution gate.
type GateMetrics struct {
	tasks            *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	rejections       *prometheus.CounterVec
	callerRuns       prometheus.Counter
	breaker          *prometheus.GaugeVec
	external         *prometheus.CounterVec
	externalDuration *prometheus.HistogramVec
}

// NewGateMetrics creates and registers the gate metrics.
func NewGateMetrics(cfg Config, registry *prometheus.Registry) *GateMetrics {
	gm := &GateMetrics{
		tasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "gate",
				Name:      "tasks_total",
				Help:      "Tasks executed by the gate",
			},
			[]string{"outcome"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "gate",
				Name:      "task_duration_seconds",
				Help:      "Duration of gate tasks in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"outcome"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "gate",
				Name:      "rejections_total",
				Help:      "Submissions refused by the gate",
			},
			[]string{"reason"},
		),
		callerRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "gate",
				Name:      "caller_runs_total",
				Help:      "Tasks run on the submitting goroutine because the queue was full",
			},
		),
		breaker: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "gate",
				Name:      "breaker_state",
				Help:      "Circuit breaker state (1 for the current state)",
			},
			[]string{"state"},
		),
		external: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "gate",
				Name:      "external_calls_total",
				Help:      "Calls to external services through the gate semaphore",
			},
			[]string{"service", "outcome"},
		),
		externalDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "gate",
				Name:      "external_duration_seconds",
				Help:      "Duration of external service calls in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"service"},
		),
	}
	registry.MustRegister(
		gm.tasks,
		gm.taskDuration,
		gm.rejections,
		gm.callerRuns,
		gm.breaker,
		gm.external,
		gm.externalDuration,
	)
	return gm
}
