// Package gate runs audit work on a bounded worker pool behind a shared
// circuit breaker, and bounds concurrent calls to constrained external
// services such as the embedding backend.
//
// # Admission
//
// A submission is rejected with *audit.CircuitOpenError while the breaker is
// OPEN and with ErrGateClosed after Shutdown. Admitted tasks go to a bounded
// queue drained by a fixed number of workers. When the queue is full the task
// runs on the submitting goroutine instead, so no admitted task is ever
// dropped.
//
// # Outcomes
//
// A task that returns an error or panics counts as a failure for the breaker
// and the gate statistics. Panics are converted to errors and delivered
// through the task's Future.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"mercator-hq/auditor/pkg/audit"
)

// ErrGateClosed is returned for submissions after Shutdown.
var ErrGateClosed = errors.New("execution gate is shut down")

// Config controls pool size, breaker thresholds and the external semaphore.
type Config struct {
	// Workers is the number of pool goroutines.
	// Default: 4
	Workers int `yaml:"workers"`

	// QueueSize bounds pending tasks before caller-runs kicks in. A negative
	// value disables the queue, so every task a parked worker does not take
	// runs on the caller.
	// Default: 64
	QueueSize int `yaml:"queue_size"`

	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold"`

	// RecoveryTimeout is how long the breaker stays open before a probe.
	// Default: 30s
	RecoveryTimeout time.Duration `yaml:"recovery_timeout"`

	// SlowTaskThreshold marks tasks running longer as slow in the statistics.
	// Default: 10s
	SlowTaskThreshold time.Duration `yaml:"slow_task_threshold"`

	// ExternalConcurrency bounds concurrent CallExternal invocations.
	// Default: 4
	ExternalConcurrency int `yaml:"external_concurrency"`
}

// DefaultConfig returns the default gate configuration.
func DefaultConfig() Config {
	return Config{
		Workers:             4,
		QueueSize:           64,
		FailureThreshold:    5,
		RecoveryTimeout:     30 * time.Second,
		SlowTaskThreshold:   10 * time.Second,
		ExternalConcurrency: 4,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	switch {
	case c.QueueSize == 0:
		c.QueueSize = d.QueueSize
	case c.QueueSize < 0:
		c.QueueSize = 0
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = d.RecoveryTimeout
	}
	if c.SlowTaskThreshold <= 0 {
		c.SlowTaskThreshold = d.SlowTaskThreshold
	}
	if c.ExternalConcurrency <= 0 {
		c.ExternalConcurrency = d.ExternalConcurrency
	}
}

// Recorder receives gate measurements. The Prometheus implementation lives in
// pkg/telemetry/metrics.
type Recorder interface {
	ObserveTask(outcome string, duration time.Duration)
	ObserveExternal(service, outcome string, duration time.Duration)
	TaskRejected(reason string)
	CallerRan()
	SetBreakerState(state string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTask(string, time.Duration)             {}
func (nopRecorder) ObserveExternal(string, string, time.Duration) {}
func (nopRecorder) TaskRejected(string)                           {}
func (nopRecorder) CallerRan()                                    {}
func (nopRecorder) SetBreakerState(string)                        {}

// Option configures a Gate.
type Option func(*Gate)

// WithRecorder exports measurements to r.
func WithRecorder(r Recorder) Option {
	return func(g *Gate) { g.recorder = r }
}

// WithClock replaces the breaker clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// Gate is the execution gate. Create it with New and release it with
// Shutdown.
type Gate struct {
	config   Config
	tasks    chan func()
	breaker  *Breaker
	external *semaphore.Weighted
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	executed   atomic.Int64
	failed     atomic.Int64
	slow       atomic.Int64
	rejected   atomic.Int64
	callerRuns atomic.Int64
	totalNanos atomic.Int64
}

// New starts a gate with config.Workers workers.
func New(config Config, opts ...Option) *Gate {
	config.applyDefaults()
	g := &Gate{
		config:   config,
		tasks:    make(chan func(), config.QueueSize),
		external: semaphore.NewWeighted(int64(config.ExternalConcurrency)),
		recorder: nopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "gate")

	g.breaker = NewBreaker(config.FailureThreshold, config.RecoveryTimeout, g.now)
	g.breaker.OnStateChange(func(from, to BreakerState) {
		g.logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
		g.recorder.SetBreakerState(to.String())
	})
	g.recorder.SetBreakerState(StateClosed.String())

	g.wg.Add(config.Workers)
	for i := 0; i < config.Workers; i++ {
		go g.worker()
	}
	g.logger.Info("execution gate started",
		"workers", config.Workers,
		"queue_size", config.QueueSize,
		"failure_threshold", config.FailureThreshold,
		"recovery_timeout", config.RecoveryTimeout,
	)
	return g
}

func (g *Gate) worker() {
	defer g.wg.Done()
	for task := range g.tasks {
		task()
	}
}

// Submit schedules fn on g. It returns an error only when the task was not
// admitted; the task's own outcome is delivered through the Future.
func Submit[T any](g *Gate, ctx context.Context, taskID string, fn func(ctx context.Context) (T, error)) (*Future[T], error) {
	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		g.rejected.Add(1)
		g.recorder.TaskRejected("closed")
		return nil, ErrGateClosed
	}
	if !g.breaker.Allow() {
		g.mu.RUnlock()
		g.rejected.Add(1)
		g.recorder.TaskRejected("circuit_open")
		g.logger.Warn("task rejected, circuit open", "task_id", taskID)
		return nil, &audit.CircuitOpenError{TaskID: taskID, RetryAfter: g.breaker.RetryAfter()}
	}

	f := newFuture[T](taskID)
	task := func() {
		var v T
		err := g.run(ctx, taskID, func(ctx context.Context) error {
			var err error
			v, err = fn(ctx)
			return err
		})
		f.complete(v, err)
	}

	select {
	case g.tasks <- task:
		g.mu.RUnlock()
	default:
		g.mu.RUnlock()
		g.callerRuns.Add(1)
		g.recorder.CallerRan()
		g.logger.Debug("queue full, running task on caller", "task_id", taskID)
		task()
	}
	return f, nil
}

// run executes fn, converting a panic into an error, and records the outcome.
func (g *Gate) run(ctx context.Context, taskID string, fn func(ctx context.Context) error) (err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %s panicked: %v", taskID, p)
			g.logger.Error("task panicked", "task_id", taskID, "panic", p)
		}
		d := time.Since(start)
		g.executed.Add(1)
		g.totalNanos.Add(int64(d))
		if d > g.config.SlowTaskThreshold {
			g.slow.Add(1)
			g.logger.Warn("slow task", "task_id", taskID, "duration", d)
		}
		outcome := "success"
		if err != nil {
			outcome = "failure"
			g.failed.Add(1)
		}
		g.breaker.Record(err == nil)
		g.recorder.ObserveTask(outcome, d)
	}()
	return fn(ctx)
}

// CallExternal runs fn once a slot of the external semaphore is free. Errors
// from fn are wrapped in *audit.UpstreamError naming service.
func (g *Gate) CallExternal(ctx context.Context, service string, fn func(ctx context.Context) error) error {
	if err := g.external.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for %s slot: %w", service, err)
	}
	defer g.external.Release(1)

	start := time.Now()
	err := fn(ctx)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	g.recorder.ObserveExternal(service, outcome, time.Since(start))
	if err == nil {
		return nil
	}
	var up *audit.UpstreamError
	if errors.As(err, &up) {
		return err
	}
	return audit.NewUpstreamError(service, err)
}

// Shutdown stops accepting work and waits for queued tasks to finish or ctx
// to be done. It is safe to call more than once.
func (g *Gate) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	if !g.closed {
		g.closed = true
		close(g.tasks)
	}
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		g.logger.Info("execution gate stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("gate shutdown: %w", ctx.Err())
	}
}

// Stats is a point-in-time view of gate activity.
type Stats struct {
	Executed            int64         `json:"executed"`
	Failed              int64         `json:"failed"`
	Rejected            int64         `json:"rejected"`
	CallerRuns          int64         `json:"caller_runs"`
	SlowTasks           int64         `json:"slow_tasks"`
	TotalExecTime       time.Duration `json:"total_exec_time"`
	AvgExecTime         time.Duration `json:"avg_exec_time"`
	QueueDepth          int           `json:"queue_depth"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	BreakerState        string        `json:"breaker_state"`
}

// Stats returns current statistics.
func (g *Gate) Stats() Stats {
	s := Stats{
		Executed:            g.executed.Load(),
		Failed:              g.failed.Load(),
		Rejected:            g.rejected.Load(),
		CallerRuns:          g.callerRuns.Load(),
		SlowTasks:           g.slow.Load(),
		TotalExecTime:       time.Duration(g.totalNanos.Load()),
		QueueDepth:          len(g.tasks),
		ConsecutiveFailures: g.breaker.Failures(),
		BreakerState:        g.breaker.State().String(),
	}
	if s.Executed > 0 {
		s.AvgExecTime = s.TotalExecTime / time.Duration(s.Executed)
	}
	return s
}

// BreakerState returns the breaker's current state.
func (g *Gate) BreakerState() BreakerState {
	return g.breaker.State()
}
