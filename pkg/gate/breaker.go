package gate

import (
	"sync"
	"time"
)

// BreakerState is the state of a circuit breaker.
type BreakerState int

const (
	// StateClosed admits every submission.
	StateClosed BreakerState = iota
	// StateOpen rejects submissions until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen admits a single probe whose outcome decides the next state.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker trips after a run of consecutive failures and recovers through a
// single half-open probe.
//
// # State Machine
//
//	CLOSED --(failures >= threshold)--> OPEN
//	OPEN --(recovery elapsed, next Allow)--> HALF_OPEN
//	HALF_OPEN --(probe succeeds)--> CLOSED
//	HALF_OPEN --(probe fails)--> OPEN
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	openedAt  time.Time
	probing   bool
	threshold int
	recovery  time.Duration
	now       func() time.Time
	onChange  func(from, to BreakerState)
}

// NewBreaker creates a closed breaker. A nil clock uses time.Now.
func NewBreaker(threshold int, recovery time.Duration, now func() time.Time) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{threshold: threshold, recovery: recovery, now: now}
}

// OnStateChange registers fn to be called on every transition. fn runs with
// the breaker lock held and must not call back into the breaker.
func (b *Breaker) OnStateChange(fn func(from, to BreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// Allow reports whether a submission may proceed. In OPEN it moves to
// HALF_OPEN once the recovery timeout has elapsed and admits that caller as
// the probe; while the probe is in flight every other caller is rejected.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.recovery {
			return false
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return true
	default:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
}

// Record reports the outcome of an admitted task.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.probing = false
			b.transition(StateClosed)
		}
		return
	}

	b.failures++
	switch b.state {
	case StateHalfOpen:
		b.probing = false
		b.trip()
	case StateClosed:
		if b.failures >= b.threshold {
			b.trip()
		}
	}
}

// RetryAfter returns how long until an open breaker admits a probe.
func (b *Breaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return 0
	}
	if d := b.recovery - b.now().Sub(b.openedAt); d > 0 {
		return d
	}
	return 0
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current run of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.transition(StateOpen)
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
