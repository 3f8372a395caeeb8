package limits

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited is wrapped by *RateLimitError.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitError reports a rejected submission.
type RateLimitError struct {
	Key        string
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v for %s: %d jobs per minute, retry after %s",
		ErrRateLimited, e.Key, e.Limit, e.RetryAfter.Round(time.Millisecond))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Config controls job submission limits.
type Config struct {
	// Enabled turns limiting on.
	Enabled bool `yaml:"enabled"`

	// JobsPerMinute is the sustained submission rate per key.
	// Default: 60
	JobsPerMinute int `yaml:"jobs_per_minute"`

	// Burst is the number of submissions allowed back to back.
	// Default: JobsPerMinute
	Burst int `yaml:"burst"`

	// IdleTTL evicts buckets that have not been used for this long.
	// Default: 10m
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// DefaultConfig returns limiting disabled with the default rates.
func DefaultConfig() Config {
	return Config{JobsPerMinute: 60, IdleTTL: 10 * time.Minute}
}

func (c *Config) applyDefaults() {
	if c.JobsPerMinute <= 0 {
		c.JobsPerMinute = 60
	}
	if c.Burst <= 0 {
		c.Burst = c.JobsPerMinute
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 10 * time.Minute
	}
}

// Validate rejects negative values.
func (c Config) Validate() error {
	var errs []error
	if c.JobsPerMinute < 0 {
		errs = append(errs, errors.New("jobs_per_minute must not be negative"))
	}
	if c.Burst < 0 {
		errs = append(errs, errors.New("burst must not be negative"))
	}
	if c.IdleTTL < 0 {
		errs = append(errs, errors.New("idle_ttl must not be negative"))
	}
	return errors.Join(errs...)
}

// Decision is the outcome of Allow.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Err returns a *RateLimitError for a rejected decision and nil otherwise.
func (d Decision) Err(key string) error {
	if d.Allowed {
		return nil
	}
	return &RateLimitError{Key: key, Limit: d.Limit, RetryAfter: d.RetryAfter}
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

type entry struct {
	bucket   *bucket
	lastSeen time.Time
}

// Limiter holds one bucket per key.
type Limiter struct {
	config Config
	now    func() time.Time

	mu        sync.Mutex
	buckets   map[string]*entry
	lastSweep time.Time
}

// New creates a Limiter. Disabled configurations are still usable; every
// call to Allow then succeeds.
func New(config Config, opts ...Option) *Limiter {
	config.applyDefaults()
	l := &Limiter{config: config, now: time.Now, buckets: make(map[string]*entry)}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// Allow takes a token from key's bucket.
func (l *Limiter) Allow(key string) Decision {
	if !l.config.Enabled {
		return Decision{Allowed: true}
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now)

	e, ok := l.buckets[key]
	if !ok {
		e = &entry{bucket: newBucket(l.config.Burst, float64(l.config.JobsPerMinute), now)}
		l.buckets[key] = e
	}
	e.lastSeen = now

	d := Decision{Limit: l.config.JobsPerMinute}
	d.Allowed = e.bucket.take(now)
	d.Remaining = e.bucket.remaining()
	if !d.Allowed {
		d.RetryAfter = e.bucket.wait()
	}
	return d
}

// sweepLocked drops idle buckets at most once per IdleTTL.
func (l *Limiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.config.IdleTTL {
		return
	}
	for k, e := range l.buckets {
		if now.Sub(e.lastSeen) >= l.config.IdleTTL {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Enabled reports whether Allow can reject.
func (l *Limiter) Enabled() bool {
	return l.config.Enabled
}
