package limits

import (
	"math"
	"time"
)

// bucket is a token bucket. It is not safe for concurrent use; Limiter
// serialises access.
type bucket struct {
	capacity float64
	tokens   float64
	rate     float64 // tokens per second
	last     time.Time
}

func newBucket(capacity int, perMinute float64, now time.Time) *bucket {
	return &bucket{
		capacity: float64(capacity),
		tokens:   float64(capacity),
		rate:     perMinute / 60,
		last:     now,
	}
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.rate)
	b.last = now
}

// take consumes one token if available.
func (b *bucket) take(now time.Time) bool {
	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// wait is the time until one token is available.
func (b *bucket) wait() time.Duration {
	if b.tokens >= 1 || b.rate <= 0 {
		return 0
	}
	return time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
}

func (b *bucket) remaining() int {
	return int(math.Floor(b.tokens))
}
