package gate

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestBreaker_Transitions(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(2, 10*time.Second, clock.Now)

	var transitions []string
	b.OnStateChange(func(from, to BreakerState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	b.Record(false)
	if b.State() != StateClosed {
		t.Fatalf("state after 1 failure = %s, want CLOSED", b.State())
	}
	b.Record(false)
	if b.State() != StateOpen {
		t.Fatalf("state after 2 failures = %s, want OPEN", b.State())
	}
	if b.Allow() {
		t.Error("Allow() = true while OPEN")
	}
	if got := b.RetryAfter(); got != 10*time.Second {
		t.Errorf("RetryAfter() = %v, want 10s", got)
	}

	clock.Advance(10 * time.Second)
	if !b.Allow() {
		t.Fatal("Allow() = false after recovery timeout")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %s, want HALF_OPEN", b.State())
	}
	if b.Allow() {
		t.Error("second probe admitted while first is in flight")
	}

	b.Record(false)
	if b.State() != StateOpen {
		t.Fatalf("state after failed probe = %s, want OPEN", b.State())
	}

	clock.Advance(10 * time.Second)
	if !b.Allow() {
		t.Fatal("probe not admitted after second recovery timeout")
	}
	b.Record(true)
	if b.State() != StateClosed {
		t.Fatalf("state after successful probe = %s, want CLOSED", b.State())
	}
	if b.Failures() != 0 {
		t.Errorf("Failures() = %d, want 0", b.Failures())
	}

	want := []string{
		"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->OPEN",
		"OPEN->HALF_OPEN", "HALF_OPEN->CLOSED",
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestBreaker_SuccessResetsFailureRun(t *testing.T) {
	b := NewBreaker(3, time.Second, nil)
	b.Record(false)
	b.Record(false)
	b.Record(true)
	b.Record(false)
	b.Record(false)
	if b.State() != StateClosed {
		t.Errorf("state = %s, want CLOSED since failures were not consecutive", b.State())
	}
}
