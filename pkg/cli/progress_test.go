package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/auditor/pkg/audit"
)

func TestSimpleProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf)
	p.Start(4)
	p.Update(2)
	if !strings.Contains(buf.String(), "50.0% (2/4)") {
		t.Errorf("missing half-way render:\n%s", buf.String())
	}
	p.Finish()
	if !strings.Contains(buf.String(), "100.0% (4/4)") {
		t.Errorf("missing final render:\n%s", buf.String())
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("Finish should end the line")
	}
}

func TestSimpleProgress_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf)
	p.Start(0)
	p.Update(0)
	if buf.Len() != 0 {
		t.Errorf("expected no output for zero total, got %q", buf.String())
	}
}

func TestSimpleProgress_Error(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf)
	p.Error(errors.New("lost"))
	if !strings.Contains(buf.String(), "lost") {
		t.Errorf("got %q", buf.String())
	}
}

type recordingProgress struct {
	mu       sync.Mutex
	total    int64
	updates  []int64
	finished bool
	err      error
}

func (r *recordingProgress) Start(total int64) { r.mu.Lock(); r.total = total; r.mu.Unlock() }
func (r *recordingProgress) Update(n int64) {
	r.mu.Lock()
	r.updates = append(r.updates, n)
	r.mu.Unlock()
}
func (r *recordingProgress) Finish()         { r.mu.Lock(); r.finished = true; r.mu.Unlock() }
func (r *recordingProgress) Error(err error) { r.mu.Lock(); r.err = err; r.mu.Unlock() }

func TestWatchJob(t *testing.T) {
	states := []audit.Job{
		{ID: "j", Status: audit.JobRunning, TotalTasks: 3},
		{ID: "j", Status: audit.JobRunning, TotalTasks: 3, CompletedTasks: 1},
		{ID: "j", Status: audit.JobCompleted, TotalTasks: 3, CompletedTasks: 2, FailedTasks: 1},
	}
	calls := 0
	status := func(ctx context.Context, id string) (*audit.Job, error) {
		j := states[min(calls, len(states)-1)]
		calls++
		return &j, nil
	}
	p := &recordingProgress{}
	job, err := WatchJob(context.Background(), status, "j", time.Millisecond, p)
	if err != nil {
		t.Fatalf("WatchJob() error = %v", err)
	}
	if job.Status != audit.JobCompleted {
		t.Errorf("status = %s", job.Status)
	}
	if p.total != 3 || !p.finished {
		t.Errorf("total=%d finished=%v", p.total, p.finished)
	}
	want := []int64{0, 1, 3}
	if len(p.updates) != len(want) {
		t.Fatalf("updates = %v, want %v", p.updates, want)
	}
	for i := range want {
		if p.updates[i] != want[i] {
			t.Errorf("updates = %v, want %v", p.updates, want)
		}
	}
}

func TestWatchJob_StatusError(t *testing.T) {
	p := &recordingProgress{}
	status := func(ctx context.Context, id string) (*audit.Job, error) {
		return nil, audit.ErrNotFound
	}
	if _, err := WatchJob(context.Background(), status, "x", time.Millisecond, p); !errors.Is(err, audit.ErrNotFound) {
		t.Errorf("error = %v", err)
	}
	if !errors.Is(p.err, audit.ErrNotFound) {
		t.Errorf("reporter error = %v", p.err)
	}
}

func TestWatchJob_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	status := func(ctx context.Context, id string) (*audit.Job, error) {
		return &audit.Job{ID: id, Status: audit.JobRunning, TotalTasks: 1}, nil
	}
	_, err := WatchJob(ctx, status, "j", 5*time.Millisecond, &recordingProgress{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}
