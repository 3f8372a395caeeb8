package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"mercator-hq/auditor/pkg/audit"
)

// ProgressReporter renders job progress in document counts.
type ProgressReporter interface {
	Start(total int64)
	Update(current int64)
	Finish()
	Error(err error)
}

// SimpleProgress redraws a single terminal line with a bar, the percentage
// and the elapsed time.
type SimpleProgress struct {
	mu      sync.Mutex
	total   int64
	current int64
	started time.Time
	writer  io.Writer
}

// NewProgressReporter writes to w, or os.Stderr when w is nil.
func NewProgressReporter(w io.Writer) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &SimpleProgress{writer: w}
}

// Start resets the bar for total documents.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.current = 0
	p.started = time.Now()
	p.render()
}

// Update sets the number of processed documents.
func (p *SimpleProgress) Update(current int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = current
	p.render()
}

// Finish draws the full bar and ends the line.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = p.total
	p.render()
	fmt.Fprintln(p.writer)
}

// Error ends the line with err.
func (p *SimpleProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.writer, "\n%s %v\n", red("✗ Error:"), err)
}

func (p *SimpleProgress) render() {
	if p.total == 0 {
		return
	}
	percent := float64(p.current) / float64(p.total) * 100
	barWidth := 40
	filled := int(float64(barWidth) * percent / 100)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	elapsed := time.Since(p.started).Truncate(time.Second)
	fmt.Fprintf(p.writer, "\rDocuments: [%s] %.1f%% (%d/%d) %s",
		bar, percent, p.current, p.total, elapsed)
}

// StatusFunc returns the current state of a job.
type StatusFunc func(ctx context.Context, jobID string) (*audit.Job, error)

// WatchJob polls status every interval, reporting documents done to p,
// until the job is terminal or ctx is done.
func WatchJob(ctx context.Context, status StatusFunc, jobID string, interval time.Duration, p ProgressReporter) (*audit.Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	started := false
	for {
		job, err := status(ctx, jobID)
		if err != nil {
			p.Error(err)
			return nil, err
		}
		if !started {
			p.Start(int64(job.TotalTasks))
			started = true
		}
		p.Update(int64(job.CompletedTasks + job.FailedTasks))
		if job.Status.IsTerminal() {
			p.Finish()
			return job, nil
		}
		select {
		case <-ctx.Done():
			p.Error(ctx.Err())
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
