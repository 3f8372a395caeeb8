package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mercator-hq/auditor/pkg/audit"
)

// MemoryStore keeps jobs and results in process memory. Job records are
// mutated under per-job locks; the maps themselves under a shared RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]*audit.Job
	results map[string][]audit.AuditResult
	locks   *keyedMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*audit.Job),
		results: make(map[string][]audit.AuditResult),
		locks:   newKeyedMutex(),
	}
}

func (s *MemoryStore) CreateJob(_ context.Context, job *audit.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (*audit.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, audit.NewNotFoundError("job", id)
	}
	return job.Clone(), nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, id string, fn func(*audit.Job) error) (*audit.Job, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.RLock()
	current, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, audit.NewNotFoundError("job", id)
	}
	if current.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrTerminal, id, current.Status)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, ok := s.jobs[id]; !ok {
		s.mu.Unlock()
		return nil, audit.NewNotFoundError("job", id)
	}
	s.jobs[id] = next
	s.mu.Unlock()
	return next.Clone(), nil
}

func (s *MemoryStore) ListJobs(_ context.Context, q JobQuery) ([]*audit.Job, error) {
	s.mu.RLock()
	var jobs []*audit.Job
	for _, j := range s.jobs {
		if q.Status != "" && j.Status != q.Status {
			continue
		}
		jobs = append(jobs, j.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(a, b int) bool {
		if jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].ID < jobs[b].ID
		}
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})
	if q.Offset >= len(jobs) {
		return []*audit.Job{}, nil
	}
	jobs = jobs[q.Offset:]
	if len(jobs) > q.limit() {
		jobs = jobs[:q.limit()]
	}
	return jobs, nil
}

func (s *MemoryStore) SaveResults(_ context.Context, results ...audit.AuditResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		if _, ok := s.jobs[r.JobID]; !ok {
			return audit.NewNotFoundError("job", r.JobID)
		}
	}
	for _, r := range results {
		s.results[r.JobID] = append(s.results[r.JobID], cloneResult(r))
	}
	return nil
}

func (s *MemoryStore) ListResults(_ context.Context, jobID string) ([]audit.AuditResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[jobID]; !ok {
		return nil, audit.NewNotFoundError("job", jobID)
	}
	stored := s.results[jobID]
	out := make([]audit.AuditResult, len(stored))
	for i, r := range stored {
		out[i] = cloneResult(r)
	}
	return out, nil
}

func (s *MemoryStore) DeleteJobsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, j := range s.jobs {
		if !j.Status.IsTerminal() || j.EndTime == nil || !j.EndTime.Before(cutoff) {
			continue
		}
		delete(s.jobs, id)
		delete(s.results, id)
		n++
	}
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }
