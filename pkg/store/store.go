// Package store persists audit jobs and their results.
//
// # Backends
//
//   - Memory: process-local maps guarded by per-job locks (default)
//   - SQLite: embedded database via modernc.org/sqlite, for single-node use
//   - PostgreSQL: shared database via pgx, for deployments that keep results
//     beyond the life of one process
//
// Every backend returns copies: callers may mutate what they receive without
// affecting stored state. UpdateJob is the only way to mutate a job and is
// atomic per job.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/auditor/pkg/audit"
)

// ErrTerminal is returned by UpdateJob when the job is already COMPLETED or
// FAILED.
var ErrTerminal = errors.New("job is in a terminal state")

// ErrExists is returned by CreateJob for a duplicate id.
var ErrExists = errors.New("job already exists")

// Store is the job and result table.
type Store interface {
	// CreateJob inserts a new job.
	CreateJob(ctx context.Context, job *audit.Job) error

	// GetJob returns a copy of the job or a *audit.NotFoundError.
	GetJob(ctx context.Context, id string) (*audit.Job, error)

	// UpdateJob applies fn to the job under the job's lock and persists the
	// result. fn must not retain the pointer. Terminal jobs are never passed
	// to fn; ErrTerminal is returned instead.
	UpdateJob(ctx context.Context, id string, fn func(job *audit.Job) error) (*audit.Job, error)

	// ListJobs returns jobs ordered by creation time, newest first.
	ListJobs(ctx context.Context, q JobQuery) ([]*audit.Job, error)

	// SaveResults appends results to their jobs. The batch is saved whole
	// or not at all.
	SaveResults(ctx context.Context, results ...audit.AuditResult) error

	// ListResults returns a job's results in the order they were saved.
	ListResults(ctx context.Context, jobID string) ([]audit.AuditResult, error)

	// DeleteJobsBefore removes terminal jobs that ended before cutoff,
	// together with their results, and returns how many jobs were removed.
	DeleteJobsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases backend resources.
	Close() error
}

// JobQuery filters ListJobs.
type JobQuery struct {
	// Status restricts results to one status when set.
	Status audit.JobStatus

	// Limit caps the number of jobs returned. Zero means 100.
	Limit int

	// Offset skips the first jobs of the ordered result.
	Offset int
}

func (q JobQuery) limit() int {
	if q.Limit <= 0 {
		return 100
	}
	return q.Limit
}

// Driver names a backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Driver   Driver         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// Open creates the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return NewSQLiteStore(&cfg.SQLite, logger)
	case DriverPostgres:
		return NewPostgresStore(ctx, &cfg.Postgres, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// StorageError is a backend failure.
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

func cloneResult(r audit.AuditResult) audit.AuditResult {
	c := r
	c.Evidences = make([]audit.Evidence, len(r.Evidences))
	for i, ev := range r.Evidences {
		if ev.Context != nil {
			ctx := make(map[string]any, len(ev.Context))
			for k, v := range ev.Context {
				ctx[k] = v
			}
			ev.Context = ctx
		}
		c.Evidences[i] = ev
	}
	return c
}
