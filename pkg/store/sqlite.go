package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/auditor/pkg/audit"
)

// SQLiteConfig contains configuration for the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: data/auditor.db
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 4
	MaxOpenConns int `yaml:"max_open_conns"`

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/auditor.db",
		MaxOpenConns: 4,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	locks  *keyedMutex
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at config.Path.
func NewSQLiteStore(config *SQLiteConfig, logger *slog.Logger) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	def := DefaultSQLiteConfig()
	if config.Path == "" {
		config.Path = def.Path
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = def.MaxOpenConns
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = def.BusyTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store.sqlite")

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		config.Path, config.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)

	s := &SQLiteStore{db: db, config: config, locks: newKeyedMutex(), logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite store initialized", "path", config.Path, "max_open_conns", config.MaxOpenConns)
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(sqliteInsertSchemaVersion, SchemaVersion); err != nil {
		return NewStorageError("sqlite", "insert_schema_version", err)
	}
	var version int
	if err := s.db.QueryRow(getSchemaVersion).Scan(&version); err != nil {
		return NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *audit.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return NewStorageError("sqlite", "marshal_job", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_jobs (id, status, created_at, end_time, data) VALUES (?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), job.CreatedAt.UTC(), nullTime(job.EndTime), string(data))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: %s", ErrExists, job.ID)
		}
		return NewStorageError("sqlite", "create_job", err)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*audit.Job, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM audit_jobs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, audit.NewNotFoundError("job", id)
	}
	if err != nil {
		return nil, NewStorageError("sqlite", "get_job", err)
	}
	return decodeJob([]byte(data))
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, id string, fn func(*audit.Job) error) (*audit.Job, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrTerminal, id, job.Status)
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, NewStorageError("sqlite", "marshal_job", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE audit_jobs SET status = ?, end_time = ?, data = ? WHERE id = ?`,
		string(job.Status), nullTime(job.EndTime), string(data), id)
	if err != nil {
		return nil, NewStorageError("sqlite", "update_job", err)
	}
	return job.Clone(), nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, q JobQuery) ([]*audit.Job, error) {
	query := `SELECT data FROM audit_jobs`
	var args []any
	if q.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(q.Status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id ASC LIMIT %d OFFSET %d`, q.limit(), q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewStorageError("sqlite", "list_jobs", err)
	}
	defer rows.Close()

	jobs := []*audit.Job{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, NewStorageError("sqlite", "scan", err)
		}
		job, err := decodeJob([]byte(data))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "list_jobs", err)
	}
	return jobs, nil
}

func (s *SQLiteStore) SaveResults(ctx context.Context, results ...audit.AuditResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStorageError("sqlite", "begin", err)
	}
	defer tx.Rollback()

	for _, r := range results {
		data, err := json.Marshal(r)
		if err != nil {
			return NewStorageError("sqlite", "marshal_result", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO audit_results (id, job_id, document_id, rule_id, status, data) VALUES (?, ?, ?, ?, ?, ?)`,
			r.ResultID, r.JobID, r.DocumentID, r.RuleID, string(r.Status), string(data))
		if err != nil {
			if strings.Contains(err.Error(), "FOREIGN KEY") {
				return audit.NewNotFoundError("job", r.JobID)
			}
			return NewStorageError("sqlite", "save_result", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return NewStorageError("sqlite", "commit", err)
	}
	return nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, jobID string) ([]audit.AuditResult, error) {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM audit_results WHERE job_id = ? ORDER BY seq`, jobID)
	if err != nil {
		return nil, NewStorageError("sqlite", "list_results", err)
	}
	defer rows.Close()

	results := []audit.AuditResult{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, NewStorageError("sqlite", "scan", err)
		}
		var r audit.AuditResult
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, NewStorageError("sqlite", "unmarshal_result", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "list_results", err)
	}
	return results, nil
}

func (s *SQLiteStore) DeleteJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, NewStorageError("sqlite", "begin", err)
	}
	defer tx.Rollback()

	const terminal = `status IN ('COMPLETED', 'FAILED') AND end_time IS NOT NULL AND end_time < ?`
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM audit_results WHERE job_id IN (SELECT id FROM audit_jobs WHERE `+terminal+`)`, cutoff.UTC()); err != nil {
		return 0, NewStorageError("sqlite", "delete_results", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM audit_jobs WHERE `+terminal, cutoff.UTC())
	if err != nil {
		return 0, NewStorageError("sqlite", "delete_jobs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, NewStorageError("sqlite", "delete_jobs", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, NewStorageError("sqlite", "commit", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite store closed")
	return nil
}

func decodeJob(data []byte) (*audit.Job, error) {
	var job audit.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, NewStorageError("sqlite", "unmarshal_job", err)
	}
	return &job, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
