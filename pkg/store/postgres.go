package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mercator-hq/auditor/pkg/audit"
)

// PostgresConfig contains configuration for the PostgreSQL backend.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// PostgresStore implements Store on PostgreSQL. UpdateJob locks the job row
// with SELECT ... FOR UPDATE, so several processes may share one database.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to config.DSN and creates the schema.
func NewPostgresStore(ctx context.Context, config *PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store.postgres")

	pc, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, NewStorageError("postgres", "parse_config", err)
	}
	if config.MaxConns > 0 {
		pc.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		pc.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = config.MaxConnLifetime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "auditor"

	dial := config.DialTimeout
	if dial <= 0 {
		dial = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, dial)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, NewStorageError("postgres", "connect", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, NewStorageError("postgres", "ping", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, NewStorageError("postgres", "create_schema", err)
	}
	if _, err := pool.Exec(ctx, postgresInsertSchemaVersion, SchemaVersion); err != nil {
		pool.Close()
		return nil, NewStorageError("postgres", "insert_schema_version", err)
	}

	logger.Info("PostgreSQL store initialized", "max_conns", pc.MaxConns)
	return s, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *audit.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return NewStorageError("postgres", "marshal_job", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_jobs (id, status, created_at, end_time, data) VALUES ($1, $2, $3, $4, $5)`,
		job.ID, string(job.Status), job.CreatedAt, job.EndTime, data)
	if isPgCode(err, "23505") {
		return fmt.Errorf("%w: %s", ErrExists, job.ID)
	}
	if err != nil {
		return NewStorageError("postgres", "create_job", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*audit.Job, error) {
	return s.getJob(ctx, s.pool, id, "")
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) getJob(ctx context.Context, q queryRower, id, suffix string) (*audit.Job, error) {
	var data []byte
	err := q.QueryRow(ctx, `SELECT data FROM audit_jobs WHERE id = $1`+suffix, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, audit.NewNotFoundError("job", id)
	}
	if err != nil {
		return nil, NewStorageError("postgres", "get_job", err)
	}
	var job audit.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, NewStorageError("postgres", "unmarshal_job", err)
	}
	return &job, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, id string, fn func(*audit.Job) error) (*audit.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, NewStorageError("postgres", "begin", err)
	}
	defer tx.Rollback(ctx)

	job, err := s.getJob(ctx, tx, id, " FOR UPDATE")
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
		return nil, NewStorageError("postgres", "marshal_job", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE audit_jobs SET status = $1, end_time = $2, data = $3 WHERE id = $4`,
		string(job.Status), job.EndTime, data, id); err != nil {
		return nil, NewStorageError("postgres", "update_job", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, NewStorageError("postgres", "commit", err)
	}
	return job.Clone(), nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, q JobQuery) ([]*audit.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM audit_jobs WHERE ($1 = '' OR status = $1)
		 ORDER BY created_at DESC, id ASC LIMIT $2 OFFSET $3`,
		string(q.Status), q.limit(), q.Offset)
	if err != nil {
		return nil, NewStorageError("postgres", "list_jobs", err)
	}
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*audit.Job, error) {
		var data []byte
		if err := row.Scan(&data); err != nil {
			return nil, err
		}
		var job audit.Job
		return &job, json.Unmarshal(data, &job)
	})
	if err != nil {
		return nil, NewStorageError("postgres", "list_jobs", err)
	}
	return jobs, nil
}

func (s *PostgresStore) SaveResults(ctx context.Context, results ...audit.AuditResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return NewStorageError("postgres", "begin", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range results {
		data, err := json.Marshal(r)
		if err != nil {
			return NewStorageError("postgres", "marshal_result", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO audit_results (id, job_id, document_id, rule_id, status, data) VALUES ($1, $2, $3, $4, $5, $6)`,
			r.ResultID, r.JobID, r.DocumentID, r.RuleID, string(r.Status), data)
		if isPgCode(err, "23503") {
			return audit.NewNotFoundError("job", r.JobID)
		}
		if err != nil {
			return NewStorageError("postgres", "save_result", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return NewStorageError("postgres", "commit", err)
	}
	return nil
}

func (s *PostgresStore) ListResults(ctx context.Context, jobID string) ([]audit.AuditResult, error) {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT data FROM audit_results WHERE job_id = $1 ORDER BY seq`, jobID)
	if err != nil {
		return nil, NewStorageError("postgres", "list_results", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.AuditResult, error) {
		var data []byte
		var r audit.AuditResult
		if err := row.Scan(&data); err != nil {
			return r, err
		}
		return r, json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, NewStorageError("postgres", "list_results", err)
	}
	return results, nil
}

func (s *PostgresStore) DeleteJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM audit_jobs WHERE status IN ('COMPLETED', 'FAILED') AND end_time IS NOT NULL AND end_time < $1`,
		cutoff)
	if err != nil {
		return 0, NewStorageError("postgres", "delete_jobs", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	s.logger.Info("PostgreSQL store closed")
	return nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
