package store

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// sqliteSchema creates the job and result tables. Records are stored as JSON
// next to the columns used for filtering and retention.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_jobs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    end_time TIMESTAMP,
    data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_results (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    job_id TEXT NOT NULL REFERENCES audit_jobs(id) ON DELETE CASCADE,
    document_id TEXT NOT NULL,
    rule_id TEXT NOT NULL,
    status TEXT NOT NULL,
    data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_jobs_status ON audit_jobs(status);
CREATE INDEX IF NOT EXISTS idx_audit_jobs_created_at ON audit_jobs(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_results_job_id ON audit_results(job_id, seq);
`

const sqliteInsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

const getSchemaVersion = `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;`

// postgresSchema mirrors sqliteSchema with native types.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS audit_jobs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    end_time TIMESTAMPTZ,
    data JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_results (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    job_id TEXT NOT NULL REFERENCES audit_jobs(id) ON DELETE CASCADE,
    document_id TEXT NOT NULL,
    rule_id TEXT NOT NULL,
    status TEXT NOT NULL,
    data JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_jobs_status ON audit_jobs(status);
CREATE INDEX IF NOT EXISTS idx_audit_jobs_created_at ON audit_jobs(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_results_job_id ON audit_results(job_id, seq);
`

const postgresInsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES ($1, now())
ON CONFLICT (version) DO NOTHING;
`
