package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/auditor/pkg/security/secrets"
	"mercator-hq/auditor/pkg/store"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "AUDITOR_"

// LoadConfig reads path, applies defaults and validates. An empty path
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides is LoadConfig with AUDITOR_* environment
// overrides and secret references applied before validation.
func LoadConfigWithEnvOverrides(ctx context.Context, path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	m, err := SecretsManager(cfg.Secrets)
	if err != nil {
		return nil, err
	}
	if err := ResolveSecrets(ctx, cfg, m); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	cfg := preset()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// lookupFunc matches os.LookupEnv.
type lookupFunc func(key string) (string, bool)

// applyEnvOverrides applies every AUDITOR_<SECTION>_<FIELD> variable that is
// set. A value that does not parse is an error rather than silently ignored.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	integer("GATE_WORKERS", &cfg.Gate.Workers)
	integer("GATE_QUEUE_SIZE", &cfg.Gate.QueueSize)
	integer("GATE_FAILURE_THRESHOLD", &cfg.Gate.FailureThreshold)
	duration("GATE_RECOVERY_TIMEOUT", &cfg.Gate.RecoveryTimeout)
	integer("GATE_EXTERNAL_CONCURRENCY", &cfg.Gate.ExternalConcurrency)

	integer("JOBS_MAX_DOCUMENTS", &cfg.Jobs.MaxDocuments)
	duration("JOBS_DOCUMENT_TIMEOUT", &cfg.Jobs.DocumentTimeout)
	str("JOBS_REPORT_FORMAT", &cfg.Jobs.ReportFormat)

	str("RULES_DIR", &cfg.Rules.Dir)
	str("RULES_DEFAULT_RULE_SET_ID", &cfg.Rules.DefaultRuleSetID)
	boolean("RULES_WATCH", &cfg.Rules.Watch)
	str("RULES_GIT_REPOSITORY", &cfg.Rules.Git.Repository)
	str("RULES_GIT_BRANCH", &cfg.Rules.Git.Branch)
	str("RULES_GIT_PATH", &cfg.Rules.Git.Path)
	str("RULES_GIT_AUTH_TOKEN", &cfg.Rules.Git.Auth.Token)
	duration("RULES_GIT_POLL_INTERVAL", &cfg.Rules.Git.PollInterval)

	str("DOCUMENTS_ROOT", &cfg.Documents.Root)

	str("EMBEDDING_BACKEND", &cfg.Embedding.Backend)
	str("EMBEDDING_ENDPOINT", &cfg.Embedding.Endpoint)
	str("EMBEDDING_MODEL", &cfg.Embedding.Model)
	str("EMBEDDING_API_KEY", &cfg.Embedding.APIKey)
	duration("EMBEDDING_TIMEOUT", &cfg.Embedding.Timeout)

	var driver string
	str("STORAGE_DRIVER", &driver)
	if driver != "" {
		cfg.Storage.Driver = store.Driver(driver)
	}
	str("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	str("STORAGE_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)

	str("REPORT_SINK", &cfg.Report.Sink)
	str("REPORT_DIR", &cfg.Report.Dir)
	str("REPORT_MINIO_ENDPOINT", &cfg.Report.MinIO.Endpoint)
	str("REPORT_MINIO_ACCESS_KEY", &cfg.Report.MinIO.AccessKey)
	str("REPORT_MINIO_SECRET_KEY", &cfg.Report.MinIO.SecretKey)
	str("REPORT_MINIO_BUCKET", &cfg.Report.MinIO.Bucket)

	boolean("RETENTION_ENABLED", &cfg.Retention.Enabled)
	integer("RETENTION_RETENTION_DAYS", &cfg.Retention.RetentionDays)
	str("RETENTION_SCHEDULE", &cfg.Retention.Schedule)

	boolean("SECURITY_ENABLED", &cfg.Security.Enabled)
	str("SECURITY_DEFAULT_ROLE", &cfg.Security.DefaultRole)

	str("SECRETS_DIR", &cfg.Secrets.Dir)

	str("SERVER_ADDRESS", &cfg.Server.Address)
	duration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	boolean("SERVER_TLS_ENABLED", &cfg.Server.TLS.Enabled)
	str("SERVER_TLS_CERT_FILE", &cfg.Server.TLS.CertFile)
	str("SERVER_TLS_KEY_FILE", &cfg.Server.TLS.KeyFile)
	boolean("SERVER_RATE_LIMIT_ENABLED", &cfg.Server.RateLimit.Enabled)
	integer("SERVER_RATE_LIMIT_JOBS_PER_MINUTE", &cfg.Server.RateLimit.JobsPerMinute)

	str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	boolean("TELEMETRY_LOGGING_REDACT_PII", &cfg.Telemetry.Logging.RedactPII)
	boolean("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	str("TELEMETRY_METRICS_ADDRESS", &cfg.Telemetry.Metrics.Address)
	boolean("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	str("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment override: %w", errors.Join(errs...))
	}
	return nil
}

// SecretsManager builds the secret manager described by c. Environment
// secrets are consulted before the secrets directory.
func SecretsManager(c SecretsConfig) (*secrets.Manager, error) {
	providers := []secrets.Provider{secrets.NewEnvProvider(c.EnvPrefix)}
	if c.Dir != "" {
		fp, err := secrets.NewFileProvider(c.Dir)
		if err != nil {
			return nil, fmt.Errorf("secrets.dir: %w", err)
		}
		providers = append(providers, fp)
	}
	return secrets.NewManager(providers...), nil
}

// ResolveSecrets replaces ${secret:name} references in credential fields.
func ResolveSecrets(ctx context.Context, cfg *Config, m *secrets.Manager) error {
	fields := []struct {
		name string
		dst  *string
	}{
		{"embedding.api_key", &cfg.Embedding.APIKey},
		{"rules.git.auth.token", &cfg.Rules.Git.Auth.Token},
		{"rules.git.auth.ssh_key_passphrase", &cfg.Rules.Git.Auth.SSHKeyPassphrase},
		{"storage.postgres.dsn", &cfg.Storage.Postgres.DSN},
		{"report.minio.access_key", &cfg.Report.MinIO.AccessKey},
		{"report.minio.secret_key", &cfg.Report.MinIO.SecretKey},
	}
	for i := range cfg.Security.APIKeys {
		fields = append(fields, struct {
			name string
			dst  *string
		}{fmt.Sprintf("security.api_keys[%d].key", i), &cfg.Security.APIKeys[i].Key})
	}

	var errs []error
	for _, f := range fields {
		if !secrets.HasReference(*f.dst) {
			continue
		}
		v, err := m.ResolveReferences(ctx, *f.dst)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
			continue
		}
		*f.dst = strings.TrimSpace(v)
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to resolve secrets: %w", errors.Join(errs...))
	}
	return nil
}
