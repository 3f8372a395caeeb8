package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/auditor/pkg/security/auth"
	"mercator-hq/auditor/pkg/security/secrets"
	"mercator-hq/auditor/pkg/store"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
gate:
  workers: 8
jobs:
  report_format: csv
rules:
  dir: /etc/auditor/rules
  default_rule_set_id: baseline
storage:
  driver: sqlite
  sqlite:
    path: /var/lib/auditor/jobs.db
retention:
  enabled: true
  retention_days: 7
security:
  enabled: true
  default_role: viewer
  roles:
    viewer: ["job:read"]
  api_keys:
    - key: 0123456789abcdef0123
      principal: ci
      roles: [viewer]
telemetry:
  logging:
    level: debug
    format: text
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Gate.Workers != 8 {
		t.Errorf("gate.workers = %d", cfg.Gate.Workers)
	}
	if cfg.Gate.QueueSize != 64 {
		t.Errorf("gate.queue_size default = %d, want 64", cfg.Gate.QueueSize)
	}
	if cfg.Storage.Driver != store.DriverSQLite || cfg.Storage.SQLite.Path != "/var/lib/auditor/jobs.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if !cfg.Retention.Enabled || cfg.Retention.RetentionDays != 7 || cfg.Retention.Schedule != "0 3 * * *" {
		t.Errorf("retention = %+v", cfg.Retention)
	}
	if !cfg.Security.Enabled || cfg.Security.DefaultRole != "viewer" || len(cfg.Security.APIKeys) != 1 {
		t.Errorf("security = %+v", cfg.Security)
	}
	if cfg.Rules.DefaultRuleSetID != "baseline" || cfg.Rules.DebounceInterval != DefaultDebounceInterval {
		t.Errorf("rules = %+v", cfg.Rules)
	}
	if cfg.Telemetry.Logging.Level != "debug" || cfg.Telemetry.Metrics.Path != "/metrics" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if !cfg.Telemetry.Logging.RedactPII {
		t.Error("redact_pii should default to true")
	}
}

func TestLoadConfig_RedactionCanBeDisabled(t *testing.T) {
	path := writeConfig(t, `
telemetry:
  logging:
    redact_pii: false
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Telemetry.Logging.RedactPII {
		t.Error("redact_pii: false was ignored")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
	if _, err := LoadConfig(writeConfig(t, "gate: [not, a, map]")); err == nil {
		t.Error("malformed YAML accepted")
	}
	_, err := LoadConfig(writeConfig(t, "storage:\n  driver: mongo\n"))
	var verr ValidationError
	if !errors.As(err, &verr) || verr.Errors[0].Field != "storage.driver" {
		t.Errorf("error = %v, want storage.driver ValidationError", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.Storage.Driver != store.DriverMemory || cfg.Report.Sink != "file" || cfg.Server.Address != ":8080" {
		t.Errorf("unexpected defaults: storage=%s sink=%s address=%s", cfg.Storage.Driver, cfg.Report.Sink, cfg.Server.Address)
	}

	again := *cfg
	ApplyDefaults(&again)
	if again.Gate != cfg.Gate || again.Server.Address != cfg.Server.Address {
		t.Error("ApplyDefaults is not idempotent")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"AUDITOR_GATE_WORKERS":              "16",
		"AUDITOR_STORAGE_DRIVER":            "postgres",
		"AUDITOR_STORAGE_POSTGRES_DSN":      "postgres://localhost/audit",
		"AUDITOR_RULES_WATCH":               "true",
		"AUDITOR_JOBS_DOCUMENT_TIMEOUT":     "45s",
		"AUDITOR_TELEMETRY_LOGGING_LEVEL":   "warn",
		"AUDITOR_TELEMETRY_TRACING_ENABLED": "1",
		"AUDITOR_RULES_GIT_REPOSITORY":      "https://example.com/rules.git",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := applyEnvOverrides(cfg, lookup); err != nil {
		t.Fatal(err)
	}
	if cfg.Gate.Workers != 16 || cfg.Storage.Driver != store.DriverPostgres || !cfg.Rules.Watch {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Rules.Git.Repository != "https://example.com/rules.git" {
		t.Errorf("rules.git.repository = %q", cfg.Rules.Git.Repository)
	}
	if cfg.Jobs.DocumentTimeout != 45*time.Second {
		t.Errorf("document_timeout = %v", cfg.Jobs.DocumentTimeout)
	}
	if cfg.Telemetry.Logging.Level != "warn" || !cfg.Telemetry.Tracing.Enabled {
		t.Errorf("telemetry overrides not applied: %+v", cfg.Telemetry)
	}

	bad := func(k string) (string, bool) {
		if k == "AUDITOR_GATE_WORKERS" {
			return "many", true
		}
		return "", false
	}
	if err := applyEnvOverrides(Default(), bad); err == nil || !strings.Contains(err.Error(), "AUDITOR_GATE_WORKERS") {
		t.Errorf("error = %v, want one naming the variable", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	t.Setenv("AUDITOR_SERVER_ADDRESS", "127.0.0.1:9999")
	t.Setenv("AUDITOR_SECRET_EMBED_KEY", "sk-live-123")
	path := writeConfig(t, `
embedding:
  backend: http
  endpoint: http://embeddings:8000/embed
  model: bge-m3
  api_key: ${secret:embed_key}
`)
	cfg, err := LoadConfigWithEnvOverrides(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Address != "127.0.0.1:9999" {
		t.Errorf("server.address = %q", cfg.Server.Address)
	}
	if cfg.Embedding.APIKey != "sk-live-123" {
		t.Errorf("embedding.api_key = %q, want the resolved secret", cfg.Embedding.APIKey)
	}
}

func TestResolveSecrets(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "minio_secret"), []byte("s3cr3t\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	fp, err := secrets.NewFileProvider(dir)
	if err != nil {
		t.Fatal(err)
	}
	m := secrets.NewManager(fp)

	cfg := Default()
	cfg.Report.MinIO.SecretKey = "${secret:minio_secret}"
	cfg.Report.MinIO.AccessKey = "plain-access"
	cfg.Rules.Git.Auth.Token = "${secret:minio_secret}"
	cfg.Security.APIKeys = []auth.APIKey{{Key: "${secret:missing}", Principal: "ci"}}

	err = ResolveSecrets(context.Background(), cfg, m)
	if err == nil || !strings.Contains(err.Error(), "security.api_keys[0].key") {
		t.Errorf("error = %v, want the unresolved field named", err)
	}
	if cfg.Report.MinIO.SecretKey != "s3cr3t" {
		t.Errorf("secret_key = %q", cfg.Report.MinIO.SecretKey)
	}
	if cfg.Rules.Git.Auth.Token != "s3cr3t" {
		t.Errorf("rules.git.auth.token = %q", cfg.Rules.Git.Auth.Token)
	}
	if cfg.Report.MinIO.AccessKey != "plain-access" {
		t.Errorf("plain value changed to %q", cfg.Report.MinIO.AccessKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative workers", func(c *Config) { c.Gate.Workers = -1 }, "gate.workers"},
		{"report format", func(c *Config) { c.Jobs.ReportFormat = "pdf" }, "jobs.report_format"},
		{"embedding backend", func(c *Config) { c.Embedding.Backend = "openai" }, "embedding.backend"},
		{"embedding endpoint", func(c *Config) {
			c.Embedding.Backend = "http"
			c.Embedding.Endpoint = "not a url"
			c.Embedding.Model = "m"
		}, "embedding.endpoint"},
		{"postgres dsn", func(c *Config) { c.Storage.Driver = store.DriverPostgres }, "storage.postgres.dsn"},
		{"minio bucket", func(c *Config) {
			c.Report.Sink = "minio"
			c.Report.MinIO.Endpoint = "minio:9000"
		}, "report.minio.bucket"},
		{"cron schedule", func(c *Config) {
			c.Retention.Enabled = true
			c.Retention.Schedule = "every day"
		}, "retention.schedule"},
		{"default role", func(c *Config) {
			c.Security.Enabled = true
			c.Security.DefaultRole = "ghost"
		}, "security.default_role"},
		{"short api key", func(c *Config) {
			c.Security.APIKeys = []auth.APIKey{{Key: "short", Principal: "ci"}}
		}, "security.api_keys[0].key"},
		{"git auth", func(c *Config) {
			c.Rules.Git.Repository = "https://example.com/rules.git"
			c.Rules.Git.Auth.Type = "token"
		}, "rules.git"},
		{"tls files", func(c *Config) { c.Server.TLS.Enabled = true }, "server.tls"},
		{"rate limit", func(c *Config) { c.Server.RateLimit.Burst = -1 }, "server.rate_limit"},
		{"log level", func(c *Config) { c.Telemetry.Logging.Level = "loud" }, "telemetry.logging.level"},
		{"sampler", func(c *Config) {
			c.Telemetry.Tracing.Enabled = true
			c.Telemetry.Tracing.Sampler = "sometimes"
		}, "telemetry.tracing.sampler"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					return
				}
			}
			t.Errorf("errors %v do not mention %s", verr.Errors, tt.field)
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	one := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if one.Error() != "a: bad" {
		t.Errorf("single = %q", one.Error())
	}
	two := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	if !strings.HasPrefix(two.Error(), "2 errors:") || !strings.Contains(two.Error(), "b: worse") {
		t.Errorf("multiple = %q", two.Error())
	}
}
