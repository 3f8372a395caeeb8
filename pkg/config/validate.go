package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/auditor/pkg/embedding"
	"mercator-hq/auditor/pkg/store"
	"mercator-hq/auditor/pkg/telemetry/logging"
	"mercator-hq/auditor/pkg/telemetry/tracing"
)

// FieldError is a problem with one configuration field.
type FieldError struct {
	// Field is the dotted YAML path, e.g. "storage.driver".
	Field   string
	Message string
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every FieldError found.
type ValidationError struct {
	Errors []FieldError
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "configuration validation failed"
	case 1:
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate checks cfg and returns a ValidationError listing every problem.
func Validate(cfg *Config) error {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Gate.Workers < 0 {
		add("gate.workers", "must not be negative")
	}
	if cfg.Gate.QueueSize < 0 {
		add("gate.queue_size", "must not be negative")
	}
	if cfg.Gate.FailureThreshold < 0 {
		add("gate.failure_threshold", "must not be negative")
	}

	if cfg.Jobs.MaxDocuments < 0 {
		add("jobs.max_documents", "must not be negative")
	}
	if cfg.Jobs.DocumentTimeout < 0 {
		add("jobs.document_timeout", "must not be negative")
	}
	if f := cfg.Jobs.ReportFormat; f != "" && !validReportFormat(f) {
		add("jobs.report_format", "must be json, csv or xlsx, got %q", f)
	}

	if cfg.Matching.Chunker.MaxChunkSize < 0 {
		add("matching.chunker.max_chunk_size", "must not be negative")
	}

	if cfg.Rules.Dir == "" {
		add("rules.dir", "is required")
	}
	if err := cfg.Rules.Git.Validate(); err != nil {
		add("rules.git", "%v", err)
	}

	switch cfg.Embedding.Backend {
	case "":
	case embedding.BackendHTTP, embedding.BackendOllama:
		if cfg.Embedding.Endpoint == "" {
			add("embedding.endpoint", "is required when a backend is set")
		} else if u, err := url.Parse(cfg.Embedding.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			add("embedding.endpoint", "must be an absolute URL, got %q", cfg.Embedding.Endpoint)
		}
		if cfg.Embedding.Model == "" {
			add("embedding.model", "is required when a backend is set")
		}
	default:
		add("embedding.backend", "must be http or ollama, got %q", cfg.Embedding.Backend)
	}

	switch cfg.Storage.Driver {
	case store.DriverMemory:
	case store.DriverSQLite:
		if cfg.Storage.SQLite.Path == "" {
			add("storage.sqlite.path", "is required for the sqlite driver")
		}
	case store.DriverPostgres:
		if cfg.Storage.Postgres.DSN == "" {
			add("storage.postgres.dsn", "is required for the postgres driver")
		}
	default:
		add("storage.driver", "must be memory, sqlite or postgres, got %q", cfg.Storage.Driver)
	}

	switch cfg.Report.Sink {
	case "file":
		if cfg.Report.Dir == "" {
			add("report.dir", "is required for the file sink")
		}
	case "minio":
		if cfg.Report.MinIO.Endpoint == "" {
			add("report.minio.endpoint", "is required for the minio sink")
		}
		if cfg.Report.MinIO.Bucket == "" {
			add("report.minio.bucket", "is required for the minio sink")
		}
	default:
		add("report.sink", "must be file or minio, got %q", cfg.Report.Sink)
	}

	if cfg.Retention.Enabled {
		if cfg.Retention.RetentionDays < 1 {
			add("retention.retention_days", "must be at least 1")
		}
		if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
			add("retention.schedule", "invalid cron expression: %v", err)
		}
	}

	if cfg.Security.Enabled {
		if _, ok := cfg.Security.Roles[cfg.Security.DefaultRole]; !ok {
			add("security.default_role", "role %q is not defined in security.roles", cfg.Security.DefaultRole)
		}
	}
	seen := make(map[string]bool)
	for i, k := range cfg.Security.APIKeys {
		field := fmt.Sprintf("security.api_keys[%d]", i)
		switch {
		case k.Key == "":
			add(field+".key", "is required")
		case len(k.Key) < 16:
			add(field+".key", "must be at least 16 characters")
		case seen[k.Key]:
			add(field+".key", "duplicates another key")
		}
		seen[k.Key] = true
		if k.Principal == "" {
			add(field+".principal", "is required")
		}
	}

	if cfg.Server.Address == "" {
		add("server.address", "is required")
	}
	if err := cfg.Server.TLS.Validate(); err != nil {
		add("server.tls", "%v", err)
	}
	if err := cfg.Server.RateLimit.Validate(); err != nil {
		add("server.rate_limit", "%v", err)
	}

	if _, err := logging.ParseLevel(cfg.Telemetry.Logging.Level); err != nil {
		add("telemetry.logging.level", "%v", err)
	}
	switch cfg.Telemetry.Logging.Format {
	case "json", "text", "console":
	default:
		add("telemetry.logging.format", "must be json, text or console, got %q", cfg.Telemetry.Logging.Format)
	}
	for i, p := range cfg.Telemetry.Logging.RedactPatterns {
		if p.Name == "" || p.Pattern == "" {
			add(fmt.Sprintf("telemetry.logging.redact_patterns[%d]", i), "name and pattern are required")
		}
	}
	if cfg.Telemetry.Metrics.Enabled && !strings.HasPrefix(cfg.Telemetry.Metrics.Path, "/") {
		add("telemetry.metrics.path", "must start with /")
	}
	if cfg.Telemetry.Tracing.Enabled {
		if cfg.Telemetry.Tracing.Endpoint == "" {
			add("telemetry.tracing.endpoint", "is required when tracing is enabled")
		}
		if err := tracing.ValidateSampler(cfg.Telemetry.Tracing.Sampler, cfg.Telemetry.Tracing.SampleRatio); err != nil {
			add("telemetry.tracing.sampler", "%v", err)
		}
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validReportFormat(f string) bool {
	switch strings.ToLower(f) {
	case "json", "csv", "xlsx":
		return true
	}
	return false
}
