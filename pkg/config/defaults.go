package config

import (
	"time"

	"mercator-hq/auditor/pkg/chunker"
	"mercator-hq/auditor/pkg/gate"
	"mercator-hq/auditor/pkg/retention"
	"mercator-hq/auditor/pkg/security"
	"mercator-hq/auditor/pkg/server"
	"mercator-hq/auditor/pkg/store"
)

// Default values not owned by a component package.
const (
	DefaultRulesDir          = "./rules"
	DefaultDebounceInterval  = 500 * time.Millisecond
	DefaultMaxDocuments      = 1000
	DefaultDocumentsRoot     = "."
	DefaultMaxFileSize       = 10 << 20
	DefaultReportSink        = "file"
	DefaultReportDir         = "./reports"
	DefaultSQLitePath        = "auditor.db"
	DefaultSecretsEnvPrefix  = "AUDITOR_SECRET_"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultMetricsPath       = "/metrics"
	DefaultMetricsNamespace  = "auditor"
	DefaultTracingEndpoint   = "localhost:4317"
	DefaultTracingTimeout    = 10 * time.Second
	DefaultTracingSampler    = "ratio"
	DefaultTracingRatio      = 0.1
	DefaultTracingService    = "auditor"
	DefaultEmbeddingTimeout  = 30 * time.Second
	DefaultEmbeddingRetries  = 3
	DefaultEmbeddingBackoff  = 200 * time.Millisecond
	DefaultPostgresMaxConns  = 10
	DefaultPostgresTimeout   = 5 * time.Second
	DefaultTLSReloadInterval = time.Minute
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := preset()
	ApplyDefaults(cfg)
	return cfg
}

// preset holds the defaults whose zero value is meaningful, so they are set
// before the file is decoded instead of in ApplyDefaults.
func preset() *Config {
	cfg := &Config{}
	cfg.Telemetry.Logging.RedactPII = true
	return cfg
}

// ApplyDefaults fills zero-valued fields. It is idempotent.
func ApplyDefaults(cfg *Config) {
	applyGateDefaults(&cfg.Gate)

	if cfg.Jobs.MaxDocuments == 0 {
		cfg.Jobs.MaxDocuments = DefaultMaxDocuments
	}

	dc := chunker.DefaultConfig()
	if cfg.Matching.Chunker.MaxChunkSize == 0 {
		cfg.Matching.Chunker.MaxChunkSize = dc.MaxChunkSize
	}
	if cfg.Matching.Chunker.MaxHeadingLength == 0 {
		cfg.Matching.Chunker.MaxHeadingLength = dc.MaxHeadingLength
	}

	if cfg.Rules.Dir == "" {
		cfg.Rules.Dir = DefaultRulesDir
	}
	if cfg.Rules.DebounceInterval == 0 {
		cfg.Rules.DebounceInterval = DefaultDebounceInterval
	}

	if cfg.Documents.Root == "" {
		cfg.Documents.Root = DefaultDocumentsRoot
	}
	if cfg.Documents.MaxFileSize == 0 {
		cfg.Documents.MaxFileSize = DefaultMaxFileSize
	}

	if cfg.Embedding.Backend != "" {
		if cfg.Embedding.Timeout == 0 {
			cfg.Embedding.Timeout = DefaultEmbeddingTimeout
		}
		if cfg.Embedding.MaxRetries == 0 {
			cfg.Embedding.MaxRetries = DefaultEmbeddingRetries
		}
		if cfg.Embedding.InitialBackoff == 0 {
			cfg.Embedding.InitialBackoff = DefaultEmbeddingBackoff
		}
	}

	applyStorageDefaults(&cfg.Storage)

	if cfg.Report.Sink == "" {
		cfg.Report.Sink = DefaultReportSink
	}
	if cfg.Report.Dir == "" {
		cfg.Report.Dir = DefaultReportDir
	}

	rd := retention.DefaultConfig()
	if cfg.Retention.RetentionDays == 0 {
		cfg.Retention.RetentionDays = rd.RetentionDays
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = rd.Schedule
	}

	sd := security.DefaultConfig()
	if cfg.Security.DefaultRole == "" {
		cfg.Security.DefaultRole = sd.DefaultRole
	}
	if len(cfg.Security.Roles) == 0 {
		cfg.Security.Roles = sd.Roles
	}

	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}

	applyServerDefaults(&cfg.Server)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyGateDefaults(c *gate.Config) {
	d := gate.DefaultConfig()
	if c.Workers == 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize == 0 {
		c.QueueSize = d.QueueSize
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.RecoveryTimeout == 0 {
		c.RecoveryTimeout = d.RecoveryTimeout
	}
	if c.SlowTaskThreshold == 0 {
		c.SlowTaskThreshold = d.SlowTaskThreshold
	}
	if c.ExternalConcurrency == 0 {
		c.ExternalConcurrency = d.ExternalConcurrency
	}
}

func applyStorageDefaults(c *store.Config) {
	if c.Driver == "" {
		c.Driver = store.DriverMemory
	}
	sd := store.DefaultSQLiteConfig()
	if c.SQLite.Path == "" {
		c.SQLite.Path = DefaultSQLitePath
	}
	if c.SQLite.MaxOpenConns == 0 {
		c.SQLite.MaxOpenConns = sd.MaxOpenConns
	}
	if c.SQLite.BusyTimeout == 0 {
		c.SQLite.BusyTimeout = sd.BusyTimeout
	}
	if c.Postgres.MaxConns == 0 {
		c.Postgres.MaxConns = DefaultPostgresMaxConns
	}
	if c.Postgres.DialTimeout == 0 {
		c.Postgres.DialTimeout = DefaultPostgresTimeout
	}
}

func applyServerDefaults(c *server.Config) {
	d := server.DefaultConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.RateLimit.JobsPerMinute == 0 {
		c.RateLimit.JobsPerMinute = d.RateLimit.JobsPerMinute
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.JobsPerMinute
	}
	if c.RateLimit.IdleTTL == 0 {
		c.RateLimit.IdleTTL = d.RateLimit.IdleTTL
	}
	if c.TLS.MinVersion == "" {
		c.TLS.MinVersion = "1.3"
	}
	if c.TLS.ReloadInterval == 0 {
		c.TLS.ReloadInterval = DefaultTLSReloadInterval
	}
}

func applyTelemetryDefaults(c *TelemetryConfig) {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if c.Tracing.Timeout == 0 {
		c.Tracing.Timeout = DefaultTracingTimeout
	}
	if c.Tracing.Sampler == "" {
		c.Tracing.Sampler = DefaultTracingSampler
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = DefaultTracingRatio
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = DefaultTracingService
	}
}
