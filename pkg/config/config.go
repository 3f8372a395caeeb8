package config

import (
	"time"

	"mercator-hq/auditor/pkg/chunker"
	"mercator-hq/auditor/pkg/documents"
	"mercator-hq/auditor/pkg/embedding"
	"mercator-hq/auditor/pkg/gate"
	"mercator-hq/auditor/pkg/orchestrator"
	"mercator-hq/auditor/pkg/report"
	"mercator-hq/auditor/pkg/retention"
	"mercator-hq/auditor/pkg/rules/gitsync"
	"mercator-hq/auditor/pkg/security"
	"mercator-hq/auditor/pkg/security/auth"
	"mercator-hq/auditor/pkg/server"
	"mercator-hq/auditor/pkg/store"
	"mercator-hq/auditor/pkg/telemetry/logging"
	"mercator-hq/auditor/pkg/telemetry/metrics"
	"mercator-hq/auditor/pkg/telemetry/tracing"
)

// Config is the root configuration.
type Config struct {
	Gate      gate.Config         `yaml:"gate"`
	Jobs      orchestrator.Config `yaml:"jobs"`
	Matching  MatchingConfig      `yaml:"matching"`
	Rules     RulesConfig         `yaml:"rules"`
	Documents documents.Config    `yaml:"documents"`
	Embedding embedding.Config    `yaml:"embedding"`
	Storage   store.Config        `yaml:"storage"`
	Report    ReportConfig        `yaml:"report"`
	Retention RetentionConfig     `yaml:"retention"`
	Security  SecurityConfig      `yaml:"security"`
	Secrets   SecretsConfig       `yaml:"secrets"`
	Server    server.Config       `yaml:"server"`
	Telemetry TelemetryConfig     `yaml:"telemetry"`
}

// MatchingConfig controls document chunking.
type MatchingConfig struct {
	Chunker chunker.Config `yaml:"chunker"`
}

// RulesConfig locates rule set files.
type RulesConfig struct {
	// Dir holds one rule set per YAML or JSON file.
	// Default: "./rules"
	Dir string `yaml:"dir"`

	// DefaultRuleSetID is served when a requested rule set cannot be loaded.
	DefaultRuleSetID string `yaml:"default_rule_set_id"`

	// Watch reloads rule sets when files in Dir change (serve mode).
	Watch bool `yaml:"watch"`

	// DebounceInterval coalesces bursts of file events.
	// Default: 500ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// Git checks rule sets out of a repository. When a repository is set,
	// serve mode replaces Dir with the checkout and polls for new commits.
	Git gitsync.Config `yaml:"git"`
}

// ReportConfig selects where exported reports go. Which jobs export a
// report is decided by jobs.report_format and the job request.
type ReportConfig struct {
	// Sink is "file" or "minio".
	// Default: "file"
	Sink string `yaml:"sink"`

	// Dir receives reports for the file sink.
	// Default: "./reports"
	Dir string `yaml:"dir"`

	// PrettyJSON indents JSON reports.
	PrettyJSON bool `yaml:"pretty_json"`

	MinIO report.MinIOConfig `yaml:"minio"`
}

// RetentionConfig enables scheduled pruning of finished jobs (serve mode).
type RetentionConfig struct {
	Enabled          bool `yaml:"enabled"`
	retention.Config `yaml:",inline"`
}

// SecurityConfig is the permission policy plus the API keys that map
// callers to principals.
type SecurityConfig struct {
	security.Config `yaml:",inline"`

	// APIKeys authenticate HTTP callers. No keys leaves the API open.
	APIKeys []auth.APIKey `yaml:"api_keys"`
}

// SecretsConfig configures resolution of ${secret:name} references.
type SecretsConfig struct {
	// Dir holds one file per secret, mode 0600 or 0400.
	Dir string `yaml:"dir"`

	// EnvPrefix names environment secrets: name "db" reads <prefix>DB.
	// Default: "AUDITOR_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`
}

// TelemetryConfig groups the observability sections.
type TelemetryConfig struct {
	Logging logging.Config `yaml:"logging"`
	Metrics metrics.Config `yaml:"metrics"`
	Tracing tracing.Config `yaml:"tracing"`
}
