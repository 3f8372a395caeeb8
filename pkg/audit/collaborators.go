package audit

import (
	"context"
	"log/slog"
)

// RuleProvider supplies the effective rule set for a job. Implementations
// should return a usable (possibly default) rule set on upstream failure; the
// orchestrator treats the answer as authoritative and does not retry.
type RuleProvider interface {
	GetEffectiveRuleSet(ctx context.Context, ruleSetID string) (*RuleSet, error)
}

// DocumentProvider fetches and parses a document.
type DocumentProvider interface {
	GetDocumentContent(ctx context.Context, documentID string) (*DocumentContent, error)
}

// EmbeddingService returns one vector per input text, in input order.
type EmbeddingService interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// ModelEmbeddingService is an EmbeddingService that can also embed with a
// model other than its configured one.
type ModelEmbeddingService interface {
	EmbeddingService
	EmbedModel(ctx context.Context, model string, texts []string) ([][]float64, error)
}

// Artifact is a rendered report.
type Artifact struct {
	Format      string `json:"format"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Location    string `json:"location,omitempty"`
	Size        int64  `json:"size"`
	Data        []byte `json:"-"`
}

// ReportExporter renders a finished job. Failures are logged by the caller and
// never fail the job.
type ReportExporter interface {
	Export(ctx context.Context, format string, job *Job, results []AuditResult) (*Artifact, error)
}

// AuditLevel is the severity of a security audit-log entry.
type AuditLevel string

const (
	AuditInfo    AuditLevel = "INFO"
	AuditWarning AuditLevel = "WARNING"
	AuditError   AuditLevel = "ERROR"
)

// Actions checked by the orchestrator.
const (
	ActionJobRun        = "job:run"
	ActionJobRead       = "job:read"
	ActionJobCancel     = "job:cancel"
	ActionDocumentAudit = "document:audit"
	ActionReportExport  = "report:export"
)

// SecurityService surrounds each pipeline stage with a permission check and an
// audit-log entry.
type SecurityService interface {
	HasPermission(ctx context.Context, action string) bool
	AuditLog(ctx context.Context, action, description, correlationID string, level AuditLevel)
}

// NoopSecurity allows everything and records nothing.
type NoopSecurity struct{}

func (NoopSecurity) HasPermission(context.Context, string) bool { return true }

func (NoopSecurity) AuditLog(context.Context, string, string, string, AuditLevel) {}

// NoopReportExporter discards reports.
type NoopReportExporter struct{}

func (NoopReportExporter) Export(_ context.Context, format string, job *Job, _ []AuditResult) (*Artifact, error) {
	slog.Debug("report export skipped, no exporter configured", "job_id", job.ID, "format", format)
	return nil, nil
}
