package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/auditor/pkg/audit"
)

// Attribute keys recorded on audit spans.
const (
	AttrJobID          = "auditor.job.id"
	AttrJobStatus      = "auditor.job.status"
	AttrRuleSetID      = "auditor.rule_set.id"
	AttrRuleSetVersion = "auditor.rule_set.version"
	AttrDocumentID     = "auditor.document.id"
	AttrChunkCount     = "auditor.document.chunks"
	AttrRuleCount      = "auditor.rules.active"
	AttrReportFormat   = "auditor.report.format"
	AttrCompleted      = "auditor.job.completed_tasks"
	AttrFailed         = "auditor.job.failed_tasks"
)

// JobAttributes describes job on its span.
func JobAttributes(job *audit.Job) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrJobID, job.ID),
		attribute.String(AttrRuleSetID, job.RuleSetID),
	}
	if job.RuleSetVersion != "" {
		attrs = append(attrs, attribute.String(AttrRuleSetVersion, job.RuleSetVersion))
	}
	return attrs
}

// SetJobOutcome records the terminal counters of job on span.
func SetJobOutcome(span trace.Span, job *audit.Job) {
	span.SetAttributes(
		attribute.String(AttrJobStatus, string(job.Status)),
		attribute.Int(AttrCompleted, job.CompletedTasks),
		attribute.Int(AttrFailed, job.FailedTasks),
	)
}
