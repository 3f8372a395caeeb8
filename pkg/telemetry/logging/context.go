package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	// JobIDKey is the context key for audit job IDs.
	JobIDKey contextKey = "job_id"

	// DocumentIDKey is the context key for document IDs.
	DocumentIDKey contextKey = "document_id"

	// RuleSetIDKey is the context key for rule set IDs.
	RuleSetIDKey contextKey = "rule_set_id"

	// CorrelationIDKey is the context key for correlation IDs supplied by
	// the caller.
	CorrelationIDKey contextKey = "correlation_id"
)

// WithJobID adds a job ID to the context.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// GetJobID retrieves the job ID from the context.
func GetJobID(ctx context.Context) string {
	return stringValue(ctx, JobIDKey)
}

// WithDocumentID adds a document ID to the context.
func WithDocumentID(ctx context.Context, documentID string) context.Context {
	return context.WithValue(ctx, DocumentIDKey, documentID)
}

// GetDocumentID retrieves the document ID from the context.
func GetDocumentID(ctx context.Context) string {
	return stringValue(ctx, DocumentIDKey)
}

// WithRuleSetID adds a rule set ID to the context.
func WithRuleSetID(ctx context.Context, ruleSetID string) context.Context {
	return context.WithValue(ctx, RuleSetIDKey, ruleSetID)
}

// GetRuleSetID retrieves the rule set ID from the context.
func GetRuleSetID(ctx context.Context) string {
	return stringValue(ctx, RuleSetIDKey)
}

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// GetCorrelationID retrieves the correlation ID from the context.
func GetCorrelationID(ctx context.Context) string {
	return stringValue(ctx, CorrelationIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

var contextKeys = []contextKey{JobIDKey, DocumentIDKey, RuleSetIDKey, CorrelationIDKey}

// extractContextFields returns the identifiers stored in ctx as attributes.
func extractContextFields(ctx context.Context) []slog.Attr {
	var fields []slog.Attr
	for _, key := range contextKeys {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, slog.String(string(key), v))
		}
	}
	return fields
}
