package logging

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if GetJobID(ctx) != "" || GetDocumentID(ctx) != "" {
		t.Fatal("empty context returned values")
	}

	ctx = WithJobID(ctx, "j")
	ctx = WithDocumentID(ctx, "d")
	ctx = WithRuleSetID(ctx, "rs")
	ctx = WithCorrelationID(ctx, "c")

	if GetJobID(ctx) != "j" || GetDocumentID(ctx) != "d" || GetRuleSetID(ctx) != "rs" || GetCorrelationID(ctx) != "c" {
		t.Error("context helpers lost a value")
	}

	fields := extractContextFields(ctx)
	want := []string{"job_id", "document_id", "rule_set_id", "correlation_id"}
	if len(fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(fields), len(want))
	}
	for i, f := range fields {
		if f.Key != want[i] {
			t.Errorf("fields[%d].Key = %s, want %s", i, f.Key, want[i])
		}
	}
}
