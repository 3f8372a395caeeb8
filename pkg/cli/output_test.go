package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"mercator-hq/auditor/pkg/audit"
)

func init() {
	color.NoColor = true
}

func sampleResults() ResultsView {
	return ResultsView{
		{RuleID: "r1", RuleName: "Has clause", DocumentID: "a.txt", Status: audit.StatusPassed, Score: 1,
			Evidences: []audit.Evidence{{Text: "条款"}}, Recommendation: ""},
		{RuleID: "r2", DocumentID: "b.txt", Status: audit.StatusFailed, Score: 0.25,
			Recommendation: "Add the clause, then resubmit"},
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"TEXT", FormatText, false},
		{"json", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"junit", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTextFormatter_Results(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatText).FormatTo(&buf, sampleResults()); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "DOCUMENT") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "Has clause") || !strings.Contains(lines[1], "PASSED") {
		t.Errorf("row 1 = %q", lines[1])
	}
	// Rule name falls back to the rule ID.
	if !strings.Contains(lines[2], "r2") || !strings.Contains(lines[2], "0.25") {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestTextFormatter_NonTabular(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextFormatter{}).FormatTo(&buf, "hello"); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "hello\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestJSONFormatter_UsesUnderlyingValue(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatJSON).FormatTo(&buf, sampleResults()); err != nil {
		t.Fatal(err)
	}
	var got []audit.AuditResult
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not a result array: %v\n%s", err, buf.String())
	}
	if len(got) != 2 || got[1].Status != audit.StatusFailed {
		t.Errorf("got %+v", got)
	}
}

func TestCSVFormatter(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	jobs := JobsView{{
		ID: "j1", Name: "nightly", RuleSetID: "insurance", RuleSetVersion: "v1",
		Status: audit.JobCompleted, Progress: 100, TotalTasks: 3, FailedTasks: 1, CreatedAt: created,
	}}
	var buf bytes.Buffer
	if err := NewFormatter(FormatCSV).FormatTo(&buf, jobs); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0] != "ID,NAME,RULE SET,STATUS,PROGRESS,DOCUMENTS,FAILED,CREATED" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "j1,nightly,insurance@v1,COMPLETED,100%,3,1,") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestCSVFormatter_QuotesFields(t *testing.T) {
	var buf bytes.Buffer
	if err := (&CSVFormatter{}).FormatTo(&buf, sampleResults()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"Add the clause, then resubmit"`) {
		t.Errorf("recommendation not quoted:\n%s", buf.String())
	}
}

func TestCSVFormatter_RejectsNonTabular(t *testing.T) {
	if err := (&CSVFormatter{}).FormatTo(&bytes.Buffer{}, map[string]int{}); err == nil {
		t.Error("expected error for non-tabular data")
	}
}

func TestColorStatus_NoColor(t *testing.T) {
	for _, s := range []string{"PASSED", "FAILED", "WARNING", "RUNNING", "NO_MATCH", "other"} {
		if got := ColorStatus(s); got != s {
			t.Errorf("ColorStatus(%q) = %q with colors disabled", s, got)
		}
	}
}
