package assembler

import (
	"strings"
	"testing"
	"time"

	"mercator-hq/auditor/pkg/audit"
)

func fixed() []Option {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []Option{
		WithClock(func() time.Time { return at }),
		WithIDGenerator(func() string { return "res-1" }),
	}
}

func TestAssemble_Precedence(t *testing.T) {
	a := New(nil, fixed()...)
	r := &audit.Rule{ID: "r1", Name: "disclosure", Threshold: 0.5}

	tests := []struct {
		name     string
		statuses []audit.Status
		want     audit.Status
	}{
		{"failed beats passed", []audit.Status{audit.StatusPassed, audit.StatusFailed}, audit.StatusFailed},
		{"error beats failed", []audit.Status{audit.StatusFailed, audit.StatusError, audit.StatusWarning}, audit.StatusError},
		{"warning beats passed", []audit.Status{audit.StatusPassed, audit.StatusWarning}, audit.StatusWarning},
		{"all passed", []audit.Status{audit.StatusPassed, audit.StatusPassed}, audit.StatusPassed},
		{"empty", nil, audit.StatusNoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var results []audit.MatchResult
			for _, s := range tt.statuses {
				results = append(results, audit.MatchResult{RuleID: "r1", Status: s})
			}
			got := a.Assemble("job", "doc", r, "v1", results)
			if got.Status != tt.want {
				t.Errorf("Status = %s, want %s", got.Status, tt.want)
			}
		})
	}
}

func TestAssemble_ScoreAndEvidence(t *testing.T) {
	a := New(nil, fixed()...)
	r := &audit.Rule{ID: "r1", Name: "disclosure", Threshold: 0.5}
	results := []audit.MatchResult{
		{Status: audit.StatusPassed, Score: 0.4, Evidences: []audit.Evidence{{Text: "a", MatchType: audit.MatchTypeKeyword}}},
		{Status: audit.StatusPassed, Score: 0.9, Evidences: []audit.Evidence{{Text: "a", MatchType: audit.MatchTypeKeyword}, {Text: "b", MatchType: audit.MatchTypeKeyword}}},
	}
	got := a.Assemble("job", "doc", r, "v1", results)

	if got.Score != 0.9 {
		t.Errorf("Score = %v, want 0.9", got.Score)
	}
	if len(got.Evidences) != 3 {
		t.Errorf("len(Evidences) = %d, want 3 (no dedup)", len(got.Evidences))
	}
	if got.ResultID != "res-1" || got.JobID != "job" || got.DocumentID != "doc" || got.RuleVersion != "v1" {
		t.Errorf("identity fields = %+v", got)
	}
	if got.Threshold != 0.5 {
		t.Errorf("Threshold = %v, want 0.5", got.Threshold)
	}
	if !got.AuditTime.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("AuditTime = %v", got.AuditTime)
	}

	empty := a.Assemble("job", "doc", r, "v1", nil)
	if empty.Score != 0 || empty.Evidences == nil {
		t.Errorf("empty result = %+v, want score 0 and non-nil evidences", empty)
	}
}

func TestAssemble_Recommendation(t *testing.T) {
	a := New(nil, fixed()...)
	r := &audit.Rule{ID: "r1", Name: "disclosure"}

	tests := []struct {
		name     string
		results  []audit.MatchResult
		contains []string
		excludes []string
	}{
		{
			name: "failed keyword",
			results: []audit.MatchResult{{Status: audit.StatusFailed, Evidences: []audit.Evidence{
				{MatchType: audit.MatchTypeKeyword}, {MatchType: audit.MatchTypeKeyword},
			}}},
			contains: []string{"is violated", "2 flagged keyword"},
		},
		{
			name: "format warnings list checks",
			results: []audit.MatchResult{{Status: audit.StatusWarning, Evidences: []audit.Evidence{
				{MatchType: audit.MatchTypeFormat, Context: map[string]any{"check": "email"}},
				{MatchType: audit.MatchTypeFormat, Context: map[string]any{"check": "date"}},
			}}},
			contains: []string{"raised warnings", "2 formatting issue(s): date, email."},
		},
		{
			name: "semantic fallback",
			results: []audit.MatchResult{{Status: audit.StatusWarning, Evidences: []audit.Evidence{
				{MatchType: audit.MatchTypeSemantic, Context: map[string]any{"fallback": true}},
			}}},
			contains: []string{"resemble", "manual review"},
		},
		{
			name: "passed keyword has no guidance",
			results: []audit.MatchResult{{Status: audit.StatusPassed, Evidences: []audit.Evidence{
				{MatchType: audit.MatchTypeKeyword},
			}}},
			contains: []string{"is satisfied"},
			excludes: []string{"flagged keyword"},
		},
		{
			name:     "no match",
			contains: []string{"no relevant content"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Assemble("job", "doc", r, "v1", tt.results).Recommendation
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Recommendation %q missing %q", got, want)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(got, bad) {
					t.Errorf("Recommendation %q should not contain %q", got, bad)
				}
			}
		})
	}
}
