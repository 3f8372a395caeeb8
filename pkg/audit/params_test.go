package audit

import (
	"errors"
	"testing"
)

func TestParseRuleParams_Valid(t *testing.T) {
	tests := []struct {
		name     string
		ruleType RuleType
		raw      map[string]any
		wantKind RuleType
	}{
		{
			name:     "keyword list",
			ruleType: RuleKeyword,
			raw:      map[string]any{"keywords": []any{"保险", "条款"}},
			wantKind: RuleKeyword,
		},
		{
			name:     "keyword comma string",
			ruleType: RuleKeyword,
			raw:      map[string]any{"keywords": "a, b ,c", "mode": "forbidden"},
			wantKind: RuleKeyword,
		},
		{
			name:     "phrase falls back to keywords key",
			ruleType: RulePhrase,
			raw:      map[string]any{"keywords": []string{"cat"}},
			wantKind: RulePhrase,
		},
		{
			name:     "regex",
			ruleType: RuleRegex,
			raw:      map[string]any{"pattern": `\d+`},
			wantKind: RuleRegex,
		},
		{
			name:     "combination near",
			ruleType: RuleCombination,
			raw: map[string]any{
				"group_a": []any{"x"}, "group_b": []any{"y"},
				"operator": "near", "max_distance": float64(5),
			},
			wantKind: RuleCombination,
		},
		{
			name:     "format defaults",
			ruleType: RuleFormat,
			raw:      map[string]any{},
			wantKind: RuleFormat,
		},
		{
			name:     "semantic",
			ruleType: RuleSemantic,
			raw:      map[string]any{"queries": []any{"guaranteed returns"}, "batch_size": 4},
			wantKind: RuleSemantic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseRuleParams(tt.ruleType, tt.raw)
			if err != nil {
				t.Fatalf("ParseRuleParams() error = %v", err)
			}
			if p.Kind() != tt.wantKind {
				t.Errorf("Kind() = %v, want %v", p.Kind(), tt.wantKind)
			}
		})
	}
}

func TestParseRuleParams_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		ruleType  RuleType
		raw       map[string]any
		wantField string
	}{
		{"missing keywords", RuleKeyword, map[string]any{}, "keywords"},
		{"bad mode", RuleKeyword, map[string]any{"keywords": "a", "mode": "maybe"}, "mode"},
		{"invalid regex", RuleRegex, map[string]any{"pattern": "([a-z"}, "pattern"},
		{"bad operator", RuleCombination, map[string]any{"group_a": "a", "group_b": "b", "operator": "XOR"}, "operator"},
		{"unknown check", RuleFormat, map[string]any{"checks": []any{"zip"}}, "checks"},
		{"negative violations", RuleFormat, map[string]any{"max_violations": -1}, "max_violations"},
		{"zero batch", RuleSemantic, map[string]any{"queries": "q", "batch_size": 0}, "batch_size"},
		{"non-string keyword", RuleExclusion, map[string]any{"keywords": []any{1}}, "keywords[0]"},
		{"unknown type", RuleType("FUZZY"), map[string]any{}, "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRuleParams(tt.ruleType, tt.raw)
			var pe *ParamError
			if !errors.As(err, &pe) {
				t.Fatalf("ParseRuleParams() error = %v, want *ParamError", err)
			}
			if pe.Field != tt.wantField {
				t.Errorf("ParamError.Field = %q, want %q", pe.Field, tt.wantField)
			}
		})
	}
}

func TestRuleCompile_RecordsError(t *testing.T) {
	r := Rule{ID: "r1", Type: RuleRegex, Parameters: map[string]any{"pattern": "(("}}
	r.Compile()
	if r.ParamError == nil {
		t.Fatal("expected ParamError for invalid pattern")
	}
	if r.Params != nil {
		t.Errorf("Params = %v, want nil", r.Params)
	}
}

func TestRegexParams_CaseInsensitive(t *testing.T) {
	p, err := ParseRuleParams(RuleRegex, map[string]any{"pattern": "policy"})
	if err != nil {
		t.Fatal(err)
	}
	re, err := p.(RegexParams).Regexp()
	if err != nil {
		t.Fatal(err)
	}
	if !re.MatchString("POLICY terms") {
		t.Error("expected case-insensitive match")
	}
}

func TestRuleSetSnapshot_IsIndependent(t *testing.T) {
	rs := &RuleSet{ID: "rs", Version: "v1", Rules: []Rule{
		{ID: "r1", Active: true, Parameters: map[string]any{"keywords": []any{"a"}}},
		{ID: "r2", Active: false},
	}}
	snap := rs.Snapshot()
	snap.Rules[0].Parameters["keywords"] = []any{"changed"}
	snap.Rules[0].Name = "changed"

	if rs.Rules[0].Name == "changed" {
		t.Error("snapshot shares rule structs with source")
	}
	if kw := rs.Rules[0].Parameters["keywords"].([]any); kw[0] != "a" {
		t.Errorf("source parameters mutated: %v", kw)
	}
	if got := len(snap.ActiveRules()); got != 1 {
		t.Errorf("ActiveRules() = %d, want 1", got)
	}
}

func TestSummarize(t *testing.T) {
	results := []AuditResult{
		{Status: StatusPassed}, {Status: StatusPassed}, {Status: StatusFailed},
		{Status: StatusWarning}, {Status: StatusNoMatch}, {Status: StatusError},
	}
	s := Summarize(results)
	if s.TotalRules != 6 || s.PassedRules != 2 || s.FailedRules != 2 || s.WarningRules != 1 {
		t.Errorf("Summarize() = %+v", s)
	}
	if s.PassRate != 33.33 {
		t.Errorf("PassRate = %v, want 33.33", s.PassRate)
	}
	if empty := Summarize(nil); empty.PassRate != 0 {
		t.Errorf("empty PassRate = %v, want 0", empty.PassRate)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	if !errors.Is(NewNotFoundError("job", "x"), ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}
	if !errors.Is(&CircuitOpenError{TaskID: "t"}, ErrCircuitOpen) {
		t.Error("CircuitOpenError should match ErrCircuitOpen")
	}
	cause := errors.New("dial tcp: refused")
	up := NewUpstreamError("embedding", cause)
	if !errors.Is(up, ErrUpstreamUnavailable) || !errors.Is(up, cause) {
		t.Error("UpstreamError should match sentinel and cause")
	}
	de := &DocumentError{DocumentID: "d", Stage: "fetch", Cause: NewNotFoundError("document", "d")}
	if !errors.Is(de, ErrNotFound) {
		t.Error("DocumentError should unwrap to its cause")
	}
}

func TestStatusSeverity(t *testing.T) {
	order := []Status{StatusNoMatch, StatusPassed, StatusWarning, StatusFailed, StatusError}
	for i := 1; i < len(order); i++ {
		if order[i].Severity() <= order[i-1].Severity() {
			t.Errorf("%s should outrank %s", order[i], order[i-1])
		}
	}
}
