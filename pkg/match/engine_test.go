package match

import (
	"context"
	"testing"
	"time"

	"mercator-hq/auditor/pkg/audit"
)

func chunk(id, text string, start int) audit.DocumentChunk {
	return audit.DocumentChunk{ID: id, Text: text, StartPos: start, EndPos: start + len(text), Type: audit.ChunkParagraph}
}

func rule(t audit.RuleType, threshold float64, params map[string]any) *audit.Rule {
	r := &audit.Rule{ID: "r-" + string(t), Name: string(t), Type: t, Threshold: threshold, Active: true, Parameters: params}
	r.Compile()
	return r
}

type panicMatcher struct{}

func (panicMatcher) Type() audit.RuleType { return audit.RuleKeyword }

func (panicMatcher) Match(context.Context, *audit.Rule, []audit.DocumentChunk) []audit.MatchResult {
	panic("boom")
}

type countingObserver struct {
	calls   int
	results int
}

func (o *countingObserver) ObserveMatch(_ audit.RuleType, results int, _ time.Duration) {
	o.calls++
	o.results += results
}

func TestEngine_InvalidRulesProduceNothing(t *testing.T) {
	e := NewEngine(nil)
	chunks := []audit.DocumentChunk{chunk("c0", "anything at all", 0)}

	tests := []struct {
		name string
		rule *audit.Rule
	}{
		{"invalid regex", rule(audit.RuleRegex, 0, map[string]any{"pattern": "([a-z"})},
		{"missing keywords", rule(audit.RuleKeyword, 0, map[string]any{})},
		{"unknown type", &audit.Rule{ID: "x", Type: audit.RuleType("FUZZY")}},
		{"nil rule", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Match(context.Background(), tt.rule, chunks); len(got) != 0 {
				t.Errorf("Match() = %d results, want 0", len(got))
			}
		})
	}
}

func TestEngine_CompilesUncompiledRule(t *testing.T) {
	e := NewEngine(nil)
	r := &audit.Rule{ID: "k", Type: audit.RuleKeyword, Parameters: map[string]any{"keywords": "policy"}}
	got := e.Match(context.Background(), r, []audit.DocumentChunk{chunk("c0", "The POLICY holder", 0)})
	if len(got) != 1 {
		t.Fatalf("Match() = %d results, want 1", len(got))
	}
	if r.Params != nil {
		t.Error("Match() mutated the caller's rule")
	}
}

func TestEngine_RecoversFromPanickingMatcher(t *testing.T) {
	obs := &countingObserver{}
	e := NewEngine(nil, WithMatcher(panicMatcher{}), WithObserver(obs))
	r := rule(audit.RuleKeyword, 0, map[string]any{"keywords": "a"})

	got := e.Match(context.Background(), r, []audit.DocumentChunk{chunk("c0", "a", 0)})
	if len(got) != 1 || got[0].Status != audit.StatusError {
		t.Fatalf("Match() = %+v, want single ERROR result", got)
	}
	if obs.calls != 1 || obs.results != 1 {
		t.Errorf("observer saw calls=%d results=%d, want 1/1", obs.calls, obs.results)
	}
}
