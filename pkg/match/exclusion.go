package match

import (
	"context"
	"log/slog"

	"mercator-hq/auditor/pkg/audit"
)

// ExclusionMatcher fails a document on the first chunk that contains any
// excluded keyword. Only the earliest occurrence in that chunk is reported and
// the remaining chunks are not inspected.
type ExclusionMatcher struct {
	logger *slog.Logger
}

// NewExclusionMatcher creates an ExclusionMatcher.
func NewExclusionMatcher(logger *slog.Logger) *ExclusionMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExclusionMatcher{logger: logger}
}

func (m *ExclusionMatcher) Type() audit.RuleType { return audit.RuleExclusion }

func (m *ExclusionMatcher) Match(ctx context.Context, rule *audit.Rule, chunks []audit.DocumentChunk) []audit.MatchResult {
	p, ok := rule.Params.(audit.ExclusionParams)
	if !ok {
		return nil
	}

	for i := range chunks {
		if ctx.Err() != nil {
			return nil
		}
		c := &chunks[i]
		first := hit{start: -1}
		for _, kw := range p.Keywords {
			start, end, found := indexFold(c.Text, kw, 0)
			if found && (first.start < 0 || start < first.start) {
				first = hit{term: kw, start: start, end: end}
			}
		}
		if first.start < 0 {
			continue
		}
		ev := evidenceAt(c, first.start, first.end, audit.MatchTypeExclusion,
			map[string]any{"keyword": first.term})
		res := newResult(rule, c, 1.0, audit.StatusFailed, []audit.Evidence{ev})
		res.Metadata = map[string]any{"short_circuit": true}
		return []audit.MatchResult{res}
	}
	return nil
}
