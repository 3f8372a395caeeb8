package match

import (
	"context"
	"log/slog"

	"mercator-hq/auditor/pkg/audit"
)

// KeywordMatcher finds case-insensitive substring occurrences of a rule's
// keywords. Score is the fraction of distinct keywords present in the chunk.
type KeywordMatcher struct {
	logger *slog.Logger
}

// NewKeywordMatcher creates a KeywordMatcher.
func NewKeywordMatcher(logger *slog.Logger) *KeywordMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeywordMatcher{logger: logger}
}

func (m *KeywordMatcher) Type() audit.RuleType { return audit.RuleKeyword }

func (m *KeywordMatcher) Match(ctx context.Context, rule *audit.Rule, chunks []audit.DocumentChunk) []audit.MatchResult {
	p, ok := rule.Params.(audit.KeywordParams)
	if !ok {
		return nil
	}

	var results []audit.MatchResult
	for i := range chunks {
		if ctx.Err() != nil {
			return results
		}
		c := &chunks[i]
		var evidences []audit.Evidence
		found := 0
		for _, kw := range p.Keywords {
			hits := findAll(c.Text, kw)
			if len(hits) > 0 {
				found++
			}
			for _, h := range hits {
				evidences = append(evidences, evidenceAt(c, h.start, h.end, audit.MatchTypeKeyword,
					map[string]any{"keyword": kw}))
			}
		}
		if found == 0 {
			continue
		}
		score := float64(found) / float64(len(p.Keywords))
		res := newResult(rule, c, score, presenceStatus(p.Mode, score, rule.Threshold), evidences)
		res.Metadata = map[string]any{"mode": string(p.Mode), "matched_keywords": found}
		results = append(results, res)
	}
	return results
}
