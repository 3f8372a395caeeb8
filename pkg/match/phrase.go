package match

import (
	"context"
	"log/slog"

	"mercator-hq/auditor/pkg/audit"
)

// PhraseMatcher finds phrases as whole tokens. A phrase embedded in a longer
// word does not match ("cat" in "catalog"), but a plural suffix is tolerated
// ("cat" in "cats"). The evidence span covers the phrase only.
type PhraseMatcher struct {
	logger *slog.Logger
}

// NewPhraseMatcher creates a PhraseMatcher.
func NewPhraseMatcher(logger *slog.Logger) *PhraseMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PhraseMatcher{logger: logger}
}

func (m *PhraseMatcher) Type() audit.RuleType { return audit.RulePhrase }

func (m *PhraseMatcher) Match(ctx context.Context, rule *audit.Rule, chunks []audit.DocumentChunk) []audit.MatchResult {
	p, ok := rule.Params.(audit.PhraseParams)
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
		for _, phrase := range p.Phrases {
			matched := false
			for _, h := range findAll(c.Text, phrase) {
				if !atTokenBoundary(c.Text, h.start, h.end) {
					continue
				}
				matched = true
				evidences = append(evidences, evidenceAt(c, h.start, h.end, audit.MatchTypePhrase,
					map[string]any{"phrase": phrase}))
			}
			if matched {
				found++
			}
		}
		if found == 0 {
			continue
		}
		score := float64(found) / float64(len(p.Phrases))
		res := newResult(rule, c, score, presenceStatus(p.Mode, score, rule.Threshold), evidences)
		res.Metadata = map[string]any{"mode": string(p.Mode), "matched_phrases": found}
		results = append(results, res)
	}
	return results
}
