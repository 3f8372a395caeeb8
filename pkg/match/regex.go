package match

import (
	"context"
	"log/slog"

	"mercator-hq/auditor/pkg/audit"
)

// RegexMatcher reports every non-empty, non-overlapping match of the rule's
// pattern. Patterns are matched case-insensitively.
type RegexMatcher struct {
	logger *slog.Logger
}

// NewRegexMatcher creates a RegexMatcher.
func NewRegexMatcher(logger *slog.Logger) *RegexMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegexMatcher{logger: logger}
}

func (m *RegexMatcher) Type() audit.RuleType { return audit.RuleRegex }

func (m *RegexMatcher) Match(ctx context.Context, rule *audit.Rule, chunks []audit.DocumentChunk) []audit.MatchResult {
	p, ok := rule.Params.(audit.RegexParams)
	if !ok {
		return nil
	}
	re, err := p.Regexp()
	if err != nil {
		m.logger.Warn("invalid regex pattern", "rule_id", rule.ID, "pattern", p.Pattern, "error", err)
		return nil
	}

	var results []audit.MatchResult
	for i := range chunks {
		if ctx.Err() != nil {
			return results
		}
		c := &chunks[i]
		var evidences []audit.Evidence
		for _, loc := range re.FindAllStringIndex(c.Text, -1) {
			if loc[0] == loc[1] {
				continue
			}
			evidences = append(evidences, evidenceAt(c, loc[0], loc[1], audit.MatchTypeRegex,
				map[string]any{"pattern": p.Pattern}))
		}
		if len(evidences) == 0 {
			continue
		}
		res := newResult(rule, c, 1.0, presenceStatus(p.Mode, 1.0, rule.Threshold), evidences)
		res.Metadata = map[string]any{"mode": string(p.Mode), "matches": len(evidences)}
		results = append(results, res)
	}
	return results
}
