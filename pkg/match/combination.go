package match

import (
	"context"
	"log/slog"

	"mercator-hq/auditor/pkg/audit"
)

// CombinationMatcher relates two keyword groups within a chunk.
//
//   - AND: both groups occur; every hit of both is evidence.
//   - OR: either group occurs; every hit of the firing groups is evidence.
//   - NEAR: a hit of A and a hit of B start at most MaxDistance runes apart.
//   - SEQUENCE: a hit of A starts before a hit of B.
//
// NEAR and SEQUENCE emit one evidence per qualifying pair, spanning both hits.
type CombinationMatcher struct {
	logger *slog.Logger
}

// NewCombinationMatcher creates a CombinationMatcher.
func NewCombinationMatcher(logger *slog.Logger) *CombinationMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CombinationMatcher{logger: logger}
}

func (m *CombinationMatcher) Type() audit.RuleType { return audit.RuleCombination }

func (m *CombinationMatcher) Match(ctx context.Context, rule *audit.Rule, chunks []audit.DocumentChunk) []audit.MatchResult {
	p, ok := rule.Params.(audit.CombinationParams)
	if !ok {
		return nil
	}

	var results []audit.MatchResult
	for i := range chunks {
		if ctx.Err() != nil {
			return results
		}
		c := &chunks[i]
		a := findAllTerms(c.Text, p.GroupA)
		b := findAllTerms(c.Text, p.GroupB)

		var evidences []audit.Evidence
		switch p.Operator {
		case audit.OperatorAnd:
			if len(a) > 0 && len(b) > 0 {
				evidences = append(groupEvidence(c, a, "a"), groupEvidence(c, b, "b")...)
			}
		case audit.OperatorOr:
			evidences = append(groupEvidence(c, a, "a"), groupEvidence(c, b, "b")...)
		case audit.OperatorNear:
			for _, ha := range a {
				for _, hb := range b {
					d := runeDistance(c.Text, ha.start, hb.start)
					if d <= p.MaxDistance {
						evidences = append(evidences, pairEvidence(c, ha, hb, d, p.Operator))
					}
				}
			}
		case audit.OperatorSequence:
			for _, ha := range a {
				for _, hb := range b {
					if ha.start < hb.start {
						d := runeDistance(c.Text, ha.start, hb.start)
						evidences = append(evidences, pairEvidence(c, ha, hb, d, p.Operator))
					}
				}
			}
		}
		if len(evidences) == 0 {
			continue
		}
		res := newResult(rule, c, 1.0, presenceStatus(p.Mode, 1.0, rule.Threshold), evidences)
		res.Metadata = map[string]any{"operator": string(p.Operator), "mode": string(p.Mode)}
		results = append(results, res)
	}
	return results
}

func groupEvidence(c *audit.DocumentChunk, hits []hit, group string) []audit.Evidence {
	evs := make([]audit.Evidence, 0, len(hits))
	for _, h := range hits {
		evs = append(evs, evidenceAt(c, h.start, h.end, audit.MatchTypeCombination,
			map[string]any{"keyword": h.term, "group": group}))
	}
	return evs
}

func pairEvidence(c *audit.DocumentChunk, a, b hit, distance int, op audit.CombinationOperator) audit.Evidence {
	start, end := a.start, a.end
	if b.start < start {
		start = b.start
	}
	if b.end > end {
		end = b.end
	}
	return evidenceAt(c, start, end, audit.MatchTypeCombination, map[string]any{
		"keyword_a": a.term,
		"keyword_b": b.term,
		"distance":  distance,
		"operator":  string(op),
	})
}
