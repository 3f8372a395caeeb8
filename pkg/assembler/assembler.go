// Package assembler merges the per-chunk match results of one rule over one
// document into a single AuditResult with a recommendation.
package assembler

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"mercator-hq/auditor/pkg/audit"
)

var statusTemplates = map[audit.Status]string{
	audit.StatusPassed:  "Rule %q is satisfied. No action required.",
	audit.StatusWarning: "Rule %q raised warnings. Review the highlighted passages before approval.",
	audit.StatusFailed:  "Rule %q is violated. Revise the highlighted passages and run the audit again.",
	audit.StatusError:   "Rule %q could not be evaluated. Check the rule configuration and run the audit again.",
	audit.StatusNoMatch: "Rule %q found no relevant content in this document.",
}

const fallbackNote = "Similarity was estimated lexically because the embedding service was unavailable; manual review is recommended."

// Assembler builds AuditResults. It is stateless and safe for concurrent use.
type Assembler struct {
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock overrides the audit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// WithIDGenerator overrides result id generation.
func WithIDGenerator(fn func() string) Option {
	return func(a *Assembler) { a.newID = fn }
}

// New creates an Assembler.
func New(logger *slog.Logger, opts ...Option) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Assembler{
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger.With("component", "assembler"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble aggregates results for rule over one document.
//
// Status is the most severe input status (ERROR > FAILED > WARNING > PASSED);
// no input yields NO_MATCH with score 0. Score is the maximum input score and
// evidence lists are concatenated in input order without deduplication.
func (a *Assembler) Assemble(jobID, documentID string, rule *audit.Rule, ruleVersion string, results []audit.MatchResult) audit.AuditResult {
	out := audit.AuditResult{
		ResultID:    a.newID(),
		JobID:       jobID,
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		RuleVersion: ruleVersion,
		DocumentID:  documentID,
		Status:      audit.StatusNoMatch,
		Threshold:   rule.Threshold,
		Evidences:   []audit.Evidence{},
		AuditTime:   a.now(),
	}

	for i, r := range results {
		if i == 0 || r.Status.Severity() > out.Status.Severity() {
			out.Status = r.Status
		}
		if r.Score > out.Score {
			out.Score = r.Score
		}
		out.Evidences = append(out.Evidences, r.Evidences...)
	}

	out.Recommendation = recommend(rule, out.Status, out.Evidences)

	a.logger.Debug("rule assembled",
		"job_id", jobID,
		"document_id", documentID,
		"rule_id", rule.ID,
		"status", out.Status,
		"score", out.Score,
		"evidences", len(out.Evidences),
	)
	return out
}

// recommend renders the status template and appends guidance for the match
// types present in the evidence.
func recommend(rule *audit.Rule, status audit.Status, evidences []audit.Evidence) string {
	name := rule.Name
	if name == "" {
		name = rule.ID
	}
	parts := []string{fmt.Sprintf(statusTemplates[status], name)}

	var keywords, semantic int
	checks := map[string]int{}
	fallback := false
	for _, ev := range evidences {
		switch ev.MatchType {
		case audit.MatchTypeKeyword:
			keywords++
		case audit.MatchTypeFormat:
			check, _ := ev.Context["check"].(string)
			checks[check]++
		case audit.MatchTypeSemantic:
			semantic++
			if fb, _ := ev.Context["fallback"].(bool); fb {
				fallback = true
			}
		}
	}

	if status == audit.StatusWarning || status == audit.StatusFailed {
		if keywords > 0 {
			parts = append(parts, fmt.Sprintf("Check the %d flagged keyword occurrence(s) are used in a compliant context.", keywords))
		}
		if len(checks) > 0 {
			names := make([]string, 0, len(checks))
			total := 0
			for c, n := range checks {
				names = append(names, c)
				total += n
			}
			sort.Strings(names)
			parts = append(parts, fmt.Sprintf("Correct %d formatting issue(s): %s.", total, strings.Join(names, ", ")))
		}
		if semantic > 0 {
			parts = append(parts, fmt.Sprintf("%d passage(s) resemble the rule's reference statements; confirm their meaning.", semantic))
		}
	}
	if fallback {
		parts = append(parts, fallbackNote)
	}
	return strings.Join(parts, " ")
}
