// Package match evaluates compliance rules against document chunks.
//
// Each RuleType is served by one Matcher. Matchers are pure with respect to
// their inputs: they never mutate the rule or the chunks and they never return
// an error. A rule whose parameters are invalid, or whose type has no
// registered matcher, produces no results and a warning in the log.
//
// Evidence spans are byte offsets relative to the chunk text. The absolute
// document offset is recorded in Evidence.Context["absolute_start"] and
// Evidence.Context["absolute_end"].
package match

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/auditor/pkg/audit"
)

// Matcher evaluates one kind of rule.
type Matcher interface {
	// Type returns the rule type this matcher serves.
	Type() audit.RuleType

	// Match evaluates rule against chunks and returns the results in chunk
	// order. The rule's Params have already been validated for Type().
	Match(ctx context.Context, rule *audit.Rule, chunks []audit.DocumentChunk) []audit.MatchResult
}

// Observer receives a measurement for every rule evaluation.
type Observer interface {
	ObserveMatch(ruleType audit.RuleType, results int, duration time.Duration)
}

// Engine dispatches rules to their matcher.
type Engine struct {
	mu       sync.RWMutex
	matchers map[audit.RuleType]Matcher
	observer Observer
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver reports every evaluation to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithMatcher registers or replaces a matcher.
func WithMatcher(m Matcher) Option {
	return func(e *Engine) { e.matchers[m.Type()] = m }
}

// NewEngine creates an engine with the lexical and format matchers registered.
// The semantic matcher needs an embedding service and is added with
// WithMatcher(NewSemanticMatcher(...)).
func NewEngine(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "match")
	e := &Engine{
		matchers: make(map[audit.RuleType]Matcher),
		logger:   logger,
	}
	for _, m := range []Matcher{
		NewKeywordMatcher(logger),
		NewPhraseMatcher(logger),
		NewRegexMatcher(logger),
		NewExclusionMatcher(logger),
		NewCombinationMatcher(logger),
		NewFormatMatcher(logger),
		NewSemanticMatcher(nil, nil, logger),
	} {
		e.matchers[m.Type()] = m
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds or replaces the matcher for m.Type().
func (e *Engine) Register(m Matcher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.matchers[m.Type()] = m
}

// Match evaluates rule against chunks. It never fails: a rule with invalid
// parameters or an unknown type yields no results, and a matcher that panics
// yields a single ERROR result.
func (e *Engine) Match(ctx context.Context, rule *audit.Rule, chunks []audit.DocumentChunk) (results []audit.MatchResult) {
	if rule == nil || len(chunks) == 0 {
		return nil
	}

	e.mu.RLock()
	m, ok := e.matchers[rule.Type]
	e.mu.RUnlock()
	if !ok {
		e.logger.Warn("no matcher for rule type", "rule_id", rule.ID, "rule_type", rule.Type)
		return nil
	}

	r := *rule
	if r.Params == nil && r.ParamError == nil {
		r.Compile()
	}
	if r.ParamError != nil {
		e.logger.Warn("skipping rule with invalid parameters",
			"rule_id", r.ID,
			"rule_type", r.Type,
			"error", r.ParamError,
		)
		return nil
	}
	if r.Params.Kind() != r.Type {
		e.logger.Warn("rule parameters do not match rule type",
			"rule_id", r.ID,
			"rule_type", r.Type,
			"params_kind", r.Params.Kind(),
		)
		return nil
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("matcher panicked",
				"rule_id", r.ID,
				"rule_type", r.Type,
				"panic", p,
			)
			results = []audit.MatchResult{{
				RuleID:    r.ID,
				ChunkID:   chunks[0].ID,
				Threshold: r.Threshold,
				Status:    audit.StatusError,
				Metadata:  map[string]any{"error": fmt.Sprint(p)},
			}}
		}
		if e.observer != nil {
			e.observer.ObserveMatch(r.Type, len(results), time.Since(start))
		}
	}()

	return m.Match(ctx, &r, chunks)
}

// presenceStatus classifies a hit of a presence-based matcher.
func presenceStatus(mode audit.Mode, score, threshold float64) audit.Status {
	if mode == audit.ModeForbidden {
		return audit.StatusFailed
	}
	if score >= threshold {
		return audit.StatusPassed
	}
	return audit.StatusWarning
}

// evidenceAt builds evidence for text[start:end] of chunk c.
func evidenceAt(c *audit.DocumentChunk, start, end int, matchType string, ctx map[string]any) audit.Evidence {
	if ctx == nil {
		ctx = make(map[string]any, 2)
	}
	ctx["absolute_start"] = c.StartPos + start
	ctx["absolute_end"] = c.StartPos + end
	return audit.Evidence{
		Text:      c.Text[start:end],
		StartPos:  start,
		EndPos:    end,
		MatchType: matchType,
		Context:   ctx,
	}
}

func newResult(rule *audit.Rule, c *audit.DocumentChunk, score float64, status audit.Status, evidences []audit.Evidence) audit.MatchResult {
	return audit.MatchResult{
		RuleID:    rule.ID,
		ChunkID:   c.ID,
		Text:      c.Text,
		Score:     score,
		Threshold: rule.Threshold,
		Status:    status,
		Evidences: evidences,
	}
}
