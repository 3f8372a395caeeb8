package match

import (
	"context"
	"fmt"
	"log/slog"

	"mercator-hq/auditor/pkg/audit"
)

// lexicalAcceptThreshold is the fallback similarity needed to report a chunk.
const lexicalAcceptThreshold = 0.5

// strongSimilarity separates PASSED from WARNING for embedding matches.
const strongSimilarity = 0.9

// Guard runs a call to an external service, typically through the execution
// gate's concurrency limit and circuit breaker.
type Guard interface {
	CallExternal(ctx context.Context, service string, fn func(ctx context.Context) error) error
}

type directGuard struct{}

func (directGuard) CallExternal(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// SemanticMatcher compares chunk embeddings against the embeddings of the
// rule's queries. Only chunks whose best similarity reaches rule.Threshold
// are reported, as PASSED from 0.9 and WARNING below; a threshold of 0
// reports every chunk. Chunks below the threshold are not reported, so a
// document with no similar passage assembles to NO_MATCH.
//
// A rule's Model is honoured when the embedder implements
// audit.ModelEmbeddingService.
//
// When the embedding service is missing or fails, the matcher falls back to
// LexicalSimilarity. Fallback results are capped at WARNING and carry
// Metadata["fallback"] = true.
type SemanticMatcher struct {
	embedder audit.EmbeddingService
	guard    Guard
	logger   *slog.Logger
}

// NewSemanticMatcher creates a SemanticMatcher. A nil embedder always uses the
// lexical fallback; a nil guard calls the embedder directly.
func NewSemanticMatcher(embedder audit.EmbeddingService, guard Guard, logger *slog.Logger) *SemanticMatcher {
	if guard == nil {
		guard = directGuard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticMatcher{embedder: embedder, guard: guard, logger: logger}
}

func (m *SemanticMatcher) Type() audit.RuleType { return audit.RuleSemantic }

func (m *SemanticMatcher) Match(ctx context.Context, rule *audit.Rule, chunks []audit.DocumentChunk) []audit.MatchResult {
	p, ok := rule.Params.(audit.SemanticParams)
	if !ok {
		return nil
	}
	threshold := rule.Threshold
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = audit.DefaultSemanticBatchSize
	}

	if m.embedder == nil {
		return m.fallback(rule, p, chunks)
	}

	queryVecs, err := m.embed(ctx, p.Model, p.Queries)
	if err != nil {
		m.logger.Warn("query embedding failed, using lexical fallback", "rule_id", rule.ID, "error", err)
		return m.fallback(rule, p, chunks)
	}

	var results []audit.MatchResult
	for off := 0; off < len(chunks); off += batchSize {
		if ctx.Err() != nil {
			return results
		}
		end := off + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[off:end]
		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Text
		}

		vecs, err := m.embed(ctx, p.Model, texts)
		if err != nil {
			m.logger.Warn("chunk embedding failed, using lexical fallback",
				"rule_id", rule.ID,
				"batch_start", off,
				"batch_size", len(batch),
				"error", err,
			)
			results = append(results, m.fallback(rule, p, batch)...)
			continue
		}

		for i := range batch {
			best, query := bestSimilarity(vecs[i], queryVecs, p.Queries)
			if best < threshold {
				continue
			}
			c := &batch[i]
			ev := evidenceAt(c, 0, len(c.Text), audit.MatchTypeSemantic, map[string]any{
				"query":      query,
				"similarity": best,
			})
			res := newResult(rule, c, best, semanticStatus(best), []audit.Evidence{ev})
			res.Threshold = threshold
			res.Metadata = map[string]any{"fallback": false, "query": query}
			results = append(results, res)
		}
	}
	return results
}

// embed calls the embedding service through the guard and checks that one
// vector came back per text.
func (m *SemanticMatcher) embed(ctx context.Context, model string, texts []string) ([][]float64, error) {
	var vecs [][]float64
	err := m.guard.CallExternal(ctx, "embedding", func(ctx context.Context) error {
		var err error
		if me, ok := m.embedder.(audit.ModelEmbeddingService); ok && model != "" {
			vecs, err = me.EmbedModel(ctx, model, texts)
		} else {
			vecs, err = m.embedder.Embed(ctx, texts)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

func (m *SemanticMatcher) fallback(rule *audit.Rule, p audit.SemanticParams, chunks []audit.DocumentChunk) []audit.MatchResult {
	var results []audit.MatchResult
	for i := range chunks {
		c := &chunks[i]
		best, query := 0.0, ""
		for _, q := range p.Queries {
			if s := LexicalSimilarity(q, c.Text); s > best {
				best, query = s, q
			}
		}
		if best < lexicalAcceptThreshold {
			continue
		}
		ev := evidenceAt(c, 0, len(c.Text), audit.MatchTypeSemantic, map[string]any{
			"query":      query,
			"similarity": best,
			"fallback":   true,
		})
		res := newResult(rule, c, best, audit.StatusWarning, []audit.Evidence{ev})
		res.Threshold = lexicalAcceptThreshold
		res.Metadata = map[string]any{"fallback": true, "query": query}
		results = append(results, res)
	}
	return results
}

func bestSimilarity(vec []float64, queryVecs [][]float64, queries []string) (float64, string) {
	best, query := -1.0, ""
	for i, qv := range queryVecs {
		if s := CosineSimilarity(vec, qv); s > best {
			best, query = s, queries[i]
		}
	}
	return best, query
}

// semanticStatus classifies a similarity already at or above the threshold.
func semanticStatus(similarity float64) audit.Status {
	if similarity >= strongSimilarity {
		return audit.StatusPassed
	}
	return audit.StatusWarning
}
