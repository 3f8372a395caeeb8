package match

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"mercator-hq/auditor/pkg/audit"
)

// keywordEmbedder maps texts containing "returns" to one axis and everything
// else to an orthogonal one.
type keywordEmbedder struct {
	calls int
	err   error
}

func (k *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	k.calls++
	if k.err != nil {
		return nil, k.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if strings.Contains(strings.ToLower(t), "returns") {
			out[i] = []float64{1, 0}
		} else {
			out[i] = []float64{0, 1}
		}
	}
	return out, nil
}

type recordingGuard struct{ services []string }

func (g *recordingGuard) CallExternal(ctx context.Context, service string, fn func(context.Context) error) error {
	g.services = append(g.services, service)
	return fn(ctx)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 1}, []float64{-1, -1}, -1},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
		{"length mismatch", []float64{1, 2}, []float64{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
			if rev := CosineSimilarity(tt.b, tt.a); math.Abs(rev-got) > 1e-12 {
				t.Errorf("not symmetric: %v vs %v", got, rev)
			}
			if got < -1 || got > 1 {
				t.Errorf("out of bounds: %v", got)
			}
		})
	}
}

func TestLexicalSimilarity(t *testing.T) {
	tests := []struct {
		query, text string
		want        float64
	}{
		{"guaranteed returns", "This product offers GUARANTEED RETURNS today", 0.8},
		{"guaranteed returns", "returns are guaranteed", 1.0},
		{"guaranteed returns", "returns vary", 0.5},
		{"保证收益", "本产品收益保证", 1.0},
		{"保证收益", "无关内容", 0},
		{"", "anything", 0},
	}
	for _, tt := range tests {
		if got := LexicalSimilarity(tt.query, tt.text); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("LexicalSimilarity(%q, %q) = %v, want %v", tt.query, tt.text, got, tt.want)
		}
	}
}

func semanticRule(threshold float64) *audit.Rule {
	return rule(audit.RuleSemantic, threshold, map[string]any{"queries": "guaranteed returns", "batch_size": 1})
}

func TestSemanticMatcher_WithEmbeddings(t *testing.T) {
	emb := &keywordEmbedder{}
	guard := &recordingGuard{}
	e := NewEngine(nil, WithMatcher(NewSemanticMatcher(emb, guard, nil)))

	got := e.Match(context.Background(), semanticRule(0.8), []audit.DocumentChunk{
		chunk("c0", "We promise high returns.", 0),
		chunk("c1", "Risk disclosure applies.", 25),
	})
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	res := got[0]
	if res.ChunkID != "c0" || res.Status != audit.StatusPassed {
		t.Errorf("result = %s/%s, want c0/PASSED", res.ChunkID, res.Status)
	}
	if res.Metadata["fallback"] != false {
		t.Errorf("fallback = %v, want false", res.Metadata["fallback"])
	}
	// one call for the queries plus one per single-chunk batch
	if emb.calls != 3 || len(guard.services) != 3 {
		t.Errorf("embed calls = %d, guarded calls = %d, want 3", emb.calls, len(guard.services))
	}
}

func TestSemanticMatcher_FallbackOnFailure(t *testing.T) {
	tests := []struct {
		name     string
		embedder audit.EmbeddingService
	}{
		{"no embedder", nil},
		{"embedder error", &keywordEmbedder{err: errors.New("connection refused")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(nil, WithMatcher(NewSemanticMatcher(tt.embedder, nil, nil)))
			got := e.Match(context.Background(), semanticRule(0.8), []audit.DocumentChunk{
				chunk("c0", "This plan has guaranteed returns.", 0),
				chunk("c1", "Completely unrelated.", 34),
			})
			if len(got) != 1 {
				t.Fatalf("got %d results, want 1", len(got))
			}
			res := got[0]
			if res.Status != audit.StatusWarning {
				t.Errorf("status = %s, want WARNING", res.Status)
			}
			if res.Metadata["fallback"] != true {
				t.Errorf("fallback = %v, want true", res.Metadata["fallback"])
			}
			if res.Evidences[0].Context["fallback"] != true {
				t.Error("evidence not flagged as fallback")
			}
		})
	}
}

func TestSemanticStatus(t *testing.T) {
	if got := semanticStatus(0.95); got != audit.StatusPassed {
		t.Errorf("0.95 -> %s, want PASSED", got)
	}
	if got := semanticStatus(0.8); got != audit.StatusWarning {
		t.Errorf("0.8 -> %s, want WARNING", got)
	}
}

func TestSemanticMatcher_ZeroThresholdReportsEveryChunk(t *testing.T) {
	e := NewEngine(nil, WithMatcher(NewSemanticMatcher(&keywordEmbedder{}, nil, nil)))
	got := e.Match(context.Background(), semanticRule(0), []audit.DocumentChunk{
		chunk("c0", "We promise high returns.", 0),
		chunk("c1", "Risk disclosure applies.", 25),
	})
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[1].ChunkID != "c1" || got[1].Status != audit.StatusWarning || got[1].Threshold != 0 {
		t.Errorf("c1 = %s/%s threshold %v, want WARNING at threshold 0", got[1].ChunkID, got[1].Status, got[1].Threshold)
	}
}

// modelEmbedder records the model each call asked for.
type modelEmbedder struct {
	keywordEmbedder
	models []string
}

func (m *modelEmbedder) EmbedModel(ctx context.Context, model string, texts []string) ([][]float64, error) {
	m.models = append(m.models, model)
	return m.keywordEmbedder.Embed(ctx, texts)
}

func TestSemanticMatcher_RuleModel(t *testing.T) {
	tests := []struct {
		name       string
		params     map[string]any
		wantModels []string
	}{
		{"rule model", map[string]any{"queries": "guaranteed returns", "model": "bge-m3"}, []string{"bge-m3", "bge-m3"}},
		{"configured model", map[string]any{"queries": "guaranteed returns"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &modelEmbedder{}
			e := NewEngine(nil, WithMatcher(NewSemanticMatcher(emb, nil, nil)))
			got := e.Match(context.Background(), rule(audit.RuleSemantic, 0.8, tt.params), []audit.DocumentChunk{
				chunk("c0", "We promise high returns.", 0),
			})
			if len(got) != 1 {
				t.Fatalf("got %d results, want 1", len(got))
			}
			if strings.Join(emb.models, ",") != strings.Join(tt.wantModels, ",") {
				t.Errorf("models = %v, want %v", emb.models, tt.wantModels)
			}
			if emb.calls != 2 {
				t.Errorf("embed calls = %d, want 2", emb.calls)
			}
		})
	}
}
