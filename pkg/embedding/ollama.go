package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"mercator-hq/auditor/pkg/audit"
)

// OllamaClient embeds texts with a local Ollama server.
type OllamaClient struct {
	config Config
	client *api.Client
	logger *slog.Logger
}

// NewOllamaClient creates a client. Endpoint defaults to
// http://localhost:11434.
func NewOllamaClient(config Config, logger *slog.Logger) (*OllamaClient, error) {
	config.applyDefaults()
	if config.Endpoint == "" {
		config.Endpoint = "http://localhost:11434"
	}
	if config.Model == "" {
		return nil, &ConfigError{Field: "model", Message: "is required for the ollama backend"}
	}
	base, err := url.Parse(config.Endpoint)
	if err != nil {
		return nil, &ConfigError{Field: "endpoint", Message: err.Error()}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{
		config: config,
		client: api.NewClient(base, &http.Client{Timeout: config.Timeout}),
		logger: logger.With("component", "embedding", "backend", BackendOllama),
	}, nil
}

// Embed requests one embedding per text.
func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return c.EmbedModel(ctx, "", texts)
}

// EmbedModel is Embed with model overriding the configured one; empty keeps
// it.
func (c *OllamaClient) EmbedModel(ctx context.Context, model string, texts []string) ([][]float64, error) {
	if model == "" {
		model = c.config.Model
	}
	vectors := make([][]float64, 0, len(texts))
	for i, text := range texts {
		resp, err := c.client.Embeddings(ctx, &api.EmbeddingRequest{
			Model:  model,
			Prompt: text,
		})
		if err != nil {
			return nil, audit.NewUpstreamError("embedding", fmt.Errorf("text %d: %w", i, err))
		}
		if len(resp.Embedding) == 0 {
			return nil, audit.NewUpstreamError("embedding", fmt.Errorf("text %d: ollama returned empty embedding", i))
		}
		vectors = append(vectors, resp.Embedding)
	}
	c.logger.Debug("embedded texts", "count", len(texts), "model", model)
	return vectors, nil
}
