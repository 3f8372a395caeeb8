package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"mercator-hq/auditor/pkg/audit"
	"mercator-hq/auditor/pkg/telemetry/tracing"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// HTTPClient calls a JSON embedding service.
type HTTPClient struct {
	config Config
	url    string
	client *http.Client
	logger *slog.Logger
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewHTTPClient creates a client for config.Endpoint.
func NewHTTPClient(config Config, logger *slog.Logger) (*HTTPClient, error) {
	if strings.TrimSpace(config.Endpoint) == "" {
		return nil, &ConfigError{Field: "endpoint", Message: "is required for the http backend"}
	}
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConns,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &HTTPClient{
		config: config,
		url:    strings.TrimRight(config.Endpoint, "/") + "/embeddings",
		client: &http.Client{Transport: transport, Timeout: config.Timeout},
		logger: logger.With("component", "embedding", "backend", BackendHTTP),
	}, nil
}

// Embed returns one vector per text with the configured model.
func (c *HTTPClient) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return c.EmbedModel(ctx, "", texts)
}

// EmbedModel is Embed with model overriding the configured one; empty keeps
// it. Transient failures are retried with exponential backoff; 4xx responses
// other than 429 are not.
func (c *HTTPClient) EmbedModel(ctx context.Context, model string, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if model == "" {
		model = c.config.Model
	}
	body, err := json.Marshal(embedRequest{Texts: texts, Model: model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.InitialBackoff
	b.MaxInterval = 10 * c.config.InitialBackoff

	start := time.Now()
	vectors, err := backoff.Retry(ctx, func() ([][]float64, error) {
		return c.do(ctx, body)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.config.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("embedding request failed, will retry", "error", err, "backoff", next)
		}),
	)
	if err != nil {
		return nil, audit.NewUpstreamError("embedding", err)
	}
	if err := checkCount(texts, vectors); err != nil {
		return nil, audit.NewUpstreamError("embedding", err)
	}
	c.logger.Debug("embedded texts", "count", len(texts), "duration", time.Since(start))
	return vectors, nil
}

// do performs one attempt. Non-retryable failures are marked permanent.
func (c *HTTPClient) do(ctx context.Context, body []byte) ([][]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.Inject(ctx, req.Header)
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
		if !serr.Retryable() {
			return nil, backoff.Permanent(serr)
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return nil, backoff.RetryAfter(secs)
		}
		return nil, serr
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return out.Embeddings, nil
}
