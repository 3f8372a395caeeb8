// Package embedding provides EmbeddingService backends for semantic rules.
//
// Two backends exist:
//   - "http": any service implementing POST {endpoint}/embeddings with body
//     {"texts": [...], "model": "..."} and response {"embeddings": [[...]]}
//   - "ollama": a local Ollama server through its Go API client
//
// Both return one vector per input text, in input order. Failures are
// returned as *audit.UpstreamError; the semantic matcher then falls back to
// lexical similarity.
package embedding

import (
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/auditor/pkg/audit"
)

// Backend names.
const (
	BackendHTTP   = "http"
	BackendOllama = "ollama"
)

// Config configures an embedding backend.
type Config struct {
	// Backend selects the client: "http" or "ollama". Empty disables
	// embeddings and semantic rules always use the lexical fallback.
	Backend string `yaml:"backend"`

	// Endpoint is the service base URL.
	Endpoint string `yaml:"endpoint"`

	// Model is sent with every request.
	Model string `yaml:"model"`

	// APIKey is sent as a bearer token by the http backend.
	APIKey string `yaml:"api_key"`

	// Timeout bounds one request.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of retries after the first attempt for
	// transient failures (network errors, 429, 5xx).
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// InitialBackoff is the first retry delay; later delays grow
	// exponentially.
	// Default: 200ms
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxIdleConns bounds pooled connections.
	// Default: 10
	MaxIdleConns int `yaml:"max_idle_conns"`
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 10
	}
}

// New creates the configured backend. It returns (nil, nil) when no backend
// is configured.
func New(config Config, logger *slog.Logger) (audit.EmbeddingService, error) {
	switch config.Backend {
	case "":
		return nil, nil
	case BackendHTTP:
		c, err := NewHTTPClient(config, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendOllama:
		c, err := NewOllamaClient(config, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, &ConfigError{Field: "backend", Message: fmt.Sprintf("unsupported embedding backend %q (supported: http, ollama)", config.Backend)}
	}
}

// ConfigError reports an invalid backend configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("embedding config error [field=%s]: %s", e.Field, e.Message)
}

// StatusError is a non-2xx response from the http backend.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embedding service returned status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

func checkCount(texts []string, vectors [][]float64) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedding service returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return nil
}
