package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"mercator-hq/auditor/pkg/audit"
	"mercator-hq/auditor/pkg/limits"
	"mercator-hq/auditor/pkg/security/auth"
	auditortls "mercator-hq/auditor/pkg/security/tls"
	"mercator-hq/auditor/pkg/store"
	"mercator-hq/auditor/pkg/telemetry/health"
	"mercator-hq/auditor/pkg/telemetry/tracing"
)

// Config controls the HTTP listener.
type Config struct {
	// Address is the listen address.
	// Default: ":8080"
	Address string `yaml:"address"`

	// ReadTimeout bounds reading a request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing a response. Synchronous jobs run inside
	// the request, so keep it above the longest expected job.
	// Default: 10m
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive connections.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies.
	// Default: 1MiB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	TLS auditortls.Config `yaml:"tls"`

	// RateLimit throttles job submissions.
	RateLimit limits.Config `yaml:"rate_limit"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Address:         ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxBodyBytes:    1 << 20,
		RateLimit:       limits.DefaultConfig(),
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
}

// Jobs is the orchestrator surface served by the API.
type Jobs interface {
	CreateJob(ctx context.Context, req audit.JobRequest) (*audit.Job, error)
	GetJobStatus(ctx context.Context, jobID string) (*audit.Job, error)
	GetJobResults(ctx context.Context, jobID string) ([]audit.AuditResult, error)
	ListJobs(ctx context.Context, q store.JobQuery) ([]*audit.Job, error)
	CancelJob(ctx context.Context, jobID string) error
}

// Deps are the collaborators of a Server. Jobs is required.
type Deps struct {
	Jobs Jobs

	// Health serves /health and /ready. Nil serves liveness only.
	Health *health.Checker

	// Metrics is mounted at MetricsPath when both are set.
	Metrics     http.Handler
	MetricsPath string

	// Auth protects /v1 routes. Nil leaves them open.
	Auth *auth.Validator

	// Limiter throttles POST /v1/jobs per principal or client host. Nil
	// disables throttling.
	Limiter *limits.Limiter

	Version, Commit, BuildTime string

	Logger *slog.Logger
}

// Server is the audit HTTP API.
type Server struct {
	config Config
	deps   Deps
	logger *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New creates a Server.
func New(config Config, deps Deps) (*Server, error) {
	if deps.Jobs == nil {
		return nil, errors.New("server: Jobs is required")
	}
	if err := config.TLS.Validate(); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	config.applyDefaults()
	if deps.Health == nil {
		deps.Health = health.New(0)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{config: config, deps: deps, logger: logger.With("component", "server")}, nil
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	h := &jobHandlers{jobs: s.deps.Jobs, limiter: s.deps.Limiter, maxBody: s.config.MaxBodyBytes, logger: s.logger}
	api.HandleFunc("POST /v1/jobs", h.create)
	api.HandleFunc("GET /v1/jobs", h.list)
	api.HandleFunc("GET /v1/jobs/{id}", h.get)
	api.HandleFunc("GET /v1/jobs/{id}/results", h.results)
	api.HandleFunc("DELETE /v1/jobs/{id}", h.cancel)

	var apiHandler http.Handler = api
	if s.deps.Auth != nil {
		apiHandler = auth.Middleware(s.deps.Auth, auth.DefaultSources, s.logger)(apiHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/", apiHandler)
	mux.HandleFunc("GET /health", s.deps.Health.LivenessHandler())
	mux.HandleFunc("GET /ready", s.deps.Health.ReadinessHandler())
	mux.HandleFunc("GET /version", health.VersionHandler(s.deps.Version, s.deps.Commit, s.deps.BuildTime))
	if s.deps.Metrics != nil && s.deps.MetricsPath != "" {
		mux.Handle("GET "+s.deps.MetricsPath, s.deps.Metrics)
	}

	var handler http.Handler = mux
	handler = tracing.HTTPMiddleware(handler)
	handler = loggingMiddleware(s.logger)(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	return handler
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	if s.config.TLS.Enabled {
		reloader := auditortls.NewCertificateReloader(s.config.TLS.CertFile, s.config.TLS.KeyFile, s.config.TLS.ReloadInterval, s.logger)
		if err := reloader.Start(ctx); err != nil {
			ln.Close()
			return fmt.Errorf("configure TLS: %w", err)
		}
		tc, err := s.config.TLS.ServerConfig(reloader)
		if err != nil {
			ln.Close()
			return fmt.Errorf("configure TLS: %w", err)
		}
		srv.TLSConfig = tc
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting audit API server",
			"address", ln.Addr().String(),
			"tls_enabled", s.config.TLS.Enabled,
			"auth_enabled", s.deps.Auth != nil,
		)
		var err error
		if s.config.TLS.Enabled {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	}
}

// Addr returns the listen address once serving.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("audit API server stopped")
	return nil
}
