// Package security implements audit.SecurityService with a static role
// policy and a structured audit log.
//
// The caller identity travels in the context (WithPrincipal). When no
// principal is present the configured default role applies, which lets the
// CLI run unattended.
package security

import (
	"context"
	"log/slog"
	"strings"

	"mercator-hq/auditor/pkg/audit"
)

// Principal is the identity a pipeline stage runs as.
type Principal struct {
	ID    string
	Roles []string
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal stored in ctx.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// Config is the static policy.
type Config struct {
	// Enabled turns permission checks on. When false every action is allowed
	// but the audit log is still written.
	Enabled bool `yaml:"enabled"`

	// DefaultRole applies to callers without a principal.
	// Default: "auditor"
	DefaultRole string `yaml:"default_role"`

	// Roles maps a role to the actions it may perform. An action pattern
	// may end in "*" to match a prefix; "*" alone matches everything.
	Roles map[string][]string `yaml:"roles"`
}

// DefaultConfig grants the auditor role every audit action.
func DefaultConfig() Config {
	return Config{
		DefaultRole: "auditor",
		Roles: map[string][]string{
			"admin":   {"*"},
			"auditor": {"job:*", "document:*", "report:*"},
			"viewer":  {"job:read", "report:read"},
		},
	}
}

// Service is the policy-backed SecurityService.
type Service struct {
	config Config
	logger *slog.Logger
}

var _ audit.SecurityService = (*Service)(nil)

// New creates a Service.
func New(config Config, logger *slog.Logger) *Service {
	if config.DefaultRole == "" {
		config.DefaultRole = "auditor"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{config: config, logger: logger.With("component", "security")}
}

// HasPermission reports whether the caller in ctx may perform action.
func (s *Service) HasPermission(ctx context.Context, action string) bool {
	if !s.config.Enabled {
		return true
	}
	roles := []string{s.config.DefaultRole}
	if p, ok := PrincipalFrom(ctx); ok {
		roles = p.Roles
	}
	for _, role := range roles {
		for _, pattern := range s.config.Roles[role] {
			if actionMatches(pattern, action) {
				return true
			}
		}
	}
	return false
}

func actionMatches(pattern, action string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(action, prefix)
	}
	return pattern == action
}

// AuditLog writes one security audit entry.
func (s *Service) AuditLog(ctx context.Context, action, description, correlationID string, level audit.AuditLevel) {
	principal := "anonymous"
	if p, ok := PrincipalFrom(ctx); ok {
		principal = p.ID
	}
	s.logger.Log(ctx, slogLevel(level), description,
		"audit", true,
		"action", action,
		"correlation_id", correlationID,
		"principal", principal,
	)
}

func slogLevel(l audit.AuditLevel) slog.Level {
	switch l {
	case audit.AuditError:
		return slog.LevelError
	case audit.AuditWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
