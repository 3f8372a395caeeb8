package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/auditor/pkg/security"
)

// Source is one place a key may be found.
type Source struct {
	Header string // header name
	Scheme string // optional scheme prefix, e.g. "Bearer"
}

// DefaultSources accepts "Authorization: Bearer <key>" and "X-API-Key: <key>".
var DefaultSources = []Source{
	{Header: "Authorization", Scheme: "Bearer"},
	{Header: "X-API-Key"},
}

// Middleware rejects requests without a valid key and stores the key's
// principal in the request context.
func Middleware(v *Validator, sources []Source, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractKey(r, sources)
			principal, err := v.Validate(key)
			if err != nil {
				logger.WarnContext(r.Context(), "authentication failed",
					"error", err,
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				http.Error(w, "missing or invalid API key", http.StatusUnauthorized)
				return
			}
			ctx := security.WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractKey(r *http.Request, sources []Source) string {
	for _, s := range sources {
		value := r.Header.Get(s.Header)
		if value == "" {
			continue
		}
		if s.Scheme == "" {
			return value
		}
		if rest, ok := strings.CutPrefix(value, s.Scheme+" "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
