// Package auth authenticates API callers by key and attaches the matching
// security.Principal to the request context.
//
//	validator := auth.NewValidator(cfg.Security.APIKeys)
//	handler = auth.Middleware(validator, auth.DefaultSources, logger)(handler)
//
// Keys are looked up in the sources in order; the first non-empty value is
// validated. Requests without a valid key get 401.
package auth
