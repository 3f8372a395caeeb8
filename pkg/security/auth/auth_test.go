package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/auditor/pkg/security"
)

func testValidator() *Validator {
	return NewValidator([]APIKey{
		{Key: "key-auditor", Principal: "alice", Roles: []string{"auditor"}},
		{Key: "key-old", Principal: "bob", Roles: []string{"viewer"}, Disabled: true},
	})
}

func TestValidator_Validate(t *testing.T) {
	v := testValidator()
	tests := []struct {
		name    string
		key     string
		want    string
		wantErr error
	}{
		{"valid", "key-auditor", "alice", nil},
		{"disabled", "key-old", "", ErrDisabledKey},
		{"unknown", "nope", "", ErrInvalidKey},
		{"empty", "", "", ErrInvalidKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := v.Validate(tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && p.ID != tt.want {
				t.Errorf("principal = %q, want %q", p.ID, tt.want)
			}
		})
	}
}

func TestValidator_Add(t *testing.T) {
	v := testValidator()
	v.Add(APIKey{Key: "key-old", Principal: "bob", Roles: []string{"viewer"}})
	if v.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", v.Len())
	}
	if _, err := v.Validate("key-old"); err != nil {
		t.Errorf("re-enabled key rejected: %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	var got *security.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = security.PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(testValidator(), DefaultSources, nil)(next)

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		wantID     string
	}{
		{"bearer", "Authorization", "Bearer key-auditor", http.StatusNoContent, "alice"},
		{"x-api-key", "X-API-Key", "key-auditor", http.StatusNoContent, "alice"},
		{"wrong scheme", "Authorization", "Basic key-auditor", http.StatusUnauthorized, ""},
		{"disabled", "X-API-Key", "key-old", http.StatusUnauthorized, ""},
		{"missing", "", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantID != "" && (got == nil || got.ID != tt.wantID) {
				t.Errorf("principal = %+v, want %s", got, tt.wantID)
			}
		})
	}
}
