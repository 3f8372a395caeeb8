package security

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"mercator-hq/auditor/pkg/audit"
)

func TestService_HasPermission(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	s := New(cfg, nil)

	viewer := WithPrincipal(context.Background(), &Principal{ID: "v", Roles: []string{"viewer"}})
	admin := WithPrincipal(context.Background(), &Principal{ID: "a", Roles: []string{"viewer", "admin"}})

	tests := []struct {
		name   string
		ctx    context.Context
		action string
		want   bool
	}{
		{"default role runs jobs", context.Background(), audit.ActionJobRun, true},
		{"default role audits documents", context.Background(), audit.ActionDocumentAudit, true},
		{"default role cannot manage rules", context.Background(), "rules:write", false},
		{"viewer cannot audit", viewer, audit.ActionDocumentAudit, false},
		{"viewer reads reports", viewer, "report:read", true},
		{"admin wildcard", admin, "rules:write", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.HasPermission(tt.ctx, tt.action); got != tt.want {
				t.Errorf("HasPermission(%q) = %v, want %v", tt.action, got, tt.want)
			}
		})
	}
}

func TestService_DisabledAllowsEverything(t *testing.T) {
	s := New(Config{}, nil)
	ctx := WithPrincipal(context.Background(), &Principal{ID: "x"})
	if !s.HasPermission(ctx, "anything") {
		t.Error("disabled policy denied an action")
	}
}

func TestService_AuditLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	s := New(Config{}, logger)

	ctx := WithPrincipal(context.Background(), &Principal{ID: "alice"})
	s.AuditLog(ctx, audit.ActionDocumentAudit, "document audited", "job-1", audit.AuditWarning)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log line %q: %v", buf.String(), err)
	}
	want := map[string]any{
		"level":          "WARN",
		"msg":            "document audited",
		"action":         audit.ActionDocumentAudit,
		"correlation_id": "job-1",
		"principal":      "alice",
		"component":      "security",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
}
