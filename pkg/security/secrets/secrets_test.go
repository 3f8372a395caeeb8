package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv("AUDITOR_SECRET_MINIO_SECRET_KEY", "s3cr3t")
	p := NewEnvProvider("AUDITOR_SECRET_")

	v, err := p.GetSecret(context.Background(), "minio-secret-key")
	if err != nil || v != "s3cr3t" {
		t.Fatalf("GetSecret() = %q, %v", v, err)
	}
	if _, err := p.GetSecret(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing secret error = %v, want ErrNotFound", err)
	}
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pg-dsn"), []byte("postgres://u:p@db/audit\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "loose"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := NewFileProvider(dir)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		secret  string
		want    string
		wantErr bool
	}{
		{"trimmed value", "pg-dsn", "postgres://u:p@db/audit", false},
		{"insecure mode", "loose", "", true},
		{"missing", "nope", "", true},
		{"traversal", "../pg-dsn", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.GetSecret(context.Background(), tt.secret)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetSecret() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("GetSecret() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := NewFileProvider(filepath.Join(dir, "pg-dsn")); err == nil {
		t.Error("NewFileProvider accepted a file")
	}
}

type countingProvider struct {
	values map[string]string
	calls  int
}

func (p *countingProvider) GetSecret(_ context.Context, name string) (string, error) {
	p.calls++
	if v, ok := p.values[name]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

func (p *countingProvider) Name() string { return "test" }

func TestManager_FallbackAndCache(t *testing.T) {
	first := &countingProvider{values: map[string]string{}}
	second := &countingProvider{values: map[string]string{"api-key": "k"}}
	m := NewManager(first, second)

	for i := 0; i < 2; i++ {
		v, err := m.GetSecret(context.Background(), "api-key")
		if err != nil || v != "k" {
			t.Fatalf("GetSecret() = %q, %v", v, err)
		}
	}
	if second.calls != 1 {
		t.Errorf("second provider called %d times, want 1 (cached)", second.calls)
	}

	m.Clear()
	_, _ = m.GetSecret(context.Background(), "api-key")
	if second.calls != 2 {
		t.Errorf("Clear() did not drop the cache")
	}
}

func TestManager_ResolveReferences(t *testing.T) {
	m := NewManager(&countingProvider{values: map[string]string{"user": "audit", "pass": "pw"}})

	got, err := m.ResolveReferences(context.Background(), "postgres://${secret:user}:${secret:pass}@db/x")
	if err != nil {
		t.Fatal(err)
	}
	if got != "postgres://audit:pw@db/x" {
		t.Errorf("got %q", got)
	}

	got, err = m.ResolveReferences(context.Background(), "key=${secret:missing}")
	if err == nil {
		t.Error("unresolved reference not reported")
	}
	if got != "key=${secret:missing}" {
		t.Errorf("unresolved reference rewritten: %q", got)
	}

	if !HasReference("${secret:x}") || HasReference("plain") {
		t.Error("HasReference misclassified input")
	}
}
