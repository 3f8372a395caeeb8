package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mercator-hq/auditor/pkg/gate"
	"mercator-hq/auditor/pkg/store"
)

func TestCheckReadiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   string
	}{
		{"no checks", nil, "ready"},
		{"all healthy", map[string]CheckFunc{
			"store": StoreCheck(store.NewMemoryStore()),
			"rules": ErrorCheck(func() error { return nil }),
		}, "ready"},
		{"one failing", map[string]CheckFunc{
			"store": StoreCheck(store.NewMemoryStore()),
			"rules": ErrorCheck(func() error { return errors.New("broken rule file") }),
		}, "degraded"},
		{"panicking", map[string]CheckFunc{
			"bad": func(context.Context) error { panic("boom") },
		}, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			for name, check := range tt.checks {
				c.RegisterCheck(name, check)
			}
			got := c.CheckReadiness(context.Background())
			if got.Status != tt.want {
				t.Errorf("Status = %q, want %q (%+v)", got.Status, tt.want, got.Checks)
			}
			if len(got.Checks) != len(tt.checks) {
				t.Errorf("got %d check results, want %d", len(got.Checks), len(tt.checks))
			}
		})
	}
}

func TestCheckReadiness_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.RegisterCheck("slow", func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	})
	got := c.CheckReadiness(context.Background())
	if got.Checks["slow"].Message != ErrCheckTimeout.Error() {
		t.Errorf("slow check = %+v, want timeout", got.Checks["slow"])
	}
}

func TestBreakerCheck(t *testing.T) {
	g := gate.New(gate.Config{Workers: 1, FailureThreshold: 1, RecoveryTimeout: time.Hour})
	defer g.Shutdown(context.Background())

	check := BreakerCheck(g)
	if err := check(context.Background()); err != nil {
		t.Fatalf("closed breaker reported unhealthy: %v", err)
	}

	f, err := gate.Submit(g, context.Background(), "t1", func(context.Context) (struct{}, error) {
		return struct{}{}, errors.New("fail")
	})
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.Wait(context.Background())
	if err := check(context.Background()); err == nil {
		t.Error("open breaker reported healthy")
	}
}

func TestHandlers(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("rules", ErrorCheck(func() error { return errors.New("not loaded") }))

	tests := []struct {
		name    string
		handler http.HandlerFunc
		code    int
	}{
		{"liveness", c.LivenessHandler(), http.StatusOK},
		{"readiness", c.ReadinessHandler(), http.StatusServiceUnavailable},
		{"version", VersionHandler("1.0.0", "abc", ""), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d", rec.Code, tt.code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var body map[string]any
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Errorf("invalid JSON: %v", err)
			}
		})
	}
}
