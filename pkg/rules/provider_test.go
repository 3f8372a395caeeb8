package rules

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/auditor/pkg/audit"
)

func ruleSetYAML(id, version string) string {
	return "id: " + id + "\nversion: \"" + version + "\"\nrules:\n  - id: r1\n    type: KEYWORD\n    parameters:\n      keywords: [保险]\n"
}

func TestFileProvider_GetEffectiveRuleSet(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "insurance.yaml", ruleSetYAML("insurance", "1"))
	writeFile(t, dir, "notes.txt", "ignored")

	p := NewFileProvider(FileProviderConfig{Dir: dir}, nil)
	rs, err := p.GetEffectiveRuleSet(context.Background(), "insurance")
	if err != nil {
		t.Fatalf("GetEffectiveRuleSet() error = %v", err)
	}
	if rs.Version != "1" || len(rs.Rules) != 1 {
		t.Errorf("got version %q with %d rules", rs.Version, len(rs.Rules))
	}

	// Snapshots are independent of the cache.
	rs.Rules[0].Parameters["keywords"] = []any{"changed"}
	again, _ := p.GetEffectiveRuleSet(context.Background(), "insurance")
	if kws := again.Rules[0].Parameters["keywords"].([]any); kws[0] != "保险" {
		t.Errorf("cached rule set was mutated through a snapshot: %v", kws)
	}

	_, err = p.GetEffectiveRuleSet(context.Background(), "missing")
	if !errors.Is(err, audit.ErrNotFound) {
		t.Errorf("missing rule set error = %v, want ErrNotFound", err)
	}
}

func TestFileProvider_DefaultFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "default.yaml", ruleSetYAML("default", "3"))

	p := NewFileProvider(FileProviderConfig{Dir: dir, DefaultRuleSetID: "default"}, nil)
	rs, err := p.GetEffectiveRuleSet(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("GetEffectiveRuleSet() error = %v", err)
	}
	if rs.ID != "default" || rs.Version != "3" {
		t.Errorf("got %s@%s, want default@3", rs.ID, rs.Version)
	}
}

func TestFileProvider_MissingDirectory(t *testing.T) {
	p := NewFileProvider(FileProviderConfig{Dir: filepath.Join(t.TempDir(), "absent")}, nil)
	_, err := p.GetEffectiveRuleSet(context.Background(), "x")
	if !errors.Is(err, audit.ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestFileProvider_ReloadKeepsPreviousOnBadEdit(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.yaml", ruleSetYAML("a", "1"))
	p := NewFileProvider(FileProviderConfig{Dir: dir}, nil)
	if err := p.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("id: [broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	rs, err := p.GetEffectiveRuleSet(context.Background(), "a")
	if err != nil {
		t.Fatalf("previous version dropped: %v", err)
	}
	if rs.Version != "1" {
		t.Errorf("version = %q, want 1", rs.Version)
	}
	if p.LoadErrors() == nil {
		t.Error("LoadErrors() = nil after a bad edit")
	}

	writeFile(t, dir, "a.yaml", ruleSetYAML("a", "2"))
	if err := p.Reload(); err != nil {
		t.Fatal(err)
	}
	rs, _ = p.GetEffectiveRuleSet(context.Background(), "a")
	if rs.Version != "2" {
		t.Errorf("version after fix = %q, want 2", rs.Version)
	}
	if p.LoadErrors() != nil {
		t.Errorf("LoadErrors() = %v after fix", p.LoadErrors())
	}
}

func TestFileProvider_DuplicateSetID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", ruleSetYAML("same", "1"))
	writeFile(t, dir, "b.yaml", ruleSetYAML("same", "2"))
	p := NewFileProvider(FileProviderConfig{Dir: dir}, nil)
	if err := p.Reload(); err != nil {
		t.Fatal(err)
	}
	if p.LoadErrors() == nil {
		t.Error("duplicate rule set id not reported")
	}
	if got := p.RuleSets(); len(got) != 1 || got[0].ID != "same" {
		t.Errorf("RuleSets() = %+v", got)
	}
}

func TestFileProvider_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", ruleSetYAML("a", "1"))
	p := NewFileProvider(FileProviderConfig{Dir: dir}, nil)
	if err := p.Reload(); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(dir, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx, w) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, dir, "b.yaml", ruleSetYAML("b", "7"))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if rs, err := p.GetEffectiveRuleSet(context.Background(), "b"); err == nil {
			if rs.Version != "7" {
				t.Fatalf("version = %q, want 7", rs.Version)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("new rule set file was not picked up by the watcher")
}

func TestDebouncer_CollapsesBursts(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	calls := make(chan int, 10)
	for i := 0; i < 5; i++ {
		i := i
		d.Trigger(func() { calls <- i })
	}
	select {
	case got := <-calls:
		if got != 4 {
			t.Errorf("debounced call = %d, want last trigger 4", got)
		}
	case <-time.After(time.Second):
		t.Fatal("debounced callback never ran")
	}
	select {
	case extra := <-calls:
		t.Errorf("unexpected extra call %d", extra)
	case <-time.After(80 * time.Millisecond):
	}

	d.Stop()
	d.Trigger(func() { calls <- 99 })
	select {
	case <-calls:
		t.Error("callback ran after Stop")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestMemoryProvider(t *testing.T) {
	p := NewMemoryProvider(&audit.RuleSet{ID: "m", Version: "1", Rules: []audit.Rule{{
		ID: "r", Type: audit.RuleKeyword, Active: true,
		Parameters: map[string]any{"keywords": []any{"x"}},
	}}})
	rs, err := p.GetEffectiveRuleSet(context.Background(), "m")
	if err != nil {
		t.Fatal(err)
	}
	if rs.Rules[0].Params == nil {
		t.Error("rules were not compiled")
	}
	if _, err := p.GetEffectiveRuleSet(context.Background(), "other"); !errors.Is(err, audit.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
