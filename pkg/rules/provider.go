package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"mercator-hq/auditor/pkg/audit"
)

// FileProviderConfig configures a FileProvider.
type FileProviderConfig struct {
	// Dir holds the rule set files, one rule set per file.
	Dir string

	// DefaultRuleSetID is served when the requested rule set cannot be
	// loaded. Empty disables the fallback.
	DefaultRuleSetID string
}

// FileProvider serves rule sets from a directory of YAML/JSON files. Loaded
// sets are cached by id together with their version; Reload or the watcher
// replaces the cache when files change.
type FileProvider struct {
	config FileProviderConfig
	logger *slog.Logger

	mu     sync.RWMutex
	sets   map[string]*audit.RuleSet
	paths  map[string]string
	errors []error
	loaded bool
}

// NewFileProvider creates a provider over config.Dir. Files are read lazily
// on the first request.
func NewFileProvider(config FileProviderConfig, logger *slog.Logger) *FileProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileProvider{
		config: config,
		logger: logger.With("component", "rules"),
		sets:   make(map[string]*audit.RuleSet),
		paths:  make(map[string]string),
	}
}

// GetEffectiveRuleSet returns a snapshot of the rule set with the given id.
// When it is unknown or failed to load, the default rule set is returned
// instead (with a warning) if one is configured.
func (p *FileProvider) GetEffectiveRuleSet(ctx context.Context, ruleSetID string) (*audit.RuleSet, error) {
	if err := p.ensureLoaded(); err != nil {
		return p.fallback(ruleSetID, err)
	}

	p.mu.RLock()
	rs, ok := p.sets[ruleSetID]
	p.mu.RUnlock()
	if ok {
		return rs.Snapshot(), nil
	}
	return p.fallback(ruleSetID, audit.NewNotFoundError("rule set", ruleSetID))
}

func (p *FileProvider) fallback(ruleSetID string, cause error) (*audit.RuleSet, error) {
	def := p.config.DefaultRuleSetID
	if def == "" || def == ruleSetID {
		return nil, cause
	}
	p.mu.RLock()
	rs, ok := p.sets[def]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w (default rule set %q unavailable)", cause, def)
	}
	p.logger.Warn("serving default rule set",
		"requested", ruleSetID,
		"default", def,
		"version", rs.Version,
		"error", cause,
	)
	return rs.Snapshot(), nil
}

func (p *FileProvider) ensureLoaded() error {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if loaded {
		return nil
	}
	return p.Reload()
}

// Reload rescans the directory and atomically replaces the cache. A file that
// fails to load is skipped; if it held a previously loaded rule set, the
// previous version stays cached.
func (p *FileProvider) Reload() error {
	entries, err := os.ReadDir(p.config.Dir)
	if err != nil {
		return audit.NewUpstreamError("rules", err)
	}

	p.mu.RLock()
	previous := p.paths
	previousSets := p.sets
	p.mu.RUnlock()

	sets := make(map[string]*audit.RuleSet)
	paths := make(map[string]string)
	var loadErrs []error
	for _, e := range entries {
		path := filepath.Join(p.config.Dir, e.Name())
		if e.IsDir() || !isRuleFile(path) {
			continue
		}
		rs, err := LoadFile(path)
		if err != nil {
			loadErrs = append(loadErrs, err)
			p.logger.Error("failed to load rule set", "path", path, "error", err)
			for id, prevPath := range previous {
				if prevPath == path {
					sets[id], paths[id] = previousSets[id], path
				}
			}
			continue
		}
		if other, dup := paths[rs.ID]; dup {
			loadErrs = append(loadErrs, &LoadError{Path: path, Cause: fmt.Errorf("rule set id %q already defined in %s", rs.ID, other)})
			continue
		}
		for _, perr := range Validate(rs) {
			p.logger.Warn("rule has invalid parameters and will be skipped", "rule_set_id", rs.ID, "error", perr)
		}
		sets[rs.ID] = rs
		paths[rs.ID] = path
	}

	p.mu.Lock()
	p.sets, p.paths, p.errors, p.loaded = sets, paths, loadErrs, true
	p.mu.Unlock()

	p.logger.Info("rule sets loaded", "dir", p.config.Dir, "count", len(sets), "errors", len(loadErrs))
	return nil
}

// RuleSets lists the cached rule set ids and versions, sorted by id.
func (p *FileProvider) RuleSets() []audit.RuleSet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]audit.RuleSet, 0, len(p.sets))
	for _, rs := range p.sets {
		out = append(out, audit.RuleSet{ID: rs.ID, Version: rs.Version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadErrors returns the errors of the last reload.
func (p *FileProvider) LoadErrors() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return errors.Join(p.errors...)
}

// Watch reloads the cache whenever a rule file under the directory changes.
// It blocks until ctx is done.
func (p *FileProvider) Watch(ctx context.Context, w *Watcher) error {
	return w.Run(ctx, func(path string) {
		p.logger.Info("rule file changed, reloading", "path", path)
		if err := p.Reload(); err != nil {
			p.logger.Error("rule reload failed", "error", err)
		}
	})
}

// MemoryProvider serves rule sets registered in code.
type MemoryProvider struct {
	mu   sync.RWMutex
	sets map[string]*audit.RuleSet
}

// NewMemoryProvider creates a provider holding sets. Every rule is compiled.
func NewMemoryProvider(sets ...*audit.RuleSet) *MemoryProvider {
	p := &MemoryProvider{sets: make(map[string]*audit.RuleSet)}
	for _, rs := range sets {
		p.Put(rs)
	}
	return p
}

// Put adds or replaces a rule set.
func (p *MemoryProvider) Put(rs *audit.RuleSet) {
	c := rs.Snapshot()
	for i := range c.Rules {
		c.Rules[i].Compile()
	}
	p.mu.Lock()
	p.sets[c.ID] = c
	p.mu.Unlock()
}

func (p *MemoryProvider) GetEffectiveRuleSet(_ context.Context, ruleSetID string) (*audit.RuleSet, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rs, ok := p.sets[ruleSetID]
	if !ok {
		return nil, audit.NewNotFoundError("rule set", ruleSetID)
	}
	return rs.Snapshot(), nil
}
