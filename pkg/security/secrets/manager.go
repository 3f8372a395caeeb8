package secrets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
)

var secretRef = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager tries providers in order and caches what it finds.
type Manager struct {
	providers []Provider

	mu    sync.RWMutex
	cache map[string]string
}

// NewManager creates a Manager.
func NewManager(providers ...Provider) *Manager {
	return &Manager{providers: providers, cache: make(map[string]string)}
}

// GetSecret returns the first value a provider has for name.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	m.mu.RLock()
	v, ok := m.cache[name]
	m.mu.RUnlock()
	if ok {
		return v, nil
	}

	var errs []error
	for _, p := range m.providers {
		v, err := p.GetSecret(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		m.mu.Lock()
		m.cache[name] = v
		m.mu.Unlock()
		return v, nil
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: %s (no providers)", ErrNotFound, name)
	}
	return "", fmt.Errorf("resolve secret %q: %w", name, errors.Join(errs...))
}

// ResolveReferences replaces every ${secret:name} in input. Unresolved
// references are left in place and reported together.
func (m *Manager) ResolveReferences(ctx context.Context, input string) (string, error) {
	var errs []error
	out := secretRef.ReplaceAllStringFunc(input, func(ref string) string {
		name := secretRef.FindStringSubmatch(ref)[1]
		v, err := m.GetSecret(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return ref
		}
		return v
	})
	return out, errors.Join(errs...)
}

// HasReference reports whether s contains a secret reference.
func HasReference(s string) bool {
	return secretRef.MatchString(s)
}

// Clear drops cached values, so rotated secrets are read again.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.cache = make(map[string]string)
	m.mu.Unlock()
}
