package auth

import (
	"crypto/subtle"
	"errors"
	"sync"

	"mercator-hq/auditor/pkg/security"
)

var (
	// ErrInvalidKey is returned for unknown keys.
	ErrInvalidKey = errors.New("invalid API key")
	// ErrDisabledKey is returned for known but disabled keys.
	ErrDisabledKey = errors.New("API key disabled")
)

// APIKey binds a key to a principal.
type APIKey struct {
	Key       string   `yaml:"key"`
	Principal string   `yaml:"principal"`
	Roles     []string `yaml:"roles"`
	Disabled  bool     `yaml:"disabled"`
}

// Validator checks API keys. It is safe for concurrent use.
type Validator struct {
	mu   sync.RWMutex
	keys []APIKey
}

// NewValidator creates a Validator for keys.
func NewValidator(keys []APIKey) *Validator {
	return &Validator{keys: append([]APIKey(nil), keys...)}
}

// Validate returns the principal of key. Keys are compared in constant time.
func (v *Validator) Validate(key string) (*security.Principal, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, k := range v.keys {
		if subtle.ConstantTimeCompare([]byte(k.Key), []byte(key)) != 1 {
			continue
		}
		if k.Disabled {
			return nil, ErrDisabledKey
		}
		return &security.Principal{ID: k.Principal, Roles: append([]string(nil), k.Roles...)}, nil
	}
	return nil, ErrInvalidKey
}

// Add registers or replaces a key.
func (v *Validator) Add(k APIKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.keys {
		if v.keys[i].Key == k.Key {
			v.keys[i] = k
			return
		}
	}
	v.keys = append(v.keys, k)
}

// Len returns the number of registered keys.
func (v *Validator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}
