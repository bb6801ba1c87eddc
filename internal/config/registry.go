package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/novahale/vocalis/pkg/provider/semantic"
	"github.com/novahale/vocalis/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	vad      map[string]func(VADConfig) (vad.Engine, error)
	semantic map[string]func(ProviderEntry) (semantic.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		vad:      make(map[string]func(VADConfig) (vad.Engine, error)),
		semantic: make(map[string]func(ProviderEntry) (semantic.Provider, error)),
	}
}

// RegisterVAD registers a VAD engine constructor under name.
func (r *Registry) RegisterVAD(name string, fn func(VADConfig) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = fn
}

// RegisterSemantic registers a semantic provider constructor under name.
func (r *Registry) RegisterSemantic(name string, fn func(ProviderEntry) (semantic.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.semantic[name] = fn
}

// CreateVAD instantiates the VAD engine selected by cfg.Engine.
func (r *Registry) CreateVAD(cfg VADConfig) (vad.Engine, error) {
	r.mu.RLock()
	fn, ok := r.vad[cfg.Engine]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad %q", ErrProviderNotRegistered, cfg.Engine)
	}
	return fn(cfg)
}

// CreateSemantic instantiates the semantic provider selected by entry.Name.
func (r *Registry) CreateSemantic(entry ProviderEntry) (semantic.Provider, error) {
	r.mu.RLock()
	fn, ok := r.semantic[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: semantic %q", ErrProviderNotRegistered, entry.Name)
	}
	return fn(entry)
}
