package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a provider from operator keyword arguments.
type Factory func(config map[string]any) (Provider, error)

// Registry resolves provider names to providers. Factories build a provider
// the first time its name is requested; the result is reused afterwards.
type Registry struct {
	providers map[string]Provider
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		factories: make(map[string]Factory),
	}
}

// NewDefaultRegistry creates a registry with the built-in factories.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterFactory("openai", openAIFactory)
	return r
}

// Register registers a ready provider under name.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// RegisterFactory registers a lazily built provider under name.
func (r *Registry) RegisterFactory(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Resolve returns the provider registered under name, building it from its
// factory with config on first use.
func (r *Registry) Resolve(name string, config map[string]any) (Provider, error) {
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("provider '%s' not found", name)
	}
	p, err := f(config)
	if err != nil {
		return nil, fmt.Errorf("build provider '%s': %w", name, err)
	}
	r.providers[name] = p
	return p, nil
}

// List returns every registered provider and factory name.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for name := range r.providers {
		seen[name] = true
	}
	for name := range r.factories {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
