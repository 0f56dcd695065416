// Package provider hosts the execution capability registry and the
// built-in providers.
package provider

import (
	"sort"
	"sync"

	"github.com/taskweave/taskweave/internal/core"
)

// Registry is the default core.ProviderRegistry implementation.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]core.Provider
	ceilings map[string]int
	defaults int
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCeilings sets per-provider concurrency ceilings.
func WithCeilings(ceilings map[string]int) RegistryOption {
	return func(r *Registry) {
		for name, n := range ceilings {
			r.ceilings[name] = n
		}
	}
}

// WithDefaultCeiling sets the ceiling for providers without explicit
// configuration. 0 means unbounded.
func WithDefaultCeiling(n int) RegistryOption {
	return func(r *Registry) {
		r.defaults = n
	}
}

// NewRegistry creates a registry holding the given providers.
func NewRegistry(providers []core.Provider, opts ...RegistryOption) *Registry {
	r := &Registry{
		byName:   make(map[string]core.Provider, len(providers)),
		ceilings: make(map[string]int),
	}
	for _, p := range providers {
		r.byName[p.Name()] = p
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p core.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[p.Name()] = p
}

// Get resolves a provider by name.
func (r *Registry) Get(name string) (core.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	if !ok {
		return nil, core.ErrNotFound("provider", name)
	}
	return p, nil
}

// List returns the registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ceiling returns the concurrency ceiling for a provider.
func (r *Registry) Ceiling(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n, ok := r.ceilings[name]; ok {
		return n
	}
	return r.defaults
}

// Ceilings returns a copy of all explicit ceilings.
func (r *Registry) Ceilings() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.ceilings))
	for name, n := range r.ceilings {
		out[name] = n
	}
	return out
}
