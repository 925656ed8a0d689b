package container

import (
	"maps"
	"slices"
	"sync"

	"github.com/km-arc/cubex/framework/validation"
)

// ── Capabilities ─────────────────────────────────────────────────────────────

// Service is the base capability of every managed service. Configure is
// called once per instance, before the instance is handed out.
type Service interface {
	Configure(cfg *ServiceConfig) error
}

// ManagerAware services receive the manager before Configure, so they can
// look up the services they depend on. Dependencies must be resolved through
// this manager for cycles to be reported.
type ManagerAware interface {
	SetServiceManager(m *Manager)
}

// ConfigRules services declare validation rules for their options. A config
// that fails them never reaches Configure.
type ConfigRules interface {
	ConfigRules() validation.Rules
}

// Constructor returns a new, unconfigured provider instance.
type Constructor func() any

// Factory builds a service from its config, for providers that cannot be
// created with a plain constructor.
type Factory interface {
	Create(cfg *ServiceConfig) (any, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(cfg *ServiceConfig) (any, error)

// Create calls f.
func (f FactoryFunc) Create(cfg *ServiceConfig) (any, error) { return f(cfg) }

// ── ProviderRegistry ─────────────────────────────────────────────────────────

// ProviderRegistry maps the provider and factory keys used in service
// configs to code. Everything a config can name has to be registered here
// first.
//
//	reg := container.NewProviderRegistry()
//	reg.Provide("cache.ephemeral", func() any { return cache.NewEphemeral() })
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Constructor
	factories map[string]Factory
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]Constructor),
		factories: make(map[string]Factory),
	}
}

// Provide registers a constructor under key, replacing any previous one.
func (r *ProviderRegistry) Provide(key string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[key] = c
}

// ProvideFactory registers a factory under key, replacing any previous one.
func (r *ProviderRegistry) ProvideFactory(key string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = f
}

// Provider returns the constructor registered under key.
func (r *ProviderRegistry) Provider(key string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.providers[key]
	return c, ok
}

// Factory returns the factory registered under key.
func (r *ProviderRegistry) Factory(key string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[key]
	return f, ok
}

// Providers returns the registered provider keys, sorted.
func (r *ProviderRegistry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.providers))
}

// Factories returns the registered factory keys, sorted.
func (r *ProviderRegistry) Factories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}
