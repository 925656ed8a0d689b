package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/km-arc/cubex/framework/validation"
)

// ── Entries ──────────────────────────────────────────────────────────────────

// entry is one registered service. mu serialises creation of the shared
// instance so concurrent Gets build it once.
type entry struct {
	cfg    *ServiceConfig
	shared bool
	iface  reflect.Type

	mu       sync.Mutex
	instance any
	resolved bool
	bound    bool
}

// RegisterOption adjusts a registration.
type RegisterOption func(*entry)

// Shared overrides the register_service_shared option. Shared services are
// created once per manager; the others are created on every Get.
func Shared(shared bool) RegisterOption {
	return func(e *entry) { e.shared = shared }
}

// WithInterface requires instances to implement iface, which must be an
// interface type.
func WithInterface(iface reflect.Type) RegisterOption {
	return func(e *entry) { e.iface = iface }
}

// Expect is WithInterface for a type parameter.
//
//	m.Register("cache", cfg, container.Expect[cache.Cache]())
func Expect[T any]() RegisterOption {
	return WithInterface(reflect.TypeFor[T]())
}

// ── Manager ──────────────────────────────────────────────────────────────────

// Manager is the service manager: a registry of named, lazily created,
// configured services.
//
// ManagerAware services receive a view of the manager that remembers which
// services are being built, so a dependency cycle resolved through it fails
// with ErrCircularDependency instead of blocking.
type Manager struct {
	*state
	chain []string
}

type state struct {
	mu         sync.RWMutex
	registry   *ProviderRegistry
	entries    map[string]*entry
	onResolved []func(name string, instance any)
	logger     *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a manager that resolves providers from registry.
func NewManager(registry *ProviderRegistry, opts ...Option) *Manager {
	if registry == nil {
		registry = NewProviderRegistry()
	}
	m := &Manager{state: &state{
		registry: registry,
		entries:  make(map[string]*entry),
		logger:   zap.NewNop(),
	}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the provider registry.
func (m *Manager) Registry() *ProviderRegistry { return m.registry }

// Logger returns the manager's logger, for ManagerAware services.
func (m *Manager) Logger() *zap.Logger { return m.logger }

// ── Registration ─────────────────────────────────────────────────────────────

// Register binds name to cfg. Services are shared unless cfg sets
// register_service_shared to false or a Shared option says otherwise.
func (m *Manager) Register(name string, cfg *ServiceConfig, opts ...RegisterOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrServiceAlreadyRegistered, name)
	}
	m.entries[name] = newEntry(cfg, opts)
	m.logger.Debug("service registered", zap.String("service", name), zap.String("provider", providerKey(cfg)))
	return nil
}

// RegisterConfig registers cfg under its register_service_as option, or
// under its section name.
func (m *Manager) RegisterConfig(cfg *ServiceConfig, opts ...RegisterOption) error {
	return m.Register(cfg.String(KeyRegisterAs, cfg.Name()), cfg, opts...)
}

// ReBind replaces the config of name, registering it if needed. A cached
// instance is dropped and rebuilt on the next Get.
func (m *Manager) ReBind(name string, cfg *ServiceConfig, opts ...RegisterOption) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[name] = newEntry(cfg, opts)
	m.logger.Debug("service rebound", zap.String("service", name), zap.String("provider", providerKey(cfg)))
}

// Bind registers a ready instance as a shared service, replacing any
// existing registration of name.
func (m *Manager) Bind(name string, instance any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[name] = boundEntry(m.entries[name], instance)
}

// TempBind binds instance under name until the returned func is called,
// which restores the previous registration (or none). Intended for test
// doubles.
//
//	revert := m.TempBind("mailer", &fakeMailer{})
//	defer revert()
func (m *Manager) TempBind(name string, instance any) (revert func()) {
	m.mu.Lock()
	prev, had := m.entries[name]
	m.entries[name] = boundEntry(prev, instance)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if had {
				m.entries[name] = prev
			} else {
				delete(m.entries, name)
			}
		})
	}
}

// UnRegister removes name and its cached instance. It reports whether name
// was registered. The instance is not closed.
func (m *Manager) UnRegister(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[name]
	delete(m.entries, name)
	return ok
}

// OnResolved registers a callback fired every time an instance is built.
// Callbacks must not resolve the service that triggered them.
func (m *Manager) OnResolved(cb func(name string, instance any)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onResolved = append(m.onResolved, cb)
}

func newEntry(cfg *ServiceConfig, opts []RegisterOption) *entry {
	e := &entry{cfg: cfg, shared: true}
	if cfg != nil {
		e.shared = cfg.Bool(KeyShared, true)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func boundEntry(prev *entry, instance any) *entry {
	e := &entry{shared: true, instance: instance, resolved: true, bound: true}
	if prev != nil {
		e.cfg = prev.cfg
		e.iface = prev.iface
	}
	return e
}

// ── Resolution ───────────────────────────────────────────────────────────────

// Get returns the service registered as name, creating and configuring it
// if needed.
func (m *Manager) Get(name string) (any, error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotRegistered, name)
	}

	if slices.Contains(m.chain, name) {
		// Either a cycle, or a view kept past its build asking for a service
		// that has finished building.
		if !e.shared || !e.mu.TryLock() {
			return nil, fmt.Errorf("%w: %s -> %s", ErrCircularDependency, strings.Join(m.chain, " -> "), name)
		}
	} else if e.shared {
		e.mu.Lock()
	}

	if !e.shared {
		return m.build(name, e)
	}
	defer e.mu.Unlock()
	if e.resolved {
		return e.instance, nil
	}
	instance, err := m.build(name, e)
	if err != nil {
		return nil, err
	}
	e.instance, e.resolved = instance, true
	return instance, nil
}

func (m *Manager) build(name string, e *entry) (any, error) {
	cfg := e.cfg
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoProvider, name)
	}

	instance, err := m.instantiate(name, cfg)
	if err != nil {
		return nil, err
	}

	svc, ok := instance.(Service)
	if !ok {
		return nil, fmt.Errorf("%w: %s: %T does not implement Service", ErrServiceWrongInterface, name, instance)
	}
	if e.iface != nil && !reflect.TypeOf(instance).Implements(e.iface) {
		return nil, fmt.Errorf("%w: %s: %T does not implement %s", ErrServiceWrongInterface, name, instance, e.iface)
	}

	if aware, ok := instance.(ManagerAware); ok {
		aware.SetServiceManager(m.within(name))
	}
	if rules, ok := instance.(ConfigRules); ok {
		if err := validation.Validate(cfg.Strings(), rules.ConfigRules()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
		}
	}
	if err := svc.Configure(cfg); err != nil {
		m.logger.Error("service configure failed", zap.String("service", name), zap.Error(err))
		return nil, fmt.Errorf("container: configure %s: %w", name, err)
	}

	m.logger.Debug("service resolved",
		zap.String("service", name),
		zap.String("type", fmt.Sprintf("%T", instance)),
		zap.Bool("shared", e.shared),
	)
	m.fireResolved(name, instance)
	return instance, nil
}

// within returns a view of m for resolutions made while building name.
func (m *Manager) within(name string) *Manager {
	chain := make([]string, len(m.chain), len(m.chain)+1)
	copy(chain, m.chain)
	return &Manager{state: m.state, chain: append(chain, name)}
}

func (m *Manager) instantiate(name string, cfg *ServiceConfig) (any, error) {
	if key := cfg.Factory(); key != "" {
		f, ok := m.registry.Factory(key)
		if !ok {
			return nil, fmt.Errorf("%w: factory %q for %s", ErrProviderNotFound, key, name)
		}
		instance, err := f.Create(cfg)
		if err != nil {
			return nil, fmt.Errorf("container: factory %q for %s: %w", key, name, err)
		}
		return instance, nil
	}

	key := cfg.Provider()
	if key == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoProvider, name)
	}
	ctor, ok := m.registry.Provider(key)
	if !ok {
		return nil, fmt.Errorf("%w: provider %q for %s", ErrProviderNotFound, key, name)
	}
	return ctor(), nil
}

func (m *Manager) fireResolved(name string, instance any) {
	m.mu.RLock()
	cbs := slices.Clone(m.onResolved)
	m.mu.RUnlock()
	for _, cb := range cbs {
		cb(name, instance)
	}
}

// Resolve returns the service name as a T.
//
//	c, err := container.Resolve[cache.Cache](m, "cache")
func Resolve[T any](m *Manager, name string) (T, error) {
	var zero T
	instance, err := m.Get(name)
	if err != nil {
		return zero, err
	}
	out, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T, not %s", ErrServiceWrongType, name, instance, reflect.TypeFor[T]())
	}
	return out, nil
}

// MustResolve is Resolve that panics on error, for bootstrap code.
func MustResolve[T any](m *Manager, name string) T {
	out, err := Resolve[T](m, name)
	if err != nil {
		panic(err)
	}
	return out
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// Exists reports whether name is registered.
func (m *Manager) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[name]
	return ok
}

// IsShared reports whether name is registered as a shared service.
func (m *Manager) IsShared(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	return ok && e.shared
}

// Resolved reports whether the shared instance of name has been built.
func (m *Manager) Resolved(name string) bool {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolved
}

// Config returns the config name was registered with.
func (m *Manager) Config(name string) (*ServiceConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	if !ok || e.cfg == nil {
		return nil, false
	}
	return e.cfg, true
}

// Names returns the registered service names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.entries))
}

// Close closes every shared instance the manager built that implements
// io.Closer and forgets it. Registrations are kept. Instances given to Bind
// or TempBind belong to the caller and are left alone.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.RLock()
	names := slices.Sorted(maps.Keys(m.entries))
	entries := make([]*entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, m.entries[name])
	}
	m.mu.RUnlock()

	var errs []error
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if e.bound {
			continue
		}
		e.mu.Lock()
		instance := e.instance
		e.instance, e.resolved = nil, false
		e.mu.Unlock()

		if closer, ok := instance.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("container: close %s: %w", names[i], err))
				continue
			}
			m.logger.Debug("service closed", zap.String("service", names[i]))
		}
	}
	return errors.Join(errs...)
}

func providerKey(cfg *ServiceConfig) string {
	if cfg == nil {
		return ""
	}
	if f := cfg.Factory(); f != "" {
		return f
	}
	return cfg.Provider()
}
