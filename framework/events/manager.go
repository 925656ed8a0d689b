package events

import (
	"context"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Wildcard listens to every event name.
const Wildcard = "*"

// Separator splits namespace components.
const Separator = "/"

// Listener handles an event. A non-nil return is a result: Trigger
// collects them and TriggerUntil stops at the first one.
type Listener func(ctx context.Context, e *Event) any

// ListenerID identifies a registration for Remove.
type ListenerID uint64

type registration struct {
	id        ListenerID
	namespace string
	name      string
	fn        Listener
}

type observerRegistration struct {
	observer Observer
	types    map[string]bool
}

// Manager is a publish/subscribe registry keyed by event name. Listeners
// are either global or bound to a namespace; namespaced listeners only see
// events raised in that namespace or below it.
type Manager struct {
	mu        sync.RWMutex
	nextID    ListenerID
	listeners []registration
	observers []observerRegistration
	logger    *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates an empty event manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Listen registers fn for every event called name, whatever its scope.
// Use Wildcard to receive all events.
func (m *Manager) Listen(name string, fn Listener) ListenerID {
	return m.add("", name, fn)
}

// ListenNamespace registers fn for events called name raised in namespace
// or one of its children.
//
//	m.ListenNamespace("app/users", "created", audit)
func (m *Manager) ListenNamespace(namespace, name string, fn Listener) ListenerID {
	return m.add(cleanScope(namespace), name, fn)
}

func (m *Manager) add(namespace, name string, fn Listener) ListenerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.listeners = append(m.listeners, registration{id: m.nextID, namespace: namespace, name: name, fn: fn})
	return m.nextID
}

// Remove unregisters a listener and reports whether it was registered.
func (m *Manager) Remove(id ListenerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.listeners, func(r registration) bool { return r.id == id })
	if i < 0 {
		return false
	}
	m.listeners = slices.Delete(m.listeners, i, i+1)
	return true
}

// HasListeners reports whether any listener would see an event called name
// raised in scope.
func (m *Manager) HasListeners(name, scope string) bool {
	return len(m.listenersFor(name, cleanScope(scope))) > 0
}

// Observe registers an observer for the events whose CloudEvent type is in
// types, or for every event when types is empty. Registering the same
// observer ID again replaces it.
func (m *Manager) Observe(o Observer, types ...string) {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = slices.DeleteFunc(m.observers, func(r observerRegistration) bool {
		return r.observer.ObserverID() == o.ObserverID()
	})
	m.observers = append(m.observers, observerRegistration{observer: o, types: set})
}

// Unobserve removes the observer with the given ID.
func (m *Manager) Unobserve(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = slices.DeleteFunc(m.observers, func(r observerRegistration) bool {
		return r.observer.ObserverID() == id
	})
}

// Trigger runs every listener for e and returns their non-nil results in
// order. Global listeners run first, then namespace listeners from the
// event's own scope up to its root.
func (m *Manager) Trigger(ctx context.Context, e *Event) []any {
	var results []any
	m.dispatch(ctx, e, func(result any) bool {
		results = append(results, result)
		return false
	})
	return results
}

// TriggerUntil runs listeners for e until one returns a non-nil result and
// returns it. It returns nil when no listener does.
func (m *Manager) TriggerUntil(ctx context.Context, e *Event) any {
	var found any
	m.dispatch(ctx, e, func(result any) bool {
		found = result
		return true
	})
	return found
}

func (m *Manager) dispatch(ctx context.Context, e *Event, collect func(any) bool) {
	for _, r := range m.listenersFor(e.name, e.scope) {
		if e.stopped || ctx.Err() != nil {
			break
		}
		if result := r.fn(ctx, e); result != nil && collect(result) {
			break
		}
	}
	m.notify(ctx, e)
}

// listenersFor returns the matching listeners in firing order.
func (m *Manager) listenersFor(name, scope string) []registration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []registration
	for _, r := range m.listeners {
		if r.namespace == "" && nameMatches(r.name, name) {
			out = append(out, r)
		}
	}
	for _, ns := range scopeChain(scope) {
		for _, r := range m.listeners {
			if r.namespace == ns && nameMatches(r.name, name) {
				out = append(out, r)
			}
		}
	}
	return out
}

func (m *Manager) notify(ctx context.Context, e *Event) {
	m.mu.RLock()
	observers := slices.Clone(m.observers)
	m.mu.RUnlock()
	if len(observers) == 0 {
		return
	}

	ce, err := ToCloudEvent(e)
	if err != nil {
		m.logger.Error("event data encoding failed", zap.String("event", ce.Type()), zap.Error(err))
	}
	for _, r := range observers {
		if len(r.types) > 0 && !r.types[ce.Type()] {
			continue
		}
		if err := r.observer.OnEvent(ctx, ce); err != nil {
			m.logger.Warn("event observer failed",
				zap.String("observer", r.observer.ObserverID()),
				zap.String("event", ce.Type()),
				zap.Error(err),
			)
		}
	}
}

func nameMatches(registered, name string) bool {
	return registered == Wildcard || registered == name
}

// scopeChain returns scope and its parents, most specific first:
// "app/users/admin" gives app/users/admin, app/users, app.
func scopeChain(scope string) []string {
	if scope == "" {
		return nil
	}
	chain := []string{scope}
	for {
		i := strings.LastIndex(scope, Separator)
		if i <= 0 {
			return chain
		}
		scope = scope[:i]
		chain = append(chain, scope)
	}
}

func cleanScope(scope string) string {
	return strings.Trim(scope, Separator)
}
