package events

import "maps"

// Event is one occurrence passed to listeners. Listeners may read its data
// and stop its propagation; the rest is fixed when the event is created.
type Event struct {
	name    string
	scope   string
	source  any
	data    map[string]any
	stopped bool
}

// NewEvent creates an unscoped event. Only global listeners see it.
func NewEvent(name string) *Event {
	return &Event{name: name, data: make(map[string]any)}
}

// From sets the namespace the event was raised in and the value that raised
// it. Namespace listeners registered for scope or any of its parents see the
// event.
//
//	events.NewEvent("created").From("app/users", user)
func (e *Event) From(scope string, source any) *Event {
	e.scope = cleanScope(scope)
	e.source = source
	return e
}

// With sets a data value and returns the event.
func (e *Event) With(key string, value any) *Event {
	e.data[key] = value
	return e
}

// Name returns the event name.
func (e *Event) Name() string { return e.name }

// Scope returns the namespace the event was raised in, or "".
func (e *Event) Scope() string { return e.scope }

// Source returns the value that raised the event.
func (e *Event) Source() any { return e.source }

// Get returns a data value.
func (e *Event) Get(key string) (any, bool) {
	v, ok := e.data[key]
	return v, ok
}

// Data returns a copy of the event data.
func (e *Event) Data() map[string]any { return maps.Clone(e.data) }

// StopPropagation prevents the remaining listeners from running.
func (e *Event) StopPropagation() { e.stopped = true }

// IsPropagationStopped reports whether a listener stopped the event.
func (e *Event) IsPropagationStopped() bool { return e.stopped }
