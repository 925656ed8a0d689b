// Package events is the framework's event manager.
//
// Listeners are registered by event name, either globally or against a
// namespace such as "app/users". An event raised with
//
//	m.Trigger(ctx, events.NewEvent("created").From("app/users/admin", u))
//
// runs the global "created" listeners, then those registered for
// app/users/admin, app/users and app, in that order. Any listener may stop
// propagation. After the listeners, every Observer receives the event as a
// CloudEvent.
package events
