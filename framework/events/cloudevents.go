package events

import (
	"context"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// TypePrefix is prepended to event names to form CloudEvent types.
const TypePrefix = "cubex."

// Observer receives every triggered event as a CloudEvent, after the
// listeners have run.
type Observer interface {
	OnEvent(ctx context.Context, event cloudevents.Event) error
	ObserverID() string
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc struct {
	ID string
	Fn func(ctx context.Context, event cloudevents.Event) error
}

// OnEvent calls o.Fn.
func (o ObserverFunc) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return o.Fn(ctx, event)
}

// ObserverID returns o.ID.
func (o ObserverFunc) ObserverID() string { return o.ID }

// ToCloudEvent converts e. The type is TypePrefix plus the event name, the
// source is the scope ("cubex" for unscoped events) and the data is the
// event data as JSON. When the data cannot be encoded the event is returned
// without data, along with the encoding error.
func ToCloudEvent(e *Event) (cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(newEventID())
	ce.SetType(TypePrefix + e.Name())
	ce.SetSource(sourceOf(e))
	ce.SetTime(time.Now())
	ce.SetSpecVersion(cloudevents.VersionV1)
	if e.stopped {
		ce.SetExtension("propagationstopped", true)
	}
	if len(e.data) > 0 {
		if err := ce.SetData(cloudevents.ApplicationJSON, e.Data()); err != nil {
			ce.SetDataContentType("")
			return ce, fmt.Errorf("events: encode %s data: %w", e.Name(), err)
		}
	}
	return ce, nil
}

func sourceOf(e *Event) string {
	if e.scope == "" {
		return "cubex"
	}
	return e.scope
}

// newEventID returns a time-ordered UUIDv7, falling back to v4.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
