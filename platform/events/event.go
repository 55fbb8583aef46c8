// Package events is the in-process domain event bus shared by the lead
// engine modules. Events are value types named by EventName; handlers are
// registered per name.
package events

import (
	"context"
	"time"
)

// Event is anything published on the bus.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent is embedded by every domain event for its timestamp.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent stamps an event with the wall clock.
func NewBaseEvent() BaseEvent {
	return At(time.Now())
}

// At stamps an event with a caller-supplied time, so events raised by a
// sweep carry the sweep's clock rather than the publish time.
func At(t time.Time) BaseEvent {
	return BaseEvent{Timestamp: t.UTC()}
}

// Handler consumes one event. A returned error is logged by the bus and
// does not stop other handlers.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error { return f(ctx, event) }

// Bus fans events out to subscribers. Publish runs handlers in the
// background; PublishSync waits and joins their errors.
type Bus interface {
	Publish(ctx context.Context, event Event)
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
