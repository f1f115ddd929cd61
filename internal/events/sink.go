// Package events defines the fire-and-forget side-effect capability the
// pipeline depends on. Production wiring is asynchronous and best-effort;
// test wiring is synchronous and assertable.
package events

import "context"

// Event is a single fire-and-forget side effect.
type Event struct {
	Kind    Kind
	UserID  string
	Payload map[string]any
}

// Kind enumerates the event types the pipeline emits.
type Kind string

const (
	// KindQueryRecorded carries a search query into the agent context history.
	KindQueryRecorded Kind = "query_recorded"
	// KindDropDelivered triggers a weekly drop push notification.
	KindDropDelivered Kind = "drop_delivered"
)

// Sink accepts events. Emit must never block the caller's hot path and
// must never surface failures; implementations log and move on.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// Handler processes a single event. Handlers are invoked by a sink
// implementation, not by emitters.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, ev Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, ev Event) error { return f(ctx, ev) }
