package events

import (
	"context"
	"fmt"
)

// Mux routes events to a handler by kind. Unknown kinds are an error so
// misconfigured wiring shows up in sink logs instead of vanishing.
type Mux struct {
	handlers map[Kind]Handler
}

// NewMux creates an empty event router.
func NewMux() *Mux {
	return &Mux{handlers: make(map[Kind]Handler)}
}

// Register binds a handler to an event kind. Not safe for concurrent use;
// call during wiring, before the sink starts dispatching.
func (m *Mux) Register(kind Kind, h Handler) {
	m.handlers[kind] = h
}

// Handle dispatches to the registered handler.
func (m *Mux) Handle(ctx context.Context, ev Event) error {
	h, ok := m.handlers[ev.Kind]
	if !ok {
		return fmt.Errorf("no handler registered for event kind %q", ev.Kind)
	}
	return h.Handle(ctx, ev)
}
