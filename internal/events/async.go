package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AsyncSink dispatches events to a handler on a background goroutine.
// The buffer is bounded; when full, events are dropped and counted rather
// than blocking the emitter.
type AsyncSink struct {
	ch      chan Event
	handler Handler
	logger  *zap.Logger
	timeout time.Duration

	wg     sync.WaitGroup
	closed chan struct{}
}

// NewAsyncSink creates a sink with the given buffer size and starts its
// dispatch goroutine.
func NewAsyncSink(handler Handler, buffer int, logger *zap.Logger) *AsyncSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &AsyncSink{
		ch:      make(chan Event, buffer),
		handler: handler,
		logger:  logger,
		timeout: 10 * time.Second,
		closed:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Emit queues the event without blocking. Dropped events are logged.
func (s *AsyncSink) Emit(_ context.Context, ev Event) {
	select {
	case s.ch <- ev:
	default:
		s.logger.Warn("event sink buffer full, dropping event",
			zap.String("kind", string(ev.Kind)),
			zap.String("user_id", ev.UserID),
		)
	}
}

// Close stops accepting events and drains the buffer.
func (s *AsyncSink) Close() {
	close(s.closed)
	s.wg.Wait()
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.ch:
			s.dispatch(ev)
		case <-s.closed:
			// Drain what is already queued.
			for {
				select {
				case ev := <-s.ch:
					s.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *AsyncSink) dispatch(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.handler.Handle(ctx, ev); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("kind", string(ev.Kind)),
			zap.String("user_id", ev.UserID),
			zap.Error(err),
		)
	}
}

// SyncSink invokes the handler inline and records every event. Test wiring.
type SyncSink struct {
	handler Handler

	mu     sync.Mutex
	events []Event
}

// NewSyncSink creates a synchronous sink. handler may be nil.
func NewSyncSink(handler Handler) *SyncSink {
	return &SyncSink{handler: handler}
}

// Emit handles the event inline, swallowing handler errors.
func (s *SyncSink) Emit(ctx context.Context, ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	if s.handler != nil {
		_ = s.handler.Handle(ctx, ev)
	}
}

// Events returns a copy of everything emitted so far.
func (s *SyncSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
