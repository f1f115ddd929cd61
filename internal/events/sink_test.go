package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []Event
	err    error
	block  chan struct{}
}

func (h *recordingHandler) Handle(_ context.Context, ev Event) error {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	return h.err
}

func (h *recordingHandler) handled() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

func TestMux_RoutesByKind(t *testing.T) {
	queries := &recordingHandler{}
	drops := &recordingHandler{}

	mux := NewMux()
	mux.Register(KindQueryRecorded, queries)
	mux.Register(KindDropDelivered, drops)

	if err := mux.Handle(context.Background(), Event{Kind: KindQueryRecorded, UserID: "u1"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := mux.Handle(context.Background(), Event{Kind: KindDropDelivered, UserID: "u2"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if got := queries.handled(); len(got) != 1 || got[0].UserID != "u1" {
		t.Errorf("query handler got %v", got)
	}
	if got := drops.handled(); len(got) != 1 || got[0].UserID != "u2" {
		t.Errorf("drop handler got %v", got)
	}
}

func TestMux_UnknownKindErrors(t *testing.T) {
	mux := NewMux()
	if err := mux.Handle(context.Background(), Event{Kind: "unregistered"}); err == nil {
		t.Fatal("want error for unregistered kind")
	}
}

func TestSyncSink_RecordsAndInvokesInline(t *testing.T) {
	handler := &recordingHandler{}
	sink := NewSyncSink(handler)

	sink.Emit(context.Background(), Event{Kind: KindQueryRecorded, UserID: "u1"})

	if got := sink.Events(); len(got) != 1 || got[0].UserID != "u1" {
		t.Errorf("recorded = %v", got)
	}
	if got := handler.handled(); len(got) != 1 {
		t.Errorf("handled = %v", got)
	}
}

func TestSyncSink_SwallowsHandlerErrors(t *testing.T) {
	handler := &recordingHandler{err: errors.New("boom")}
	sink := NewSyncSink(handler)

	sink.Emit(context.Background(), Event{Kind: KindQueryRecorded})

	if got := sink.Events(); len(got) != 1 {
		t.Errorf("recorded = %v", got)
	}
}

func TestAsyncSink_DeliversBeforeClose(t *testing.T) {
	handler := &recordingHandler{}
	sink := NewAsyncSink(handler, 8, zap.NewNop())

	for i := 0; i < 5; i++ {
		sink.Emit(context.Background(), Event{Kind: KindQueryRecorded, UserID: "u1"})
	}
	sink.Close()

	if got := handler.handled(); len(got) != 5 {
		t.Errorf("handled %d events, want 5", len(got))
	}
}

func TestAsyncSink_DropsWhenBufferFull(t *testing.T) {
	handler := &recordingHandler{block: make(chan struct{})}
	sink := NewAsyncSink(handler, 2, zap.NewNop())

	// First emit is picked up by the dispatcher and parks in the handler;
	// the next two fill the buffer, everything after is dropped.
	for i := 0; i < 10; i++ {
		sink.Emit(context.Background(), Event{Kind: KindQueryRecorded})
	}
	close(handler.block)
	sink.Close()

	if got := handler.handled(); len(got) > 3 {
		t.Errorf("handled %d events, want at most 3 with a full buffer", len(got))
	}
}
