package trace

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Recorder receives trace events. Recording never fails the caller.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// LogRecorder writes events to the global zerolog logger at debug level.
type LogRecorder struct {
	Level zerolog.Level
}

func (r LogRecorder) Record(_ context.Context, ev Event) {
	level := r.Level
	if level == zerolog.NoLevel {
		level = zerolog.DebugLevel
	}
	log.WithLevel(level).
		Str("component", "trace").
		Str("event", string(ev.Type)).
		Str("conv_id", ev.ConvID).
		Str("turn_id", ev.TurnID).
		Interface("fields", ev.Fields).
		Msg("trace")
}

// Memory keeps events in order; used by tests and the debug endpoint.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Record(_ context.Context, ev Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// OfType returns recorded events of type t.
func (m *Memory) OfType(t EventType) []Event {
	out := []Event{}
	for _, ev := range m.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Multi fans an event out to several recorders.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, ev Event) {
	for _, r := range m {
		if r != nil {
			r.Record(ctx, ev)
		}
	}
}
