package stream

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemorySink keeps the current snapshot and the final display.
type MemorySink struct {
	mu      sync.Mutex
	current Display
	updates int
	finals  []Display
}

func (m *MemorySink) Update(_ context.Context, d Display) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = d
	m.updates++
	return nil
}

func (m *MemorySink) Final(_ context.Context, d Display) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = d
	m.finals = append(m.finals, d)
	return nil
}

func (m *MemorySink) Current() Display {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *MemorySink) Updates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

func (m *MemorySink) Finals() []Display {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Display(nil), m.finals...)
}

// WriterSink prints the final user message, and the markdown panels when Verbose is
// set.
type WriterSink struct {
	W       io.Writer
	Verbose bool
}

func (w WriterSink) Update(_ context.Context, d Display) error {
	if !w.Verbose {
		return nil
	}
	_, err := fmt.Fprintln(w.W, d.Markdown)
	return err
}

func (w WriterSink) Final(_ context.Context, d Display) error {
	if w.Verbose {
		if _, err := fmt.Fprintln(w.W, d.Markdown); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w.W, d.UserMessage)
	return err
}

// Fanout forwards to several sinks and returns the first error.
type Fanout []Sink

func (f Fanout) Update(ctx context.Context, d Display) error {
	var first error
	for _, s := range f {
		if err := s.Update(ctx, d); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f Fanout) Final(ctx context.Context, d Display) error {
	var first error
	for _, s := range f {
		if err := s.Final(ctx, d); err != nil && first == nil {
			first = err
		}
	}
	return first
}
