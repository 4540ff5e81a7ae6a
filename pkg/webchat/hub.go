package webchat

import (
	"context"
	"sync"
	"time"

	"github.com/go-go-golems/concierge/pkg/ask"
	"github.com/go-go-golems/concierge/pkg/stream"
)

// Hub keeps the connection pool and the pending-question channel of every
// conversation.
type Hub struct {
	mu          sync.Mutex
	pools       map[string]*ConnectionPool
	askers      map[string]*ask.Channel
	idleTimeout time.Duration
}

func NewHub(idleTimeout time.Duration) *Hub {
	return &Hub{
		pools:       map[string]*ConnectionPool{},
		askers:      map[string]*ask.Channel{},
		idleTimeout: idleTimeout,
	}
}

func (h *Hub) Pool(convID string) *ConnectionPool {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pools[convID]
	if !ok {
		p = NewConnectionPool(convID, h.idleTimeout, func() { h.drop(convID) })
		h.pools[convID] = p
	}
	return p
}

// Asker returns the question channel of a conversation; questions are broadcast to
// its websocket clients.
func (h *Hub) Asker(convID string) *ask.Channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.askers[convID]
	if !ok {
		a = &ask.Channel{}
		a.Notify = func(q string) {
			h.Pool(convID).Broadcast(Frame{Type: FrameQuestion, ConvID: convID, Text: q})
		}
		h.askers[convID] = a
	}
	return a
}

func (h *Hub) drop(convID string) {
	h.mu.Lock()
	p := h.pools[convID]
	delete(h.pools, convID)
	if a, ok := h.askers[convID]; ok && !a.Pending() {
		delete(h.askers, convID)
	}
	h.mu.Unlock()
	if p != nil {
		p.CloseAll()
	}
}

// Sink returns a stream.Sink broadcasting snapshots of one turn.
func (h *Hub) Sink(convID, turnID string) stream.Sink {
	return &wsSink{pool: h.Pool(convID), convID: convID, turnID: turnID}
}

type wsSink struct {
	pool   *ConnectionPool
	convID string
	turnID string
}

func (s *wsSink) Update(_ context.Context, d stream.Display) error {
	s.pool.Broadcast(Frame{Type: FrameSnapshot, ConvID: s.convID, TurnID: s.turnID, Display: &d})
	return nil
}

func (s *wsSink) Final(_ context.Context, d stream.Display) error {
	s.pool.Broadcast(Frame{Type: FrameFinal, ConvID: s.convID, TurnID: s.turnID, Display: &d, Text: d.UserMessage})
	return nil
}
