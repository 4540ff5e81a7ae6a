package webchat

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubConn struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
	closed bool
}

func (s *stubConn) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail || s.closed {
		return errors.New("closed")
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *stubConn) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *stubConn) SetWriteDeadline(time.Time) error { return nil }

func (s *stubConn) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

func TestConnectionPoolBroadcastDropsFailingConnections(t *testing.T) {
	pool := NewConnectionPool("c1", 0, nil)
	good := &stubConn{}
	bad := &stubConn{fail: true}
	pool.Add(good)
	pool.Add(bad)
	require.Equal(t, 2, pool.Count())

	pool.Broadcast(Frame{Type: FrameSnapshot, ConvID: "c1"})
	require.Equal(t, 1, pool.Count())
	require.Len(t, good.Frames(), 1)
	require.Equal(t, FrameSnapshot, good.Frames()[0].Type)
	require.True(t, bad.closed)
}

func TestConnectionPoolSendToOneIgnoresUnknownConn(t *testing.T) {
	pool := NewConnectionPool("c1", 0, nil)
	a := &stubConn{}
	b := &stubConn{}
	pool.Add(a)

	pool.SendToOne(a, Frame{Type: FrameWelcome})
	pool.SendToOne(b, Frame{Type: FrameWelcome})
	require.Len(t, a.Frames(), 1)
	require.Empty(t, b.Frames())
}

func TestConnectionPoolIdleCallback(t *testing.T) {
	fired := make(chan struct{}, 1)
	pool := NewConnectionPool("c1", 10*time.Millisecond, func() { fired <- struct{}{} })
	conn := &stubConn{}
	pool.Add(conn)
	pool.Remove(conn)
	require.True(t, pool.IsEmpty())

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("idle callback did not fire")
	}
}

func TestConnectionPoolCloseAll(t *testing.T) {
	pool := NewConnectionPool("c1", 0, nil)
	a, b := &stubConn{}, &stubConn{}
	pool.Add(a)
	pool.Add(b)
	pool.CloseAll()
	require.True(t, pool.IsEmpty())
	require.True(t, a.closed)
	require.True(t, b.closed)
}
