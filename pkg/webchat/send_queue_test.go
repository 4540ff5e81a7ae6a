package webchat

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendQueueRunsInOrderOneAtATime(t *testing.T) {
	var (
		mu      sync.Mutex
		seen    []string
		active  atomic.Int32
		overlap atomic.Bool
	)
	q := newSendQueue(func(c queuedChat) {
		if active.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		seen = append(seen, c.Text)
		mu.Unlock()
		active.Add(-1)
	})

	want := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		text := fmt.Sprintf("message %d", i)
		want = append(want, text)
		q.Enqueue(text)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(want)
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	require.Equal(t, want, seen)
	mu.Unlock()
	require.False(t, overlap.Load())
}

func TestSendQueueRestartsAfterDraining(t *testing.T) {
	done := make(chan string, 2)
	q := newSendQueue(func(c queuedChat) { done <- c.Text })

	require.Equal(t, 1, q.Enqueue("first"))
	require.Equal(t, "first", <-done)
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return !q.running
	}, time.Second, time.Millisecond)

	q.Enqueue("second")
	require.Equal(t, "second", <-done)
}
