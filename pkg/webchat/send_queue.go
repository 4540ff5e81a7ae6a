package webchat

import (
	"sync"
	"time"
)

type queuedChat struct {
	Text       string
	EnqueuedAt time.Time
}

// sendQueue runs the chat frames of one websocket connection one at a time, in
// the order they were read.
type sendQueue struct {
	mu      sync.Mutex
	queue   []queuedChat
	running bool
	run     func(queuedChat)
}

func newSendQueue(run func(queuedChat)) *sendQueue {
	return &sendQueue{run: run}
}

// Enqueue adds text and starts the drain loop if it is idle. It returns the
// position of text in the queue.
func (q *sendQueue) Enqueue(text string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	pos := q.enqueueLocked(queuedChat{Text: text, EnqueuedAt: time.Now()})
	if !q.running {
		q.running = true
		go q.drain()
	}
	return pos
}

func (q *sendQueue) drain() {
	for {
		q.mu.Lock()
		next, ok := q.dequeueLocked()
		if !ok {
			q.running = false
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
		q.run(next)
	}
}

func (q *sendQueue) enqueueLocked(c queuedChat) int {
	q.queue = append(q.queue, c)
	return len(q.queue)
}

func (q *sendQueue) dequeueLocked() (queuedChat, bool) {
	if len(q.queue) == 0 {
		return queuedChat{}, false
	}
	c := q.queue[0]
	q.queue = q.queue[1:]
	return c, true
}
