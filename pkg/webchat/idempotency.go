package webchat

import (
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

func idempotencyKeyFromRequest(r *http.Request, body *ChatRequestBody) string {
	var key string
	if r != nil {
		key = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" {
			key = strings.TrimSpace(r.Header.Get("X-Idempotency-Key"))
		}
	}
	if key == "" && body != nil {
		key = strings.TrimSpace(body.IdempotencyKey)
	}
	if key == "" {
		key = uuid.NewString()
	}
	return key
}

// responseCache remembers the last responses by conversation and idempotency key so
// a retried POST does not process the message twice.
type responseCache struct {
	mu    sync.Mutex
	max   int
	order []string
	items map[string]ChatResponse
}

func newResponseCache(max int) *responseCache {
	if max <= 0 {
		max = 256
	}
	return &responseCache{max: max, items: map[string]ChatResponse{}}
}

func cacheKey(convID, key string) string { return convID + "\x00" + key }

func (c *responseCache) get(convID, key string) (ChatResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.items[cacheKey(convID, key)]
	return r, ok
}

func (c *responseCache) put(convID, key string, r ChatResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := cacheKey(convID, key)
	if _, ok := c.items[k]; !ok {
		c.order = append(c.order, k)
	}
	c.items[k] = r
	for len(c.order) > c.max {
		delete(c.items, c.order[0])
		c.order = c.order[1:]
	}
}
