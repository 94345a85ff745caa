package embed

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Cached memoizes query embeddings in a bounded LRU with a TTL. Keys include
// the model name so a provider switch never serves stale vectors.
type Cached struct {
	inner    Embedder
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List
}

type cachedVector struct {
	key       string
	vec       []float32
	expiresAt time.Time
}

// NewCached wraps inner. A non-positive capacity returns inner unchanged; a
// zero ttl keeps entries until evicted.
func NewCached(inner Embedder, capacity int, ttl time.Duration) Embedder {
	if capacity <= 0 {
		return inner
	}
	return &Cached{
		inner:    inner,
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *Cached) Model() string { return c.inner.Model() }

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(c.inner.Model(), text)
	if vec, ok := c.get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(key, vec)
	return append([]float32(nil), vec...), nil
}

// Len reports the number of cached vectors.
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cached) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	ent := elem.Value.(*cachedVector)
	if c.ttl > 0 && c.now().After(ent.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, key)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return append([]float32(nil), ent.vec...), true
}

func (c *Cached) put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ent := &cachedVector{key: key, vec: append([]float32(nil), vec...), expiresAt: c.now().Add(c.ttl)}
	if elem, ok := c.items[key]; ok {
		elem.Value = ent
		c.order.MoveToFront(elem)
		return
	}
	c.items[key] = c.order.PushFront(ent)
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cachedVector).key)
	}
}

func cacheKey(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(h[:])
}
