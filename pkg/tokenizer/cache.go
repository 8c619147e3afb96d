package tokenizer

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/contextbuf"
)

// Cached memoises counts by model and content hash. Concurrent misses for the
// same key share one call to the wrapped tokenizer. Errors are not cached.
type Cached struct {
	next    contextbuf.Tokenizer
	maxSize int

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]int
}

func NewCached(next contextbuf.Tokenizer, maxSize int) *Cached {
	return &Cached{next: next, maxSize: maxSize, cache: make(map[string]int)}
}

func cacheKey(text, modelID string) string {
	sum := blake3.Sum256([]byte(text))
	return modelID + ":" + hex.EncodeToString(sum[:])
}

func (c *Cached) Count(ctx context.Context, text, modelID string) (int, error) {
	key := cacheKey(text, modelID)

	c.mu.RLock()
	n, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return n, nil
	}

	// The shared call outlives any one caller, so one caller giving up never
	// fails the others waiting on the same key.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		n, err := c.next.Count(shared, text, modelID)
		if err != nil {
			return 0, err
		}
		c.store(key, n)
		return n, nil
	})
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		count, _ := res.Val.(int)
		return count, nil
	}
}

func (c *Cached) store(key string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple eviction: drop half the entries once full.
	if len(c.cache) >= c.maxSize {
		dropped := 0
		for k := range c.cache {
			if dropped >= max(1, c.maxSize/2) {
				break
			}
			delete(c.cache, k)
			dropped++
		}
	}
	c.cache[key] = n
}

// Len returns the number of cached counts.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
