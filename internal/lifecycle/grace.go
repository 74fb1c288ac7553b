package lifecycle

import (
	"sync"
	"time"
)

// rotationCache remembers the pair produced for a just-rotated hash for a short window,
// so a duplicate arriving right after the rotation finished gets the same pair instead of
// tripping replay detection. A zero window disables it.
type rotationCache struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cachedPair
}

type cachedPair struct {
	pair  TokenPair
	until time.Time
}

func newRotationCache(window time.Duration, now func() time.Time) *rotationCache {
	return &rotationCache{window: window, now: now, entries: make(map[string]cachedPair)}
}

func (c *rotationCache) get(hash string) (*TokenPair, bool) {
	if c.window <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[hash]
	if !ok || !c.now().Before(e.until) {
		return nil, false
	}
	p := e.pair
	return &p, true
}

func (c *rotationCache) put(hash string, p *TokenPair) {
	if c.window <= 0 {
		return
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if !now.Before(e.until) {
			delete(c.entries, k)
		}
	}
	c.entries[hash] = cachedPair{pair: *p, until: now.Add(c.window)}
}
