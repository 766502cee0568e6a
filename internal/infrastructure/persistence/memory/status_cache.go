package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
)

type statusEntry struct {
	count     int
	expiresAt time.Time
}

// StatusCache is an in-memory result.StatusCache with TTL expiry.
type StatusCache struct {
	mu      sync.RWMutex
	entries map[string]statusEntry
}

// NewStatusCache creates a new in-memory StatusCache.
func NewStatusCache() *StatusCache {
	return &StatusCache{entries: make(map[string]statusEntry)}
}

// SetReady caches a ready status with the match count.
func (c *StatusCache) SetReady(_ context.Context, key candidate.Key, count int, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = statusEntry{count: count, expiresAt: time.Now().Add(ttl)}
	return nil
}

// GetReady returns the cached ready count. A miss is never an error.
func (c *StatusCache) GetReady(_ context.Context, key candidate.Key) (int, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key.String()]
	c.mu.RUnlock()

	if !ok {
		return 0, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key.String())
		c.mu.Unlock()
		return 0, false, nil
	}
	return entry.count, true, nil
}

// Invalidate drops the cached status for a key.
func (c *StatusCache) Invalidate(_ context.Context, key candidate.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key.String())
	return nil
}
