package redis

import (
	"context"
	"errors"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// READY-STATUS CACHE
// Fronts the durable result store on the polling path. A miss is normal; the
// query layer falls through to Postgres and re-warms the entry.
// ══════════════════════════════════════════════════════════════════════════════

// statusPayload is the cached representation of a ready status.
type statusPayload struct {
	Count    int       `json:"count"`
	CachedAt time.Time `json:"cached_at"`
}

// StatusCache implements result.StatusCache on Redis.
type StatusCache struct {
	cache *Cache
}

// NewStatusCache creates a new StatusCache.
func NewStatusCache(cache *Cache) *StatusCache {
	return &StatusCache{cache: cache}
}

func statusKey(key candidate.Key) string {
	return PrefixStatus + key.String()
}

// SetReady caches a ready status with the match count.
func (c *StatusCache) SetReady(ctx context.Context, key candidate.Key, count int, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = TTLReadyStatus
	}

	payload := statusPayload{Count: count, CachedAt: time.Now().UTC()}
	if err := c.cache.Set(ctx, statusKey(key), payload, ttl); err != nil {
		return shared.WrapError("result", "SetReady", shared.ErrPersistence,
			"status cache write failed", err)
	}
	return nil
}

// GetReady returns the cached ready count. A miss is never an error.
func (c *StatusCache) GetReady(ctx context.Context, key candidate.Key) (int, bool, error) {
	var payload statusPayload
	err := c.cache.Get(ctx, statusKey(key), &payload)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return 0, false, nil
		}
		return 0, false, shared.WrapError("result", "GetReady", shared.ErrPersistence,
			"status cache read failed", err)
	}
	return payload.Count, true, nil
}

// Invalidate drops the cached status for a key.
func (c *StatusCache) Invalidate(ctx context.Context, key candidate.Key) error {
	if err := c.cache.Delete(ctx, statusKey(key)); err != nil {
		return shared.WrapError("result", "Invalidate", shared.ErrPersistence,
			"status cache delete failed", err)
	}
	return nil
}
