package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROCESSING LEASE STORE
// One lease per (email, index_number, category) key. SET NX PX makes the
// acquire atomic; the release compares the owner token server-side so a
// worker can never free a lease that expired and was re-acquired by another.
// ══════════════════════════════════════════════════════════════════════════════

// releaseScript deletes the lease only when the stored owner token matches.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// LeaseStore implements result.LeaseStore on Redis.
type LeaseStore struct {
	cache *Cache
}

// NewLeaseStore creates a new LeaseStore.
func NewLeaseStore(cache *Cache) *LeaseStore {
	return &LeaseStore{cache: cache}
}

func leaseKey(key candidate.Key) string {
	return PrefixLock + key.String()
}

// Acquire takes the lease with SET NX PX. Returns false without error when
// another owner holds it.
func (s *LeaseStore) Acquire(ctx context.Context, key candidate.Key, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = TTLProcessingLease
	}

	ok, err := s.cache.Client().SetNX(ctx, leaseKey(key), owner, ttl).Result()
	if err != nil {
		return false, shared.WrapError("fulfillment", "Acquire", shared.ErrPersistence,
			"lease acquire failed", err)
	}
	return ok, nil
}

// Release frees the lease if and only if the owner token matches. Releasing
// an expired or re-acquired lease is a no-op.
func (s *LeaseStore) Release(ctx context.Context, key candidate.Key, owner string) error {
	if err := releaseScript.Run(ctx, s.cache.Client(), []string{leaseKey(key)}, owner).Err(); err != nil {
		return shared.WrapError("fulfillment", "Release", shared.ErrPersistence,
			"lease release failed", err)
	}
	return nil
}

// IsHeld reports whether any owner currently holds the lease.
func (s *LeaseStore) IsHeld(ctx context.Context, key candidate.Key) (bool, error) {
	count, err := s.cache.Client().Exists(ctx, leaseKey(key)).Result()
	if err != nil {
		return false, shared.WrapError("fulfillment", "IsHeld", shared.ErrPersistence,
			"lease probe failed", err)
	}
	return count > 0, nil
}
