package redis

import (
	"context"
	"errors"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CANDIDATE PROFILE STORE
// Profiles are session-scoped: they live for TTLProfileSession and are
// extended while the candidate is active. The TTL expiring is how abandoned
// submissions get cleaned up; there is no reaper.
// ══════════════════════════════════════════════════════════════════════════════

// ProfileStore implements candidate.ProfileStore on Redis.
type ProfileStore struct {
	cache *Cache
}

// NewProfileStore creates a new ProfileStore.
func NewProfileStore(cache *Cache) *ProfileStore {
	return &ProfileStore{cache: cache}
}

func profileKey(key candidate.Key) string {
	return PrefixProfile + key.String()
}

// Save stores the profile, replacing any previous one for the same key and
// restarting its TTL.
func (s *ProfileStore) Save(ctx context.Context, profile *candidate.Profile, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = TTLProfileSession
	}

	if err := s.cache.Set(ctx, profileKey(profile.Key()), profile, ttl); err != nil {
		return shared.WrapError("candidate", "Save", shared.ErrPersistence,
			"profile write failed", err)
	}
	return nil
}

// Get returns the stored profile for a key. An absent key means the profile
// either never existed or already expired; Redis cannot tell the two apart,
// so both report ErrProfileNotFound.
func (s *ProfileStore) Get(ctx context.Context, key candidate.Key) (*candidate.Profile, error) {
	var profile candidate.Profile
	err := s.cache.Get(ctx, profileKey(key), &profile)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, shared.WrapError("candidate", "Get", shared.ErrPersistence,
			"profile read failed", err)
	}
	return &profile, nil
}

// Extend pushes the profile's expiry out by ttl from now.
func (s *ProfileStore) Extend(ctx context.Context, key candidate.Key, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = TTLProfileSession
	}

	ok, err := s.cache.Expire(ctx, profileKey(key), ttl)
	if err != nil {
		return shared.WrapError("candidate", "Extend", shared.ErrPersistence,
			"profile expire failed", err)
	}
	if !ok {
		return shared.ErrProfileNotFound
	}
	return nil
}

// Delete removes the profile for a key. Deleting an absent key is a no-op.
func (s *ProfileStore) Delete(ctx context.Context, key candidate.Key) error {
	if err := s.cache.Delete(ctx, profileKey(key)); err != nil {
		return shared.WrapError("candidate", "Delete", shared.ErrPersistence,
			"profile delete failed", err)
	}
	return nil
}
