package candidate

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE STORE
// Profiles are session-scoped: they live for one processing cycle and expire
// unless a payment is in flight. Implementations live in
// infrastructure/persistence (redis for production, memory for tests).
// ══════════════════════════════════════════════════════════════════════════════

// ProfileStore defines the ephemeral storage contract for candidate profiles.
type ProfileStore interface {
	// Save stores a profile with the given time-to-live.
	// Saving an existing key replaces the previous profile.
	Save(ctx context.Context, profile *Profile, ttl time.Duration) error

	// Get returns the profile for a key.
	// Returns ErrProfileNotFound when the key is absent or expired.
	Get(ctx context.Context, key Key) (*Profile, error)

	// Extend refreshes the TTL for a key, keeping the profile alive while a
	// payment is in flight. Returns ErrProfileNotFound when the key is absent.
	Extend(ctx context.Context, key Key, ttl time.Duration) error

	// Delete removes the profile for a key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key Key) error
}
