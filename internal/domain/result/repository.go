package result

import (
	"context"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// The durable store is authoritative; the status cache is a latency shortcut
// only and must never diverge from it for longer than one write cycle.
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines durable storage for qualification results.
type Repository interface {
	// Upsert persists the result with first-writer-wins semantics: if a
	// result already exists for the key, the stored result is kept and
	// returned. The returned result is always the surviving row.
	Upsert(ctx context.Context, res *QualificationResult) (*QualificationResult, error)

	// Get returns the persisted result for a key.
	// Returns ErrResultNotFound when absent.
	Get(ctx context.Context, key candidate.Key) (*QualificationResult, error)

	// Exists reports whether a result is persisted for a key.
	Exists(ctx context.Context, key candidate.Key) (bool, error)
}

// LeaseStore defines the ephemeral exclusivity marker for in-flight
// computations. Acquire/release must be atomic per key.
type LeaseStore interface {
	// Acquire attempts to take the lease for a key with the given owner
	// token and TTL. Returns false when another owner already holds it.
	Acquire(ctx context.Context, key candidate.Key, owner string, ttl time.Duration) (bool, error)

	// Release frees the lease if and only if the owner token matches.
	// Releasing an expired or re-acquired lease is a no-op.
	Release(ctx context.Context, key candidate.Key, owner string) error

	// IsHeld reports whether any owner currently holds the lease for a key.
	IsHeld(ctx context.Context, key candidate.Key) (bool, error)
}

// StatusCache is the fast ephemeral ready-status cache consulted before the
// durable store on the polling path.
type StatusCache interface {
	// SetReady caches a ready status with the match count.
	SetReady(ctx context.Context, key candidate.Key, count int, ttl time.Duration) error

	// GetReady returns the cached ready count for a key.
	// The boolean is false on a cache miss; a miss is never an error.
	GetReady(ctx context.Context, key candidate.Key) (int, bool, error)

	// Invalidate drops the cached status for a key.
	Invalidate(ctx context.Context, key candidate.Key) error
}
