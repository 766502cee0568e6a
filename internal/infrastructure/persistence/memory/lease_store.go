package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
)

type leaseEntry struct {
	owner     string
	expiresAt time.Time
}

// LeaseStore is an in-memory result.LeaseStore. Leases expire lazily: an
// expired entry is treated as absent on the next access.
type LeaseStore struct {
	mu     sync.Mutex
	leases map[string]leaseEntry
}

// NewLeaseStore creates a new in-memory LeaseStore.
func NewLeaseStore() *LeaseStore {
	return &LeaseStore{leases: make(map[string]leaseEntry)}
}

// Acquire takes the lease unless a live owner already holds it.
func (s *LeaseStore) Acquire(_ context.Context, key candidate.Key, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.leases[key.String()]; ok && time.Now().Before(entry.expiresAt) {
		return false, nil
	}
	s.leases[key.String()] = leaseEntry{owner: owner, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

// Release frees the lease if the owner token matches. A mismatched or
// expired lease is left alone.
func (s *LeaseStore) Release(_ context.Context, key candidate.Key, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.leases[key.String()]; ok && entry.owner == owner {
		delete(s.leases, key.String())
	}
	return nil
}

// IsHeld reports whether a live owner holds the lease.
func (s *LeaseStore) IsHeld(_ context.Context, key candidate.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.leases[key.String()]
	if !ok {
		return false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.leases, key.String())
		return false, nil
	}
	return true, nil
}
