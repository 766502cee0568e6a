// Package memory provides in-process implementations of the persistence
// contracts. Used by tests and by single-node deployments that run without
// Redis; not safe across processes.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

type profileEntry struct {
	profile   *candidate.Profile
	expiresAt time.Time
}

// ProfileStore is an in-memory candidate.ProfileStore with TTL expiry.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]profileEntry
}

// NewProfileStore creates a new in-memory ProfileStore.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]profileEntry)}
}

// Save stores the profile, replacing any previous one for the same key.
func (s *ProfileStore) Save(_ context.Context, profile *candidate.Profile, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.Key().String()] = profileEntry{
		profile:   profile,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Get returns the stored profile for a key.
func (s *ProfileStore) Get(_ context.Context, key candidate.Key) (*candidate.Profile, error) {
	s.mu.RLock()
	entry, ok := s.profiles[key.String()]
	s.mu.RUnlock()

	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.profiles, key.String())
		s.mu.Unlock()
		return nil, shared.ErrProfileExpired
	}
	return entry.profile, nil
}

// Extend pushes the profile's expiry out by ttl from now.
func (s *ProfileStore) Extend(_ context.Context, key candidate.Key, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.profiles[key.String()]
	if !ok || time.Now().After(entry.expiresAt) {
		return shared.ErrProfileNotFound
	}
	entry.expiresAt = time.Now().Add(ttl)
	s.profiles[key.String()] = entry
	return nil
}

// Delete removes the profile for a key. Deleting an absent key is a no-op.
func (s *ProfileStore) Delete(_ context.Context, key candidate.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, key.String())
	return nil
}
