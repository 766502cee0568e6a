package memory

import (
	"context"
	"sync"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/catalog"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

// CatalogSource is an in-memory catalog.Source backed by a fixed entry set.
type CatalogSource struct {
	mu      sync.RWMutex
	entries map[candidate.Category]map[string][]catalog.Entry
}

// NewCatalogSource creates an empty in-memory CatalogSource.
func NewCatalogSource() *CatalogSource {
	return &CatalogSource{entries: make(map[candidate.Category]map[string][]catalog.Entry)}
}

// Load replaces the entries of one (category, partition) pair.
func (s *CatalogSource) Load(category candidate.Category, partition string, entries []catalog.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	partitions, ok := s.entries[category]
	if !ok {
		partitions = make(map[string][]catalog.Entry)
		s.entries[category] = partitions
	}
	partitions[partition] = entries
}

// Entries returns every entry in one partition, or
// ErrMissingCatalogPartition when the partition was never loaded.
func (s *CatalogSource) Entries(_ context.Context, category candidate.Category, partition string) ([]catalog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	partitions, ok := s.entries[category]
	if !ok {
		return nil, shared.ErrMissingCatalogPartition
	}
	entries, ok := partitions[partition]
	if !ok {
		return nil, shared.ErrMissingCatalogPartition
	}
	out := make([]catalog.Entry, len(entries))
	copy(out, entries)
	return out, nil
}
