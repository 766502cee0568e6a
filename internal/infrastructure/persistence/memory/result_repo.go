package memory

import (
	"context"
	"sync"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/result"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

// ResultRepository is an in-memory result.Repository with the same
// first-writer-wins semantics as the SQL implementation.
type ResultRepository struct {
	mu      sync.RWMutex
	results map[string]*result.QualificationResult
}

// NewResultRepository creates a new in-memory ResultRepository.
func NewResultRepository() *ResultRepository {
	return &ResultRepository{results: make(map[string]*result.QualificationResult)}
}

// Upsert persists the result unless a result already exists for the key, in
// which case the stored result is returned untouched.
func (r *ResultRepository) Upsert(_ context.Context, res *result.QualificationResult) (*result.QualificationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.results[res.Key.String()]; ok {
		return existing, nil
	}
	r.results[res.Key.String()] = res
	return res, nil
}

// Get returns the persisted result for a key.
func (r *ResultRepository) Get(_ context.Context, key candidate.Key) (*result.QualificationResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.results[key.String()]
	if !ok {
		return nil, shared.ErrResultNotFound
	}
	return res, nil
}

// Exists reports whether a result is persisted for a key.
func (r *ResultRepository) Exists(_ context.Context, key candidate.Key) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.results[key.String()]
	return ok, nil
}
