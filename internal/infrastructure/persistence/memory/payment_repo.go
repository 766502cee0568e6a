package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/payment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

// PaymentRepository is an in-memory payment.Repository.
type PaymentRepository struct {
	mu          sync.RWMutex
	byID        map[string]*payment.Record
	byReference map[string]string // checkout reference -> payment ID
}

// NewPaymentRepository creates a new in-memory PaymentRepository.
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		byID:        make(map[string]*payment.Record),
		byReference: make(map[string]string),
	}
}

// Create persists a new payment record.
func (r *PaymentRepository) Create(_ context.Context, record *payment.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.CheckoutRequestID != "" {
		if _, taken := r.byReference[record.CheckoutRequestID]; taken {
			return shared.ErrDuplicateReference
		}
		r.byReference[record.CheckoutRequestID] = record.ID
	}
	stored := *record
	r.byID[record.ID] = &stored
	return nil
}

// GetByID returns a record by internal ID.
func (r *PaymentRepository) GetByID(_ context.Context, id string) (*payment.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrPaymentNotFound
	}
	out := *record
	return &out, nil
}

// GetByReference returns a record by gateway checkout reference.
func (r *PaymentRepository) GetByReference(_ context.Context, checkoutRequestID string) (*payment.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byReference[checkoutRequestID]
	if !ok {
		return nil, shared.ErrPaymentNotFound
	}
	out := *r.byID[id]
	return &out, nil
}

// GetLatestByKey returns the most recent record for a candidate key.
func (r *PaymentRepository) GetLatestByKey(_ context.Context, key candidate.Key) (*payment.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *payment.Record
	for _, record := range r.byID {
		if record.Key != key {
			continue
		}
		if latest == nil || record.CreatedAt.After(latest.CreatedAt) {
			latest = record
		}
	}
	if latest == nil {
		return nil, shared.ErrPaymentNotFound
	}
	out := *latest
	return &out, nil
}

// UpdateState persists a state transition, conditional on the stored row
// still being non-terminal.
func (r *PaymentRepository) UpdateState(_ context.Context, record *payment.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[record.ID]
	if !ok {
		return shared.ErrPaymentNotFound
	}
	if stored.State.IsTerminal() {
		return shared.ErrPaymentAlreadyFinal
	}
	updated := *record
	r.byID[record.ID] = &updated
	return nil
}

// FindConfirmedSince returns confirmed payments created after the cutoff.
func (r *PaymentRepository) FindConfirmedSince(_ context.Context, cutoff time.Time) ([]*payment.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*payment.Record
	for _, record := range r.byID {
		if record.State == payment.StateConfirmed && record.CreatedAt.After(cutoff) {
			copied := *record
			out = append(out, &copied)
		}
	}
	return out, nil
}

// FindStaleInitiated returns initiated payments older than the threshold.
func (r *PaymentRepository) FindStaleInitiated(_ context.Context, olderThan time.Duration, limit int) ([]*payment.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	threshold := time.Now().Add(-olderThan)
	var out []*payment.Record
	for _, record := range r.byID {
		if record.State != payment.StateInitiated || record.CreatedAt.After(threshold) {
			continue
		}
		copied := *record
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
