package payment

import (
	"context"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
)

// Repository defines durable storage for payment records.
// Implementations live in infrastructure/persistence.
type Repository interface {
	// Create persists a new payment record.
	// Returns ErrDuplicateReference when the checkout reference is taken.
	Create(ctx context.Context, record *Record) error

	// GetByID returns a record by internal ID.
	// Returns ErrPaymentNotFound when absent.
	GetByID(ctx context.Context, id string) (*Record, error)

	// GetByReference returns a record by gateway checkout reference.
	// Returns ErrPaymentNotFound when absent.
	GetByReference(ctx context.Context, checkoutRequestID string) (*Record, error)

	// GetLatestByKey returns the most recent record for a candidate key.
	// Returns ErrPaymentNotFound when the key has no payments.
	GetLatestByKey(ctx context.Context, key candidate.Key) (*Record, error)

	// UpdateState persists a state transition made on the entity.
	// The update is conditional on the stored row still being non-terminal,
	// keeping the confirmation single-writer at the SQL level too.
	UpdateState(ctx context.Context, record *Record) error

	// FindConfirmedSince returns confirmed payments created after the cutoff,
	// for the reconciliation job that re-drives unfulfilled keys.
	FindConfirmedSince(ctx context.Context, cutoff time.Time) ([]*Record, error)

	// FindStaleInitiated returns initiated payments older than the threshold,
	// for the job that refreshes their gateway status.
	FindStaleInitiated(ctx context.Context, olderThan time.Duration, limit int) ([]*Record, error)
}
