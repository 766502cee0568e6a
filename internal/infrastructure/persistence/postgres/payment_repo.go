package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/payment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// PaymentRepository implements payment.Repository on PostgreSQL.
type PaymentRepository struct {
	conn *Connection
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(conn *Connection) *PaymentRepository {
	return &PaymentRepository{conn: conn}
}

const paymentColumns = `
	id, email, index_number, category, phone, amount,
	merchant_request_id, checkout_request_id, state, failure_reason,
	created_at, confirmed_at`

// Create persists a new payment record.
func (r *PaymentRepository) Create(ctx context.Context, record *payment.Record) error {
	query := `
		INSERT INTO payments (
			id, email, index_number, category, phone, amount,
			merchant_request_id, checkout_request_id, state, failure_reason,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.conn.Exec(ctx, query,
		record.ID,
		record.Key.Email,
		record.Key.IndexNumber.String(),
		record.Key.Category.String(),
		record.Phone.String(),
		record.Amount,
		record.MerchantRequestID,
		record.CheckoutRequestID,
		string(record.State),
		record.FailureReason,
		record.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrDuplicateReference
		}
		return shared.WrapError("payment", "Create", shared.ErrPersistence,
			"insert failed", err)
	}
	return nil
}

// GetByID returns a record by internal ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Record, error) {
	query := `SELECT` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.scanOne(r.conn.QueryRow(ctx, query, id))
}

// GetByReference returns a record by gateway checkout reference.
func (r *PaymentRepository) GetByReference(ctx context.Context, checkoutRequestID string) (*payment.Record, error) {
	query := `SELECT` + paymentColumns + ` FROM payments WHERE checkout_request_id = $1`
	return r.scanOne(r.conn.QueryRow(ctx, query, checkoutRequestID))
}

// GetLatestByKey returns the most recent record for a candidate key.
func (r *PaymentRepository) GetLatestByKey(ctx context.Context, key candidate.Key) (*payment.Record, error) {
	query := `
		SELECT` + paymentColumns + `
		FROM payments
		WHERE email = $1 AND index_number = $2 AND category = $3
		ORDER BY created_at DESC
		LIMIT 1`

	return r.scanOne(r.conn.QueryRow(ctx, query,
		key.Email, key.IndexNumber.String(), key.Category.String()))
}

// UpdateState persists a state transition, conditional on the stored row
// still being non-terminal. A lost race returns ErrPaymentAlreadyFinal so
// the caller can treat it as a duplicate delivery.
func (r *PaymentRepository) UpdateState(ctx context.Context, record *payment.Record) error {
	query := `
		UPDATE payments
		SET state = $2, failure_reason = $3, confirmed_at = $4
		WHERE id = $1 AND state = 'initiated'`

	tag, err := r.conn.Exec(ctx, query,
		record.ID,
		string(record.State),
		record.FailureReason,
		nullableTime(record.ConfirmedAt),
	)
	if err != nil {
		return shared.WrapError("payment", "UpdateState", shared.ErrPersistence,
			"update failed", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or a concurrent delivery already
		// finalized it.
		if _, err := r.GetByID(ctx, record.ID); err != nil {
			return err
		}
		return shared.ErrPaymentAlreadyFinal
	}
	return nil
}

// FindConfirmedSince returns confirmed payments created after the cutoff.
func (r *PaymentRepository) FindConfirmedSince(ctx context.Context, cutoff time.Time) ([]*payment.Record, error) {
	query := `
		SELECT` + paymentColumns + `
		FROM payments
		WHERE state = 'confirmed' AND created_at > $1
		ORDER BY created_at`

	rows, err := r.conn.Query(ctx, query, cutoff)
	if err != nil {
		return nil, shared.WrapError("payment", "FindConfirmedSince", shared.ErrPersistence,
			"query failed", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// FindStaleInitiated returns initiated payments older than the threshold.
func (r *PaymentRepository) FindStaleInitiated(ctx context.Context, olderThan time.Duration, limit int) ([]*payment.Record, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT` + paymentColumns + `
		FROM payments
		WHERE state = 'initiated' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`

	rows, err := r.conn.Query(ctx, query, time.Now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, shared.WrapError("payment", "FindStaleInitiated", shared.ErrPersistence,
			"query failed", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROW MAPPING
// ══════════════════════════════════════════════════════════════════════════════

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *PaymentRepository) scanOne(row rowScanner) (*payment.Record, error) {
	var (
		record      payment.Record
		email       string
		indexNumber string
		category    string
		phone       string
		state       string
		confirmedAt sql.NullTime
	)

	err := row.Scan(
		&record.ID,
		&email,
		&indexNumber,
		&category,
		&phone,
		&record.Amount,
		&record.MerchantRequestID,
		&record.CheckoutRequestID,
		&state,
		&record.FailureReason,
		&record.CreatedAt,
		&confirmedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrPaymentNotFound
		}
		return nil, shared.WrapError("payment", "Scan", shared.ErrPersistence,
			"row scan failed", err)
	}

	record.Key = candidate.Key{
		Email:       email,
		IndexNumber: candidate.IndexNumber(indexNumber),
		Category:    candidate.Category(category),
	}
	record.Phone = candidate.PhoneNumber(phone)
	record.State = payment.State(state)
	if confirmedAt.Valid {
		record.ConfirmedAt = confirmedAt.Time
	}

	return &record, nil
}

func (r *PaymentRepository) scanAll(rows interface {
	rowScanner
	Next() bool
	Err() error
}) ([]*payment.Record, error) {
	var records []*payment.Record
	for rows.Next() {
		record, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
