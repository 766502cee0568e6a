// Package payment contains the payment record model. The gateway itself is
// an external collaborator; this package only tracks the record that gates
// fulfillment.
package payment

import (
	"fmt"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATES
// ══════════════════════════════════════════════════════════════════════════════

// State is the confirmation state of a payment record.
type State string

const (
	// StateInitiated - the gateway charge was requested, outcome unknown.
	StateInitiated State = "initiated"
	// StateConfirmed - the gateway reported a successful charge. Terminal.
	StateConfirmed State = "confirmed"
	// StateFailed - the gateway reported a failed or cancelled charge. Terminal.
	StateFailed State = "failed"
)

// IsValid checks that the state is known.
func (s State) IsValid() bool {
	switch s {
	case StateInitiated, StateConfirmed, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state can no longer change.
func (s State) IsTerminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: PAYMENT RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record tracks one gateway charge for one (candidate, category) key.
// The confirmation state is single-writer: it flips exactly once, by the
// gateway-confirmation path (webhook or status poll, whichever lands first).
type Record struct {
	// ID is the internal unique identifier (UUID in string form).
	ID string

	// Key is the (email, index_number, category) unit of work this payment
	// unlocks.
	Key candidate.Key

	// Phone is the charged mobile number, normalized to 254XXXXXXXXX.
	Phone candidate.PhoneNumber

	// Amount is the charge amount in KES.
	Amount float64

	// MerchantRequestID and CheckoutRequestID are the gateway references
	// returned by the charge request. CheckoutRequestID is the external
	// reference used for status queries and webhook correlation.
	MerchantRequestID string
	CheckoutRequestID string

	// State is the confirmation state.
	State State

	// FailureReason is the gateway's reason when State is failed.
	FailureReason string

	// CreatedAt is when the charge was requested.
	CreatedAt time.Time

	// ConfirmedAt is when the state became terminal.
	ConfirmedAt time.Time
}

// NewRecord creates an initiated payment record.
func NewRecord(id string, key candidate.Key, phone candidate.PhoneNumber, amount float64) (*Record, error) {
	if id == "" {
		return nil, shared.WrapError("payment", "NewRecord", shared.ErrEmptyValue, "payment id is required", nil)
	}
	if !key.IsValid() {
		return nil, shared.WrapError("payment", "NewRecord", shared.ErrInvalidInput, "invalid candidate key", nil)
	}
	if !phone.IsValid() {
		return nil, shared.ErrInvalidPhoneNumber
	}
	if amount <= 0 {
		return nil, shared.WrapError("payment", "NewRecord", shared.ErrValueOutOfRange, "amount must be positive", nil)
	}

	return &Record{
		ID:        id,
		Key:       key,
		Phone:     phone.Normalize(),
		Amount:    amount,
		State:     StateInitiated,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// AttachGatewayReferences records the identifiers returned by the gateway.
func (r *Record) AttachGatewayReferences(merchantRequestID, checkoutRequestID string) {
	r.MerchantRequestID = merchantRequestID
	r.CheckoutRequestID = checkoutRequestID
}

// Confirm flips the record to confirmed. Confirming an already-confirmed
// record is a no-op (duplicate webhook deliveries are expected); any other
// terminal state returns ErrPaymentAlreadyFinal.
func (r *Record) Confirm() error {
	switch r.State {
	case StateConfirmed:
		return nil
	case StateFailed:
		return shared.ErrPaymentAlreadyFinal
	}

	r.State = StateConfirmed
	r.ConfirmedAt = time.Now().UTC()
	return nil
}

// Fail flips the record to failed with the gateway's reason.
// Failing an already-failed record is a no-op; a confirmed record cannot fail.
func (r *Record) Fail(reason string) error {
	switch r.State {
	case StateFailed:
		return nil
	case StateConfirmed:
		return shared.ErrPaymentAlreadyFinal
	}

	r.State = StateFailed
	r.FailureReason = reason
	r.ConfirmedAt = time.Now().UTC()
	return nil
}

// IsConfirmed reports whether the payment gates fulfillment open.
func (r *Record) IsConfirmed() bool {
	return r.State == StateConfirmed
}

// String returns a short representation for logging.
func (r *Record) String() string {
	return fmt.Sprintf("Payment{ID: %s, Key: %s, State: %s}", r.ID, r.Key, r.State)
}
