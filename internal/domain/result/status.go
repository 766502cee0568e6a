package result

// ══════════════════════════════════════════════════════════════════════════════
// STATUS STATE MACHINE
//
// Per (email, index_number, category) key:
//
//	NoPayment → PaymentInitiated → PaymentConfirmed → FulfillmentInProgress → Ready
//
// Ready is terminal and the only state from which results are served.
// FulfillmentFailed loops back to FulfillmentInProgress on retry.
// ══════════════════════════════════════════════════════════════════════════════

// Status is the fulfillment state of one key as seen by polling clients.
type Status string

const (
	// StatusNoPayment - no payment record exists for the key.
	StatusNoPayment Status = "no_payment"
	// StatusPaymentInitiated - a charge was requested but not yet confirmed.
	StatusPaymentInitiated Status = "payment_initiated"
	// StatusPaymentFailed - the gateway rejected the charge; a new payment
	// must be initiated.
	StatusPaymentFailed Status = "payment_failed"
	// StatusInProgress - a computation holds the lease right now, or was
	// just dispatched.
	StatusInProgress Status = "in_progress"
	// StatusFailed - the last computation attempt failed; retryable.
	StatusFailed Status = "failed"
	// StatusReady - the result is durably persisted and servable. Terminal.
	StatusReady Status = "ready"
)

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusReady
}

// CanServeResults reports whether results may be rendered in this state.
func (s Status) CanServeResults() bool {
	return s == StatusReady
}

// StatusView is the payload returned to polling clients.
type StatusView struct {
	// State is the current status for the key.
	State Status `json:"state"`

	// Ready mirrors State == StatusReady for client convenience.
	Ready bool `json:"ready"`

	// Count is the number of matching entries. Only meaningful when Ready.
	Count int `json:"count"`
}
