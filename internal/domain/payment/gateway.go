package payment

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// GATEWAY PORT
// The mobile money gateway is an external collaborator. The port models the
// STK push flow: request a charge, then learn the outcome from a webhook or
// an explicit status query.
// ══════════════════════════════════════════════════════════════════════════════

// ChargeRequest describes one STK push charge.
type ChargeRequest struct {
	// Phone is the charged number in 254XXXXXXXXX form.
	Phone string

	// Amount is the charge amount in KES.
	Amount float64

	// AccountReference appears on the payer's statement.
	AccountReference string

	// Description is the short transaction description shown in the prompt.
	Description string
}

// ChargeResponse holds the gateway references returned for an accepted
// charge request. Acceptance is not confirmation.
type ChargeResponse struct {
	MerchantRequestID string
	CheckoutRequestID string
}

// ChargeOutcome is the gateway's verdict on a previously requested charge.
type ChargeOutcome struct {
	// Reference is the checkout request ID the outcome belongs to.
	Reference string

	// Succeeded is true when the payer completed the charge.
	Succeeded bool

	// Pending is true while the payer has not acted on the prompt yet.
	Pending bool

	// Reason carries the gateway's failure description, when failed.
	Reason string
}

// Gateway is the outbound port to the mobile money provider.
// Implementations live in infrastructure/external.
type Gateway interface {
	// RequestCharge submits an STK push. Errors are gateway errors
	// (ErrGatewayUnavailable, ErrGatewayRejected, ErrGatewayTimeout).
	RequestCharge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)

	// QueryStatus fetches the outcome of an earlier charge request.
	QueryStatus(ctx context.Context, checkoutRequestID string) (*ChargeOutcome, error)
}
