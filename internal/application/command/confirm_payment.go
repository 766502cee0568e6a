package command

import (
	"context"
	"errors"

	"github.com/kuccps-hub/course-match-hub/internal/application/fulfillment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/payment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIRM PAYMENT COMMAND
// Applies a gateway outcome (webhook callback or status poll, whichever lands
// first) to the payment record. A successful confirmation immediately
// dispatches the fulfillment computation for the key; the webhook response
// never waits for the scan.
// ══════════════════════════════════════════════════════════════════════════════

// ConfirmPaymentCommand contains one gateway outcome.
type ConfirmPaymentCommand struct {
	// CheckoutRequestID is the gateway reference from the charge request.
	CheckoutRequestID string

	// Succeeded is the gateway's verdict.
	Succeeded bool

	// FailureReason carries the gateway's description when Succeeded is false.
	FailureReason string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ConfirmPaymentCommand) Validate() error {
	if c.CheckoutRequestID == "" {
		return shared.WrapError("command", "ConfirmPayment", shared.ErrEmptyValue,
			"checkout request id is required", nil)
	}
	return nil
}

// ConfirmPaymentResult contains the result of applying a gateway outcome.
type ConfirmPaymentResult struct {
	// PaymentID is the internal payment record ID.
	PaymentID string

	// State is the record's state after the outcome was applied.
	State payment.State

	// Duplicate is true when the outcome had already been applied; duplicate
	// webhook deliveries are expected and harmless.
	Duplicate bool

	// Dispatched is true when a fulfillment computation was started.
	Dispatched bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ConfirmPaymentHandler handles the ConfirmPaymentCommand.
type ConfirmPaymentHandler struct {
	payments   payment.Repository
	dispatcher *fulfillment.Dispatcher
	bus        shared.EventBus
	log        *logger.Logger
}

// NewConfirmPaymentHandler creates a new ConfirmPaymentHandler.
func NewConfirmPaymentHandler(
	payments payment.Repository,
	dispatcher *fulfillment.Dispatcher,
	bus shared.EventBus,
	log *logger.Logger,
) *ConfirmPaymentHandler {
	if log == nil {
		log = logger.Default()
	}

	return &ConfirmPaymentHandler{
		payments:   payments,
		dispatcher: dispatcher,
		bus:        bus,
		log:        log.With(logger.Component("confirm_payment")),
	}
}

// Handle executes the confirm payment command.
func (h *ConfirmPaymentHandler) Handle(ctx context.Context, cmd ConfirmPaymentCommand) (*ConfirmPaymentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	record, err := h.payments.GetByReference(ctx, cmd.CheckoutRequestID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrPaymentNotFound
		}
		return nil, shared.WrapError("command", "ConfirmPayment", shared.ErrPersistence,
			"payment lookup failed", err)
	}

	wasTerminal := record.State.IsTerminal()

	if cmd.Succeeded {
		err = record.Confirm()
	} else {
		err = record.Fail(cmd.FailureReason)
	}
	if err != nil {
		// Conflicting terminal outcomes: the stored verdict stands.
		if errors.Is(err, shared.ErrAlreadyProcessed) {
			return &ConfirmPaymentResult{PaymentID: record.ID, State: record.State, Duplicate: true}, nil
		}
		return nil, err
	}

	if wasTerminal {
		// Duplicate delivery of the same verdict; nothing left to do.
		return &ConfirmPaymentResult{PaymentID: record.ID, State: record.State, Duplicate: true}, nil
	}

	if err := h.payments.UpdateState(ctx, record); err != nil {
		if errors.Is(err, shared.ErrAlreadyProcessed) {
			// A concurrent delivery won the conditional update.
			return &ConfirmPaymentResult{PaymentID: record.ID, State: record.State, Duplicate: true}, nil
		}
		return nil, shared.WrapError("command", "ConfirmPayment", shared.ErrPersistence,
			"failed to persist payment state", err)
	}

	result := &ConfirmPaymentResult{PaymentID: record.ID, State: record.State}

	if record.IsConfirmed() {
		h.publishConfirmed(record, cmd.CorrelationID)
		if h.dispatcher != nil {
			h.dispatcher.Dispatch(record.Key)
			result.Dispatched = true
		}
		h.log.Info("payment confirmed, fulfillment dispatched",
			logger.PaymentID(record.ID),
			logger.IndexNumber(record.Key.IndexNumber.String()),
			logger.Category(record.Key.Category.String()))
	} else {
		h.publishFailed(record, cmd.CorrelationID)
		h.log.Info("payment failed",
			logger.PaymentID(record.ID),
			logger.String("reason", record.FailureReason))
	}

	return result, nil
}

func (h *ConfirmPaymentHandler) publishConfirmed(record *payment.Record, correlationID string) {
	if h.bus == nil {
		return
	}
	event := shared.PaymentConfirmedEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventPaymentConfirmed, record.ID),
		Email:       record.Key.Email,
		IndexNumber: record.Key.IndexNumber.String(),
		Category:    record.Key.Category.String(),
		Reference:   record.CheckoutRequestID,
	}
	if correlationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(correlationID)
	}
	_ = h.bus.Publish(event)
}

func (h *ConfirmPaymentHandler) publishFailed(record *payment.Record, correlationID string) {
	if h.bus == nil {
		return
	}
	event := shared.PaymentFailedEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventPaymentFailed, record.ID),
		Email:       record.Key.Email,
		IndexNumber: record.Key.IndexNumber.String(),
		Category:    record.Key.Category.String(),
		Reference:   record.CheckoutRequestID,
		Reason:      record.FailureReason,
	}
	if correlationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(correlationID)
	}
	_ = h.bus.Publish(event)
}
