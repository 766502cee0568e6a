package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/payment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// INITIATE PAYMENT COMMAND
// Requests an STK push charge for one candidate key and records the
// initiated payment. Confirmation arrives later through the webhook or the
// reconciliation poll, never from this handler.
// ══════════════════════════════════════════════════════════════════════════════

// InitiatePaymentCommand contains the data to start a gateway charge.
type InitiatePaymentCommand struct {
	// Key identifies the profile the payment unlocks.
	Key candidate.Key

	// Phone is the raw mobile number to charge. When empty, the phone stored
	// on the profile is used.
	Phone string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c InitiatePaymentCommand) Validate() error {
	if !c.Key.IsValid() {
		return shared.WrapError("command", "InitiatePayment", shared.ErrInvalidInput,
			"malformed candidate key", nil)
	}
	return nil
}

// InitiatePaymentResult contains the result of a charge request.
type InitiatePaymentResult struct {
	// PaymentID is the internal payment record ID.
	PaymentID string

	// CheckoutRequestID is the gateway reference for status polling.
	CheckoutRequestID string

	// Amount is the charged amount in KES.
	Amount float64

	// AlreadyConfirmed is true when a confirmed payment already exists for
	// the key; no new charge was requested.
	AlreadyConfirmed bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// InitiatePaymentHandler handles the InitiatePaymentCommand.
type InitiatePaymentHandler struct {
	payments payment.Repository
	profiles candidate.ProfileStore
	gateway  payment.Gateway
	bus      shared.EventBus
	log      *logger.Logger

	amount float64
}

// NewInitiatePaymentHandler creates a new InitiatePaymentHandler.
// amount is the fixed report fee in KES.
func NewInitiatePaymentHandler(
	payments payment.Repository,
	profiles candidate.ProfileStore,
	gateway payment.Gateway,
	bus shared.EventBus,
	log *logger.Logger,
	amount float64,
) *InitiatePaymentHandler {
	if log == nil {
		log = logger.Default()
	}

	return &InitiatePaymentHandler{
		payments: payments,
		profiles: profiles,
		gateway:  gateway,
		bus:      bus,
		log:      log.With(logger.Component("initiate_payment")),
		amount:   amount,
	}
}

// Handle executes the initiate payment command.
//
// A key with an already confirmed payment short-circuits: the caller should
// proceed straight to the status poll. A key with a pending initiated
// payment gets a fresh charge anyway; the payer may have dismissed the first
// prompt, and only one confirmation can ever win.
func (h *InitiatePaymentHandler) Handle(ctx context.Context, cmd InitiatePaymentCommand) (*InitiatePaymentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if latest, err := h.payments.GetLatestByKey(ctx, cmd.Key); err == nil && latest.IsConfirmed() {
		return &InitiatePaymentResult{
			PaymentID:         latest.ID,
			CheckoutRequestID: latest.CheckoutRequestID,
			Amount:            latest.Amount,
			AlreadyConfirmed:  true,
		}, nil
	} else if err != nil && !shared.IsNotFound(err) {
		return nil, shared.WrapError("command", "InitiatePayment", shared.ErrPersistence,
			"payment lookup failed", err)
	}

	phone := candidate.PhoneNumber(cmd.Phone)
	if phone == "" {
		profile, err := h.profiles.Get(ctx, cmd.Key)
		if err != nil {
			if shared.IsNotFound(err) || errors.Is(err, shared.ErrExpired) {
				return nil, shared.ErrProfileNotFound
			}
			return nil, shared.WrapError("command", "InitiatePayment", shared.ErrPersistence,
				"profile lookup failed", err)
		}
		phone = profile.Phone
	}

	record, err := payment.NewRecord(uuid.NewString(), cmd.Key, phone, h.amount)
	if err != nil {
		return nil, err
	}

	resp, err := h.gateway.RequestCharge(ctx, payment.ChargeRequest{
		Phone:            record.Phone.String(),
		Amount:           record.Amount,
		AccountReference: record.Key.IndexNumber.String(),
		Description:      fmt.Sprintf("Course match report (%s)", record.Key.Category),
	})
	if err != nil {
		return nil, err
	}
	record.AttachGatewayReferences(resp.MerchantRequestID, resp.CheckoutRequestID)

	if err := h.payments.Create(ctx, record); err != nil {
		// The charge is out; losing the record would orphan a real payment.
		return nil, shared.WrapError("command", "InitiatePayment", shared.ErrPersistence,
			"failed to persist initiated payment", err)
	}

	if h.bus != nil {
		event := shared.PaymentInitiatedEvent{
			BaseEvent:   shared.NewBaseEvent(shared.EventPaymentInitiated, record.ID),
			Email:       record.Key.Email,
			IndexNumber: record.Key.IndexNumber.String(),
			Category:    record.Key.Category.String(),
			Reference:   record.CheckoutRequestID,
			Amount:      record.Amount,
		}
		if cmd.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		_ = h.bus.Publish(event)
	}

	h.log.Info("payment initiated",
		logger.PaymentID(record.ID),
		logger.IndexNumber(record.Key.IndexNumber.String()),
		logger.Reference(record.CheckoutRequestID))

	return &InitiatePaymentResult{
		PaymentID:         record.ID,
		CheckoutRequestID: record.CheckoutRequestID,
		Amount:            record.Amount,
	}, nil
}
