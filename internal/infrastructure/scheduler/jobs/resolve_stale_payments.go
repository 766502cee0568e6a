package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/application/command"
	"github.com/kuccps-hub/course-match-hub/internal/domain/payment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESOLVE STALE PAYMENTS JOB
// Webhooks get lost. A charge stuck in "initiated" past the STK prompt
// lifetime is asked about directly; terminal verdicts flow through the same
// confirmation path the webhook would have taken.
// ══════════════════════════════════════════════════════════════════════════════

// ResolveStalePaymentsConfig contains configuration for the job.
type ResolveStalePaymentsConfig struct {
	// StaleAfter is how long an initiated charge may sit before being queried.
	// The STK prompt itself expires after about 90 seconds.
	StaleAfter time.Duration

	// BatchSize bounds how many stale records one sweep handles.
	BatchSize int

	// Timeout bounds one sweep.
	Timeout time.Duration
}

// DefaultResolveStalePaymentsConfig returns sensible defaults.
func DefaultResolveStalePaymentsConfig() ResolveStalePaymentsConfig {
	return ResolveStalePaymentsConfig{
		StaleAfter: 3 * time.Minute,
		BatchSize:  50,
		Timeout:    2 * time.Minute,
	}
}

// ResolveStalePaymentsJob queries the gateway for initiated charges that
// never received a webhook and applies the verdict.
type ResolveStalePaymentsJob struct {
	payments payment.Repository
	gateway  payment.Gateway
	confirm  *command.ConfirmPaymentHandler
	log      *logger.Logger
	config   ResolveStalePaymentsConfig
}

// NewResolveStalePaymentsJob creates the job.
func NewResolveStalePaymentsJob(
	payments payment.Repository,
	gateway payment.Gateway,
	confirm *command.ConfirmPaymentHandler,
	log *logger.Logger,
	config ResolveStalePaymentsConfig,
) *ResolveStalePaymentsJob {
	if log == nil {
		log = logger.Default()
	}
	if config.StaleAfter <= 0 {
		config = DefaultResolveStalePaymentsConfig()
	}

	return &ResolveStalePaymentsJob{
		payments: payments,
		gateway:  gateway,
		confirm:  confirm,
		log:      log.With(logger.Component("resolve_stale_payments")),
		config:   config,
	}
}

// Name returns the job name.
func (j *ResolveStalePaymentsJob) Name() string {
	return "resolve_stale_payments"
}

// Description returns a human-readable description.
func (j *ResolveStalePaymentsJob) Description() string {
	return "Queries the gateway for initiated charges that missed their webhook"
}

// Run executes one sweep.
func (j *ResolveStalePaymentsJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	stale, err := j.payments.FindStaleInitiated(ctx, j.config.StaleAfter, j.config.BatchSize)
	if err != nil {
		return fmt.Errorf("list stale payments: %w", err)
	}

	var resolved, pending int
	for _, record := range stale {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if record.CheckoutRequestID == "" {
			// The charge request never got gateway references; nothing
			// to query. It will fail validation on the next initiate.
			continue
		}

		outcome, err := j.gateway.QueryStatus(ctx, record.CheckoutRequestID)
		if err != nil {
			// The gateway being down now is no reason to fail the
			// remaining records.
			j.log.Warn("status query failed",
				logger.Reference(record.CheckoutRequestID),
				logger.Err(err))
			continue
		}

		if outcome.Pending {
			pending++
			continue
		}

		_, err = j.confirm.Handle(ctx, command.ConfirmPaymentCommand{
			CheckoutRequestID: record.CheckoutRequestID,
			Succeeded:         outcome.Succeeded,
			FailureReason:     outcome.Reason,
		})
		if err != nil && !errors.Is(err, shared.ErrPaymentAlreadyFinal) {
			j.log.Warn("applying queried verdict failed",
				logger.Reference(record.CheckoutRequestID),
				logger.Err(err))
			continue
		}
		resolved++
	}

	j.log.Info("stale payment sweep finished",
		logger.Int("stale_checked", len(stale)),
		logger.Int("resolved", resolved),
		logger.Int("still_pending", pending))
	return nil
}
