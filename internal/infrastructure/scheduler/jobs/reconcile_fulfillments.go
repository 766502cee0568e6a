// Package jobs contains the scheduled maintenance jobs for Course Match Hub.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/application/fulfillment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/payment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/result"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE FULFILLMENTS JOB
// A confirmed payment whose computation never landed (crash between
// confirmation and upsert, lost dispatch) would otherwise strand the
// candidate on "in progress" until they poll again. This job sweeps recent
// confirmed payments and re-dispatches any key without a durable result.
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileFulfillmentsConfig contains configuration for the job.
type ReconcileFulfillmentsConfig struct {
	// Lookback bounds how far back confirmed payments are swept.
	Lookback time.Duration

	// Timeout bounds one sweep.
	Timeout time.Duration
}

// DefaultReconcileFulfillmentsConfig returns sensible defaults.
func DefaultReconcileFulfillmentsConfig() ReconcileFulfillmentsConfig {
	return ReconcileFulfillmentsConfig{
		Lookback: 24 * time.Hour,
		Timeout:  2 * time.Minute,
	}
}

// ReconcileFulfillmentsJob re-dispatches computations for confirmed payments
// that have no persisted result.
type ReconcileFulfillmentsJob struct {
	payments   payment.Repository
	results    result.Repository
	leases     result.LeaseStore
	dispatcher *fulfillment.Dispatcher
	log        *logger.Logger
	config     ReconcileFulfillmentsConfig
}

// NewReconcileFulfillmentsJob creates the job.
func NewReconcileFulfillmentsJob(
	payments payment.Repository,
	results result.Repository,
	leases result.LeaseStore,
	dispatcher *fulfillment.Dispatcher,
	log *logger.Logger,
	config ReconcileFulfillmentsConfig,
) *ReconcileFulfillmentsJob {
	if log == nil {
		log = logger.Default()
	}
	if config.Lookback <= 0 {
		config = DefaultReconcileFulfillmentsConfig()
	}

	return &ReconcileFulfillmentsJob{
		payments:   payments,
		results:    results,
		leases:     leases,
		dispatcher: dispatcher,
		log:        log.With(logger.Component("reconcile_fulfillments")),
		config:     config,
	}
}

// Name returns the job name.
func (j *ReconcileFulfillmentsJob) Name() string {
	return "reconcile_fulfillments"
}

// Description returns a human-readable description.
func (j *ReconcileFulfillmentsJob) Description() string {
	return "Re-dispatches computations for confirmed payments without a result"
}

// Run executes one sweep.
func (j *ReconcileFulfillmentsJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	cutoff := time.Now().UTC().Add(-j.config.Lookback)
	confirmed, err := j.payments.FindConfirmedSince(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list confirmed payments: %w", err)
	}

	var redispatched int
	for _, record := range confirmed {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		exists, err := j.results.Exists(ctx, record.Key)
		if err != nil {
			j.log.Warn("result existence check failed",
				logger.IndexNumber(record.Key.IndexNumber.String()),
				logger.Err(err))
			continue
		}
		if exists {
			continue
		}

		// A held lease means a worker is already on it.
		held, err := j.leases.IsHeld(ctx, record.Key)
		if err != nil || held {
			continue
		}

		j.dispatcher.Dispatch(record.Key)
		redispatched++

		j.log.Info("re-dispatched stranded fulfillment",
			logger.IndexNumber(record.Key.IndexNumber.String()),
			logger.Category(record.Key.Category.String()),
			logger.PaymentID(record.ID))
	}

	j.log.Info("reconcile sweep finished",
		logger.Int("confirmed_checked", len(confirmed)),
		logger.Int("redispatched", redispatched))
	return nil
}
