// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/application/fulfillment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/payment"
	"github.com/kuccps-hub/course-match-hub/internal/domain/result"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RESULT STATUS QUERY
// The polling endpoint behind the waiting page. Source precedence:
//
//	1. status cache hit            → ready
//	2. durable store hit           → ready (and re-warm the cache)
//	3. lease held                  → in_progress
//	4. latest payment confirmed    → dispatch computation, report in_progress
//	5. latest payment initiated    → payment_initiated
//	6. latest payment failed       → payment_failed
//	7. nothing                     → no_payment
//
// Step 4 makes polling self-healing: a confirmed payment whose dispatch was
// lost (crash, missed webhook) is re-driven by the next poll.
// ══════════════════════════════════════════════════════════════════════════════

// GetResultStatusQuery contains the status poll parameters.
type GetResultStatusQuery struct {
	// Key identifies the unit of work being polled.
	Key candidate.Key
}

// Validate validates the query.
func (q GetResultStatusQuery) Validate() error {
	if !q.Key.IsValid() {
		return shared.WrapError("query", "GetResultStatus", shared.ErrInvalidInput,
			"malformed candidate key", nil)
	}
	return nil
}

// GetResultStatusResult contains the status poll response.
type GetResultStatusResult struct {
	// View is the client-facing status payload.
	View result.StatusView

	// CheckedAt is when the status was assembled.
	CheckedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetResultStatusHandler handles the GetResultStatusQuery.
type GetResultStatusHandler struct {
	statusCache result.StatusCache
	results     result.Repository
	leases      result.LeaseStore
	payments    payment.Repository
	dispatcher  *fulfillment.Dispatcher
	log         *logger.Logger

	statusCacheTTL time.Duration
}

// NewGetResultStatusHandler creates a new GetResultStatusHandler.
func NewGetResultStatusHandler(
	statusCache result.StatusCache,
	results result.Repository,
	leases result.LeaseStore,
	payments payment.Repository,
	dispatcher *fulfillment.Dispatcher,
	log *logger.Logger,
	statusCacheTTL time.Duration,
) *GetResultStatusHandler {
	if statusCacheTTL == 0 {
		statusCacheTTL = 30 * time.Minute
	}
	if log == nil {
		log = logger.Default()
	}

	return &GetResultStatusHandler{
		statusCache:    statusCache,
		results:        results,
		leases:         leases,
		payments:       payments,
		dispatcher:     dispatcher,
		log:            log.With(logger.Component("result_status")),
		statusCacheTTL: statusCacheTTL,
	}
}

// Handle executes the status query. The query itself never fails a poll over
// a degraded cache or lease store; it falls through to the next source.
func (h *GetResultStatusHandler) Handle(ctx context.Context, query GetResultStatusQuery) (*GetResultStatusResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	// 1. Fast cache.
	if h.statusCache != nil {
		if count, ok, err := h.statusCache.GetReady(ctx, query.Key); err == nil && ok {
			return h.ready(count, now), nil
		} else if err != nil {
			h.log.Warn("status cache read failed", logger.Err(err))
		}
	}

	// 2. Durable store.
	if res, err := h.results.Get(ctx, query.Key); err == nil {
		h.warmCache(ctx, query.Key, res.MatchCount)
		return h.ready(res.MatchCount, now), nil
	} else if !shared.IsNotFound(err) {
		return nil, shared.WrapError("query", "GetResultStatus", shared.ErrPersistence,
			"result lookup failed", err)
	}

	// 3. Lease.
	if h.leases != nil {
		if held, err := h.leases.IsHeld(ctx, query.Key); err == nil && held {
			return h.status(result.StatusInProgress, now), nil
		} else if err != nil {
			h.log.Warn("lease probe failed", logger.Err(err))
		}
	}

	// 4-7. Latest payment decides.
	record, err := h.payments.GetLatestByKey(ctx, query.Key)
	if err != nil {
		if shared.IsNotFound(err) {
			return h.status(result.StatusNoPayment, now), nil
		}
		return nil, shared.WrapError("query", "GetResultStatus", shared.ErrPersistence,
			"payment lookup failed", err)
	}

	switch record.State {
	case payment.StateConfirmed:
		// Confirmed but no result and no lease: the computation was lost.
		// Re-drive it and report in_progress.
		if h.dispatcher != nil {
			h.dispatcher.Dispatch(query.Key)
			h.log.Info("re-dispatched lost computation",
				logger.IndexNumber(query.Key.IndexNumber.String()),
				logger.Category(query.Key.Category.String()))
		}
		return h.status(result.StatusInProgress, now), nil
	case payment.StateFailed:
		return h.status(result.StatusPaymentFailed, now), nil
	default:
		return h.status(result.StatusPaymentInitiated, now), nil
	}
}

func (h *GetResultStatusHandler) ready(count int, now time.Time) *GetResultStatusResult {
	return &GetResultStatusResult{
		View:      result.StatusView{State: result.StatusReady, Ready: true, Count: count},
		CheckedAt: now,
	}
}

func (h *GetResultStatusHandler) status(state result.Status, now time.Time) *GetResultStatusResult {
	return &GetResultStatusResult{
		View:      result.StatusView{State: state},
		CheckedAt: now,
	}
}

func (h *GetResultStatusHandler) warmCache(ctx context.Context, key candidate.Key, count int) {
	if h.statusCache == nil {
		return
	}
	if err := h.statusCache.SetReady(ctx, key, count, h.statusCacheTTL); err != nil {
		h.log.Warn("status cache write failed", logger.Err(err))
	}
}
