package fulfillment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/result"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FULFILLMENT COORDINATOR
// Drives one qualification computation per key:
//
//	fast path → lease acquire → scan → first-writer-wins upsert → release
//
// The durable store is the single source of truth; the lease only prevents
// duplicate concurrent work, it never gates correctness. Process is safe to
// call any number of times for the same key.
// ══════════════════════════════════════════════════════════════════════════════

// CoordinatorConfig contains tunables for the coordinator.
type CoordinatorConfig struct {
	// LeaseTTL bounds how long a crashed computation can block its key.
	LeaseTTL time.Duration

	// StatusCacheTTL is how long a ready status stays in the fast cache.
	StatusCacheTTL time.Duration
}

// DefaultCoordinatorConfig returns default configuration.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		LeaseTTL:       2 * time.Minute,
		StatusCacheTTL: 30 * time.Minute,
	}
}

// Coordinator owns the computation lifecycle for qualification results.
type Coordinator struct {
	results     result.Repository
	leases      result.LeaseStore
	statusCache result.StatusCache
	profiles    candidate.ProfileStore
	scanner     *Scanner
	bus         shared.EventBus
	log         *logger.Logger

	leaseTTL       time.Duration
	statusCacheTTL time.Duration
}

// NewCoordinator creates a new Coordinator.
func NewCoordinator(
	results result.Repository,
	leases result.LeaseStore,
	statusCache result.StatusCache,
	profiles candidate.ProfileStore,
	scanner *Scanner,
	bus shared.EventBus,
	log *logger.Logger,
	config CoordinatorConfig,
) *Coordinator {
	if config.LeaseTTL == 0 {
		config = DefaultCoordinatorConfig()
	}
	if log == nil {
		log = logger.Default()
	}

	return &Coordinator{
		results:        results,
		leases:         leases,
		statusCache:    statusCache,
		profiles:       profiles,
		scanner:        scanner,
		bus:            bus,
		log:            log.With(logger.Component("coordinator")),
		leaseTTL:       config.LeaseTTL,
		statusCacheTTL: config.StatusCacheTTL,
	}
}

// Process computes and persists the qualification result for one key.
//
// Returns the surviving persisted result, which may have been written by an
// earlier or concurrent computation. Returns ErrProcessingAlreadyInFlight
// when another computation currently holds the key's lease; callers treat
// that as "in progress", not as a failure.
func (c *Coordinator) Process(ctx context.Context, key candidate.Key) (*result.QualificationResult, error) {
	if !key.IsValid() {
		return nil, shared.WrapError("fulfillment", "Process", shared.ErrInvalidInput,
			"malformed candidate key", nil)
	}

	// Fast path: an existing result makes the whole call a no-op.
	if existing, err := c.results.Get(ctx, key); err == nil {
		c.warmStatusCache(ctx, key, existing.MatchCount)
		return existing, nil
	} else if !shared.IsNotFound(err) {
		return nil, shared.WrapError("fulfillment", "Process", shared.ErrPersistence,
			"result lookup failed", err)
	}

	owner := uuid.NewString()
	acquired, err := c.leases.Acquire(ctx, key, owner, c.leaseTTL)
	if err != nil {
		return nil, shared.WrapError("fulfillment", "Process", shared.ErrPersistence,
			"lease acquire failed", err)
	}
	if !acquired {
		return nil, shared.ErrProcessingAlreadyInFlight
	}
	defer func() {
		if err := c.leases.Release(context.WithoutCancel(ctx), key, owner); err != nil {
			// The lease self-expires; a failed release only delays retries.
			c.log.Warn("lease release failed",
				logger.String("key", key.String()), logger.Err(err))
		}
	}()

	// Re-check under the lease: a concurrent computation may have finished
	// between the fast path and the acquire.
	if existing, err := c.results.Get(ctx, key); err == nil {
		c.warmStatusCache(ctx, key, existing.MatchCount)
		return existing, nil
	}

	res, err := c.compute(ctx, key)
	if err != nil {
		c.publishFailure(key, err)
		return nil, err
	}

	surviving, err := c.results.Upsert(ctx, res)
	if err != nil {
		err = shared.WrapError("fulfillment", "Process", shared.ErrPersistence,
			"result upsert failed", err)
		c.publishFailure(key, err)
		return nil, err
	}

	c.warmStatusCache(ctx, key, surviving.MatchCount)
	c.publishReady(key, surviving.MatchCount)

	c.log.Info("qualification result persisted",
		logger.IndexNumber(key.IndexNumber.String()),
		logger.Category(key.Category.String()),
		logger.MatchCount(surviving.MatchCount))

	return surviving, nil
}

// compute loads the profile and runs the catalog scan. A zero-match scan is a
// success: the empty result is persisted and servable like any other.
func (c *Coordinator) compute(ctx context.Context, key candidate.Key) (*result.QualificationResult, error) {
	profile, err := c.profiles.Get(ctx, key)
	if err != nil {
		if shared.IsNotFound(err) || errors.Is(err, shared.ErrExpired) {
			return nil, shared.WrapError("fulfillment", "Process", shared.ErrComputation,
				"candidate profile unavailable for scan", err)
		}
		return nil, shared.WrapError("fulfillment", "Process", shared.ErrPersistence,
			"profile lookup failed", err)
	}

	matches, err := c.scanner.Scan(ctx, profile)
	if err != nil {
		return nil, err
	}

	return result.NewQualificationResult(key, matches), nil
}

// warmStatusCache writes the ready status to the fast cache. Best effort: the
// durable store already holds the truth.
func (c *Coordinator) warmStatusCache(ctx context.Context, key candidate.Key, count int) {
	if c.statusCache == nil {
		return
	}
	if err := c.statusCache.SetReady(ctx, key, count, c.statusCacheTTL); err != nil {
		c.log.Warn("status cache write failed",
			logger.String("key", key.String()), logger.Err(err))
	}
}

func (c *Coordinator) publishReady(key candidate.Key, count int) {
	if c.bus == nil {
		return
	}
	event := shared.ResultReadyEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventResultReady, key.String()),
		Email:       key.Email,
		IndexNumber: key.IndexNumber.String(),
		Category:    key.Category.String(),
		MatchCount:  count,
	}
	if err := c.bus.Publish(event); err != nil {
		c.log.Warn("result ready event publish failed", logger.Err(err))
	}
}

func (c *Coordinator) publishFailure(key candidate.Key, cause error) {
	if c.bus == nil {
		return
	}
	event := shared.FulfillmentFailedEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventFulfillmentFailed, key.String()),
		Email:       key.Email,
		IndexNumber: key.IndexNumber.String(),
		Category:    key.Category.String(),
		Reason:      cause.Error(),
	}
	if err := c.bus.Publish(event); err != nil {
		c.log.Warn("fulfillment failed event publish failed", logger.Err(err))
	}
}
