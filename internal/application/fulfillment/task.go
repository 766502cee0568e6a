package fulfillment

import (
	"context"
	"sync"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
	"github.com/kuccps-hub/course-match-hub/internal/domain/result"
	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// Runs computations in the background so that polling clients never block on
// a catalog scan. One dispatch per key at a time is enforced by the
// coordinator's lease, not by the dispatcher.
// ══════════════════════════════════════════════════════════════════════════════

// Task is one observable in-flight computation.
type Task struct {
	// Key is the unit of work.
	Key candidate.Key

	done chan struct{}
	res  *result.QualificationResult
	err  error
}

// Await blocks until the computation finishes or the context is cancelled.
func (t *Task) Await(ctx context.Context) (*result.QualificationResult, error) {
	select {
	case <-t.done:
		return t.res, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done returns a channel closed when the computation finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// DispatcherConfig contains tunables for the dispatcher.
type DispatcherConfig struct {
	// MaxConcurrent bounds the number of computations running at once.
	MaxConcurrent int

	// TaskTimeout bounds one computation end to end.
	TaskTimeout time.Duration
}

// DefaultDispatcherConfig returns default configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxConcurrent: 8,
		TaskTimeout:   90 * time.Second,
	}
}

// Dispatcher runs coordinator computations asynchronously.
type Dispatcher struct {
	coordinator *Coordinator
	log         *logger.Logger

	sem     chan struct{}
	timeout time.Duration

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(coordinator *Coordinator, log *logger.Logger, config DispatcherConfig) *Dispatcher {
	if config.MaxConcurrent <= 0 {
		config = DefaultDispatcherConfig()
	}
	if log == nil {
		log = logger.Default()
	}

	return &Dispatcher{
		coordinator: coordinator,
		log:         log.With(logger.Component("dispatcher")),
		sem:         make(chan struct{}, config.MaxConcurrent),
		timeout:     config.TaskTimeout,
	}
}

// Dispatch starts a background computation for the key and returns an
// observable task. The computation outlives the caller's request context.
// A dispatch on a closed dispatcher completes immediately with an error.
func (d *Dispatcher) Dispatch(key candidate.Key) *Task {
	task := &Task{Key: key, done: make(chan struct{})}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		task.err = shared.WrapError("fulfillment", "Dispatch", shared.ErrInvalidState,
			"dispatcher is shut down", nil)
		close(task.done)
		return task
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer close(task.done)

		d.sem <- struct{}{}
		defer func() { <-d.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		task.res, task.err = d.coordinator.Process(ctx, key)
		if task.err != nil && !shared.IsInFlight(task.err) {
			d.log.Error("background computation failed",
				logger.IndexNumber(key.IndexNumber.String()),
				logger.Category(key.Category.String()),
				logger.Err(task.err))
		}
	}()

	return task
}

// Close stops accepting new work and waits for in-flight computations.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
