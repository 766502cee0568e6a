// Package messaging implements the in-process event bus for Course Match Hub.
// Events fan out asynchronously through a bounded worker pool; handler
// failures are logged, never propagated back to the publisher.
package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kuccps-hub/course-match-hub/internal/domain/shared"
	"github.com/kuccps-hub/course-match-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrNilHandler is returned when a nil handler is subscribed.
	ErrNilHandler = errors.New("handler cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the event bus.
type Config struct {
	// WorkerPoolSize bounds the number of concurrently running handlers.
	WorkerPoolSize int

	// HandlerTimeout bounds a single handler invocation.
	HandlerTimeout time.Duration

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WorkerPoolSize: 10,
		HandlerTimeout: 30 * time.Second,
	}
}

// Bus is an in-memory implementation of shared.EventBus.
// Suitable for single-instance deployments: cross-instance exclusivity is
// already handled by the Redis lease, not by event delivery.
type Bus struct {
	mu       sync.RWMutex
	handlers map[shared.EventType][]shared.EventHandler

	workerPool chan struct{}
	timeout    time.Duration
	log        *logger.Logger

	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewBus creates a new in-memory event bus.
func NewBus(config Config) *Bus {
	log := config.Logger
	if log == nil {
		log = logger.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 30 * time.Second
	}

	return &Bus{
		handlers:   make(map[shared.EventType][]shared.EventHandler),
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		timeout:    config.HandlerTimeout,
		log:        log.With(logger.Component("eventbus")),
		closeCh:    make(chan struct{}),
	}
}

var _ shared.EventBus = (*Bus)(nil)

// Subscribe registers a handler for a specific event type.
func (b *Bus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.log.Debug("subscribed handler", logger.String("event_type", string(eventType)))
	return nil
}

// Publish fans the event out to all subscribed handlers asynchronously.
// Publish never blocks on handler execution.
func (b *Bus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, len(b.handlers[event.EventType()]))
	copy(handlers, b.handlers[event.EventType()])
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.log.Debug("no handlers for event",
			logger.String("event_type", string(event.EventType())))
		return nil
	}

	for _, handler := range handlers {
		b.execute(event, handler)
	}
	return nil
}

// execute runs one handler through the worker pool.
func (b *Bus) execute(event shared.Event, handler shared.EventHandler) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		select {
		case b.workerPool <- struct{}{}:
			defer func() { <-b.workerPool }()
		case <-b.closeCh:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		start := time.Now()
		if err := handler(ctx, event); err != nil {
			b.log.Error("event handler failed",
				logger.String("event_type", string(event.EventType())),
				logger.String("aggregate_id", event.AggregateID()),
				logger.Latency(time.Since(start)),
				logger.Err(err))
		}
	}()
}

// Close shuts the bus down and waits for in-flight handlers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()

	b.log.Info("event bus closed")
	return nil
}
