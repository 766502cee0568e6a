// Package shared contains common domain types, errors, and events that are
// used across all domain packages.
package shared

import (
	"context"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven flow from payment
// confirmation to fulfillment.
const (
	// Candidate events
	EventProfileSubmitted EventType = "candidate.profile_submitted"

	// Payment events
	EventPaymentInitiated EventType = "payment.initiated"
	EventPaymentConfirmed EventType = "payment.confirmed"
	EventPaymentFailed    EventType = "payment.failed"

	// Fulfillment events
	EventFulfillmentStarted EventType = "fulfillment.started"
	EventFulfillmentFailed  EventType = "fulfillment.failed"
	EventResultReady        EventType = "fulfillment.result_ready"
	EventPartitionSkipped   EventType = "fulfillment.partition_skipped"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Payment Events
// ═══════════════════════════════════════════════════════════════════════════

// PaymentInitiatedEvent is emitted when a gateway charge has been requested.
type PaymentInitiatedEvent struct {
	BaseEvent
	Email       string  `json:"email"`
	IndexNumber string  `json:"index_number"`
	Category    string  `json:"category"`
	Reference   string  `json:"reference"`
	Amount      float64 `json:"amount"`
}

// Payload implements Event interface.
func (e PaymentInitiatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"email":        e.Email,
		"index_number": e.IndexNumber,
		"category":     e.Category,
		"reference":    e.Reference,
		"amount":       e.Amount,
	}
}

// PaymentConfirmedEvent is emitted exactly once per payment when the gateway
// reports a successful charge (webhook or status poll, whichever lands first).
type PaymentConfirmedEvent struct {
	BaseEvent
	Email       string `json:"email"`
	IndexNumber string `json:"index_number"`
	Category    string `json:"category"`
	Reference   string `json:"reference"`
}

// Payload implements Event interface.
func (e PaymentConfirmedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"email":        e.Email,
		"index_number": e.IndexNumber,
		"category":     e.Category,
		"reference":    e.Reference,
	}
}

// PaymentFailedEvent is emitted when the gateway reports a failed charge.
type PaymentFailedEvent struct {
	BaseEvent
	Email       string `json:"email"`
	IndexNumber string `json:"index_number"`
	Category    string `json:"category"`
	Reference   string `json:"reference"`
	Reason      string `json:"reason"`
}

// Payload implements Event interface.
func (e PaymentFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"email":        e.Email,
		"index_number": e.IndexNumber,
		"category":     e.Category,
		"reference":    e.Reference,
		"reason":       e.Reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Fulfillment Events
// ═══════════════════════════════════════════════════════════════════════════

// ResultReadyEvent is emitted when a qualification result has been durably
// persisted and is servable to polling clients.
type ResultReadyEvent struct {
	BaseEvent
	Email       string `json:"email"`
	IndexNumber string `json:"index_number"`
	Category    string `json:"category"`
	MatchCount  int    `json:"match_count"`
}

// Payload implements Event interface.
func (e ResultReadyEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"email":        e.Email,
		"index_number": e.IndexNumber,
		"category":     e.Category,
		"match_count":  e.MatchCount,
	}
}

// FulfillmentFailedEvent is emitted when a computation or persistence attempt
// failed for one key. The failure is retryable and scoped to the key.
type FulfillmentFailedEvent struct {
	BaseEvent
	Email       string `json:"email"`
	IndexNumber string `json:"index_number"`
	Category    string `json:"category"`
	Reason      string `json:"reason"`
}

// Payload implements Event interface.
func (e FulfillmentFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"email":        e.Email,
		"index_number": e.IndexNumber,
		"category":     e.Category,
		"reason":       e.Reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler processes a single domain event.
type EventHandler func(ctx context.Context, event Event) error

// EventBus publishes domain events to subscribed handlers.
// Implementations live in infrastructure/messaging.
type EventBus interface {
	// Publish sends an event to all subscribed handlers.
	Publish(event Event) error

	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// Close shuts the bus down, waiting for in-flight handlers.
	Close() error
}
