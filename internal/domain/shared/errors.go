// Package shared contains common domain types, errors, and events that are
// used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrExpired          = errors.New("expired")

	// Precondition signals (not failures)
	ErrPreconditionNotMet = errors.New("precondition not met")
	ErrInFlight           = errors.New("operation already in flight")

	// Persistence and computation errors (retryable)
	ErrPersistence = errors.New("persistence failure")
	ErrComputation = errors.New("computation failure")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "candidate", "payment", "fulfillment"
	Op      string // Operation that failed, e.g., "ParseGrade", "Acquire"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Candidate domain errors
var (
	ErrInvalidGrade        = NewDomainError("candidate", "ParseGrade", ErrInvalidFormat, "unrecognized grade token")
	ErrInvalidIndexNumber  = NewDomainError("candidate", "Validate", ErrInvalidID, "invalid exam index number")
	ErrInvalidPhoneNumber  = NewDomainError("candidate", "Validate", ErrInvalidFormat, "invalid phone number")
	ErrInvalidEmail        = NewDomainError("candidate", "Validate", ErrInvalidFormat, "invalid email address")
	ErrInvalidCategory     = NewDomainError("candidate", "Validate", ErrInvalidInput, "unknown course category")
	ErrProfileNotFound     = NewDomainError("candidate", "Find", ErrNotFound, "candidate profile not found")
	ErrProfileExpired      = NewDomainError("candidate", "Find", ErrExpired, "candidate profile session expired")
	ErrMissingMeanGrade    = NewDomainError("candidate", "Validate", ErrEmptyValue, "mean grade is required for this category")
	ErrMissingClusterScore = NewDomainError("candidate", "Validate", ErrEmptyValue, "cluster points are required for degree matching")
)

// Catalog domain errors
var (
	ErrMissingCatalogPartition = NewDomainError("catalog", "Scan", ErrNotFound, "catalog partition unavailable")
	ErrUnknownPartition        = NewDomainError("catalog", "Validate", ErrInvalidInput, "partition not registered for category")
)

// Payment domain errors
var (
	ErrPaymentNotFound     = NewDomainError("payment", "Find", ErrNotFound, "payment record not found")
	ErrPaymentNotConfirmed = NewDomainError("payment", "CheckConfirmed", ErrPreconditionNotMet, "payment is not confirmed")
	ErrPaymentAlreadyFinal = NewDomainError("payment", "Confirm", ErrAlreadyProcessed, "payment already in a terminal state")
	ErrDuplicateReference  = NewDomainError("payment", "Create", ErrAlreadyExists, "gateway reference already recorded")
)

// Fulfillment domain errors
var (
	ErrResultNotFound            = NewDomainError("result", "Find", ErrNotFound, "qualification result not found")
	ErrProcessingAlreadyInFlight = NewDomainError("fulfillment", "Acquire", ErrInFlight, "computation already in progress for this key")
	ErrPersistenceFailure        = NewDomainError("fulfillment", "Persist", ErrPersistence, "failed to persist qualification result")
	ErrComputationFailure        = NewDomainError("fulfillment", "Compute", ErrComputation, "failed to compute qualification result")
	ErrLeaseNotHeld              = NewDomainError("fulfillment", "Release", ErrInvalidState, "lease not held by this owner")
)

// Gateway errors
var (
	ErrGatewayUnavailable = NewDomainError("gateway", "Request", ErrServiceUnavailable, "payment gateway is unavailable")
	ErrGatewayRejected    = NewDomainError("gateway", "Request", ErrExternalService, "payment gateway rejected the request")
	ErrGatewayTimeout     = NewDomainError("gateway", "Request", ErrTimeout, "payment gateway request timeout")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsInFlight checks if the error is the idempotent "already in progress" signal.
func IsInFlight(err error) bool {
	return errors.Is(err, ErrInFlight)
}

// IsPrecondition checks if the error is a precondition guard, not a failure.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPreconditionNotMet)
}

// IsRetryable checks if the operation can be retried. Every retryable error
// is scoped to a single (candidate, category) unit of work and never
// propagates as a process-wide failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence) ||
		errors.Is(err, ErrComputation) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
