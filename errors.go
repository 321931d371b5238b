package tally

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios. Store adapters wrap these
// with the offending identifiers so callers can match with errors.Is while
// still seeing structured detail in the message.
var (
	// Configuration errors
	ErrTenantRequired = errors.New("tally: tenant identity required")
	ErrInvalidInput   = errors.New("tally: invalid input")

	// Account errors
	ErrAccountExists    = errors.New("tally: account already exists")
	ErrAccountNotFound  = errors.New("tally: account not found")
	ErrCurrencyMismatch = errors.New("tally: currency mismatch")

	// Event errors
	ErrEventNotFound           = errors.New("tally: event not found")
	ErrAlreadyReversed         = errors.New("tally: event already reversed")
	ErrDuplicateIdempotencyKey = errors.New("tally: duplicate idempotency key")
	ErrSequenceConflict        = errors.New("tally: sequence number conflict")

	// Audit errors
	ErrAuditEmission = errors.New("tally: audit emission failed")

	// Store errors
	ErrStoreClosed = errors.New("tally: store is closed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tally: validation failed for %s: %s", e.Field, e.Message)
}

// Is lets errors.Is match a ValidationError against ErrInvalidInput.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// IsNotFound returns true if the error reports a missing account or event.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrEventNotFound)
}

// IsConflict returns true if the error reports a storage uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAccountExists) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrSequenceConflict) ||
		errors.Is(err, ErrAlreadyReversed)
}

// IsRetryable returns true if the operation may succeed when retried.
// A duplicate idempotency key means a concurrent retry already won the race:
// the caller re-reads instead of failing. A sequence conflict means an
// out-of-process writer took the assigned slot.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrSequenceConflict)
}
