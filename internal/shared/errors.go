package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates a referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrCounterUnavailable indicates the sequence counter transaction could not commit.
	// It is the only transient error class; callers retry with bounded backoff.
	ErrCounterUnavailable = errors.New("sequence counter unavailable")
	// ErrCrossOwner indicates a settlement referenced loads belonging to another driver.
	ErrCrossOwner = errors.New("load belongs to another driver")
	// ErrLockHeld indicates another writer holds the entity lock.
	ErrLockHeld = errors.New("entity lock held by another writer")
)

// ValidationError reports every violation found, not just the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

// NewValidationError builds a ValidationError from collected violations.
func NewValidationError(violations ...string) *ValidationError {
	return &ValidationError{Violations: violations}
}

// StateError reports a status precondition failure and names the current status.
type StateError struct {
	Entity    string
	Current   string
	Attempted string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s in status %q cannot transition to %q", e.Entity, e.Current, e.Attempted)
}

// PaymentError reports an invalid payment and carries the maximum accepted
// amount so the caller can render it without re-deriving the balance.
type PaymentError struct {
	Reason    string
	MaxAmount float64
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("invalid payment: %s (max allowed %.2f)", e.Reason, e.MaxAmount)
}
