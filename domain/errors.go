/*
errors.go - Error taxonomy shared by all components

PURPOSE:
  All domain error types in one place. Components return these as typed
  results; the API layer maps them to HTTP statuses and clients own the
  user-facing messaging.

CATEGORIES:
  ErrValidation          Malformed input, user-correctable
  ErrNotFound            Unknown id
  ErrInvalidTransition   Permit already reviewed (terminal state)
  ErrInsufficientBalance Entitlement exceeded at approval time
  ErrForbidden           Principal lacks rights for the operation
  ErrInvalidTeacherState Impossible tenure/date data

USAGE:
  Structured errors wrap the sentinels, so callers can match either way:

    if errors.Is(err, domain.ErrInsufficientBalance) { ... }

    var bErr *domain.InsufficientBalanceError
    if errors.As(err, &bErr) { ... bErr.Available ... }
*/
package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("permit is not pending")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidTeacherState = errors.New("invalid teacher state")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a single rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientBalanceError reports an approval that would overdraw a
// teacher's category balance.
type InsufficientBalanceError struct {
	TeacherID string
	Type      PermitType
	Available int
	Requested int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance for teacher %s: available %d, requested %d",
		e.Type, e.TeacherID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InvalidTransitionError reports a review attempted on a permit that
// already reached a terminal state.
type InvalidTransitionError struct {
	PermitID string
	Status   PermitStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("permit %s is %s, not pending", e.PermitID, e.Status)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// InvalidTeacherStateError reports teacher data that makes entitlement
// computation impossible (e.g. hire date in the future).
type InvalidTeacherStateError struct {
	TeacherID string
	Detail    string
}

func (e *InvalidTeacherStateError) Error() string {
	return fmt.Sprintf("teacher %s: %s", e.TeacherID, e.Detail)
}

func (e *InvalidTeacherStateError) Unwrap() error { return ErrInvalidTeacherState }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidTeacherState)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
