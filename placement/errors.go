/*
errors.go - Error taxonomy for the placement engine

PURPOSE:
  All error types in one place. Callers branch with errors.Is on the
  sentinels; structured errors carry the context a caller needs to act
  (missing field names, current vs. required state, denial reason).

ERROR CATEGORIES:
  ErrValidation          missing/malformed input, rejected before any write
  ErrConflict            duplicate entity (job details, agreement)
  ErrNotFound            referenced entity absent
  ErrUnauthorized        capability check failed
  ErrPreconditionFailed  e.g. payment recorded before proof upload
  ErrInvalidState        entity state forbids the operation
  ErrInvalidArgument     pure-function argument outside its domain
  ErrConcurrentModification  optimistic version check lost a race

SEE ALSO:
  - api/handlers.go: statusFor maps these to HTTP codes
*/
package placement

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidArgument    = errors.New("invalid argument")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	ErrConsultantNotFound = fmt.Errorf("consultant %w", ErrNotFound)
	ErrJobDetailsNotFound = fmt.Errorf("job details %w", ErrNotFound)
	ErrAgreementNotFound  = fmt.Errorf("agreement %w", ErrNotFound)
	ErrProofNotFound      = fmt.Errorf("proof %w", ErrNotFound)

	ErrJobDetailsExists = fmt.Errorf("job details already exist: %w", ErrConflict)
	ErrAgreementExists  = fmt.Errorf("agreement already exists: %w", ErrConflict)
	ErrResumeClaimed    = fmt.Errorf("resume builder already assigned: %w", ErrConflict)

	ErrProofRequired = fmt.Errorf("proof must be uploaded before recording payment: %w", ErrPreconditionFailed)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError lists the offending fields.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func missingFields(fields ...string) error {
	return &ValidationError{Fields: fields, Message: "missing required fields"}
}

func invalidField(field, msg string) error {
	return &ValidationError{Fields: []string{field}, Message: msg}
}

// StateError reports the state an entity is in against the one required.
type StateError struct {
	Entity   string
	Current  string
	Required string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s is %s, operation requires %s", e.Entity, e.Current, e.Required)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// DeniedError is returned by the Authorization Gate.
type DeniedError struct {
	Role   Role
	Action Action
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s may not %s: %s", e.Role, e.Action, e.Reason)
}

func (e *DeniedError) Unwrap() error { return ErrUnauthorized }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrPreconditionFailed) ||
		errors.Is(err, ErrInvalidState)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
