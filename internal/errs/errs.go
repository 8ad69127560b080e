// Package errs defines the engine's error taxonomy. Callers classify
// failures with the As* helpers instead of matching error strings.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input rejected before any write.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown candidate or job id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NotFound builds a NotFoundError for the given entity and id.
func NotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// IllegalTransitionError reports an action not permitted from the
// candidate's current status. No mutation has occurred.
type IllegalTransitionError struct {
	Action string
	From   string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("action %q not allowed from status %q", e.Action, e.From)
}

// ConflictError reports a failed optimistic update, e.g. a concurrent
// convert flipped the status first. Retryable after refresh.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Msg }

// Conflictf builds a ConflictError from a format string.
func Conflictf(format string, args ...any) *ConflictError {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// UpstreamSourceError reports an enrichment source that is unreachable or
// returned malformed data.
type UpstreamSourceError struct {
	Source string
	Err    error
}

func (e *UpstreamSourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *UpstreamSourceError) Unwrap() error { return e.Err }

// PersistenceError wraps an adapter failure. The engine performs no local
// recovery; only the adapter knows retry semantics.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a PersistenceError for the given operation.
func Persistence(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var t *ValidationError
	return errors.As(err, &t)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var t *NotFoundError
	return errors.As(err, &t)
}

// IsIllegalTransition reports whether err is an IllegalTransitionError.
func IsIllegalTransition(err error) bool {
	var t *IllegalTransitionError
	return errors.As(err, &t)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var t *ConflictError
	return errors.As(err, &t)
}

// IsUpstreamSource reports whether err is an UpstreamSourceError.
func IsUpstreamSource(err error) bool {
	var t *UpstreamSourceError
	return errors.As(err, &t)
}

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool {
	var t *PersistenceError
	return errors.As(err, &t)
}
