// Package apperr defines the error taxonomy shared by the filter engine,
// the workflow engine and their hosts.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every typed error below matches exactly one of them via errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrParse      = errors.New("parse failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

// Conflict codes.
const (
	CodeOnlyOneOpenConversation = "OnlyOneOpenConversationAllowedForPrivateMessage"
	CodeConversationNotClosed   = "ConversationNotClosed"
)

// ValidationError reports a condition value that does not fit its field.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed for %q (value %q): %s", e.Field, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validation builds a ValidationError.
func Validation(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity string, id int) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError reports an operation that would break a lifecycle invariant.
type ConflictError struct {
	Code    string
	Message string
}

func (e *ConflictError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is makes errors.Is(err, ErrConflict) hold.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Conflict builds a ConflictError.
func Conflict(code, message string) error {
	return &ConflictError{Code: code, Message: message}
}

// ConflictCode returns the code of a ConflictError in err's chain, or "".
func ConflictCode(err error) string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
