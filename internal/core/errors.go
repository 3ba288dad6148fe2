package core

import (
	"errors"
	"fmt"
)

// Error categories. Match with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrExternalSync       = errors.New("external sync failed")
	ErrDivisionDegenerate = errors.New("division by zero")
)

// Field-level validation reasons.
var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidType      = errors.New("type must be income or expense")
	ErrInvalidPeriod    = errors.New("period must be weekly, monthly or yearly")
	ErrInvalidSource    = errors.New("source must be manual or bank")
	ErrInvalidStatus    = errors.New("invalid account status")
	ErrInvalidColor     = errors.New("color must be #rrggbb")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyID          = errors.New("empty id")
	ErrDuplicateID      = errors.New("duplicate id")
	ErrTooLong          = errors.New("too long (max 200 characters)")
)

// ValidationError reports a missing or invalid field on create or edit.
type ValidationError struct {
	Field string
	Err   error
}

func invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// NewValidationError builds a ValidationError for callers outside core.
func NewValidationError(field string, err error) error {
	return invalid(field, err)
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports an operation on an id that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func NewNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ExternalSyncError wraps a failed Bank Sync Gateway call.
type ExternalSyncError struct {
	AccountID string
	Err       error
}

func (e *ExternalSyncError) Error() string {
	return fmt.Sprintf("sync account %q: %v", e.AccountID, e.Err)
}

func (e *ExternalSyncError) Unwrap() error { return e.Err }

func (e *ExternalSyncError) Is(target error) bool { return target == ErrExternalSync }
