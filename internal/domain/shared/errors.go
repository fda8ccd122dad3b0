// Package shared contains common domain types, errors and events
// that are used across all domain packages. This package has zero external dependencies.
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

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// Storage errors
	ErrStorage = errors.New("storage error")

	// ErrDataInconsistency marks state that breaks a ledger invariant, such as
	// a record whose user does not exist. It is logged, never returned to callers.
	ErrDataInconsistency = errors.New("data inconsistency")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "user", "activity", "ranking"
	Op      string // Operation that failed, e.g., "Create", "Append"
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

// StorageError wraps a driver error raised by a storage adapter.
// Errors that already carry a domain kind are passed through unchanged.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return err
	}
	return WrapError("storage", op, ErrStorage, "storage operation failed", err)
}

// User domain errors
var (
	ErrUserNotFound      = NewDomainError("user", "Get", ErrNotFound, "user not found")
	ErrUserAlreadyExists = NewDomainError("user", "Create", ErrAlreadyExists, "user already exists")
	ErrInvalidUserID     = NewDomainError("user", "Validate", ErrInvalidID, "user id must not be empty")
	ErrNegativeDelta     = NewDomainError("user", "ApplyXPDelta", ErrNegativeValue, "xp delta must not be negative")
)

// Activity domain errors
var (
	ErrInvalidRecord      = NewDomainError("activity", "Append", ErrValidation, "invalid activity record")
	ErrDuplicateLogID     = NewDomainError("activity", "Append", ErrAlreadyExists, "log id already recorded")
	ErrInvalidAmount      = NewDomainError("activity", "Validate", ErrNegativeValue, "xp amount must be a non-negative integer")
	ErrInvalidKind        = NewDomainError("activity", "Validate", ErrInvalidInput, "activity kind must not be empty")
	ErrActivityOutOfRange = NewDomainError("activity", "Award", ErrValueOutOfRange, "activity value out of accepted range")
)

// Ranking domain errors
var (
	ErrInvalidWindow = NewDomainError("ranking", "Validate", ErrInvalidInput, "window must be positive")
	ErrInvalidLimit  = NewDomainError("ranking", "Validate", ErrValueOutOfRange, "limit must be positive")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsStorage checks if the error came from the storage layer.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}
