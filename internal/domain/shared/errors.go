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

	// Concurrency errors
	ErrOptimisticLock = errors.New("optimistic lock failure")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "student", "penalty", "bonus"
	Op      string // Operation that failed, e.g., "Apply", "Waive"
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

// Student errors
var (
	ErrStudentNotFound      = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrStudentAlreadyExists = NewDomainError("student", "Create", ErrAlreadyExists, "student already exists")
	ErrInvalidStudentID     = NewDomainError("student", "Validate", ErrInvalidID, "invalid student ID")
	ErrStudentVersionStale  = NewDomainError("student", "Save", ErrOptimisticLock, "student was modified concurrently")
)

// Ledger errors
var (
	ErrInvalidPenaltyType = NewDomainError("penalty", "Validate", ErrInvalidInput, "unknown penalty type")
	ErrInvalidBonusType   = NewDomainError("bonus", "Validate", ErrInvalidInput, "unknown bonus type")
	ErrInvalidActor       = NewDomainError("ledger", "Validate", ErrInvalidInput, "actor must be system or tutor")
	ErrPenaltyNotFound    = NewDomainError("penalty", "Find", ErrNotFound, "penalty not found")
	ErrEmptyWaiveReason   = NewDomainError("penalty", "Waive", ErrEmptyValue, "waive reason is required")
	ErrEmptyWaivedBy      = NewDomainError("penalty", "Waive", ErrEmptyValue, "waived_by is required")
	ErrNegativePoints     = NewDomainError("penalty", "Preview", ErrNegativeValue, "current points cannot be negative")
	ErrNegativeBonus      = NewDomainError("bonus", "Validate", ErrNegativeValue, "bonus points cannot be negative")
	ErrInvalidPeriod      = NewDomainError("penalty", "Summary", ErrValueOutOfRange, "period must be a positive number of days")
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

// IsConflict checks if the error is a concurrent write conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrOptimisticLock)
}
