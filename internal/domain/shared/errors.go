// Package shared contains common domain types, errors and events used across
// all domain packages. This package has zero external dependencies.
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
	ErrValidation   = errors.New("validation error")
	ErrInvalidID    = errors.New("invalid ID")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyValue   = errors.New("value cannot be empty")

	// State errors
	ErrInvalidState = errors.New("invalid state")

	// Authorization errors
	ErrNotEnrolled  = errors.New("learner is not enrolled")
	ErrUnauthorized = errors.New("unauthorized")

	// Concurrency errors
	ErrConflict = errors.New("concurrent write conflict")

	// Infrastructure errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "course", "progress", "certificate"
	Op      string // Operation that failed, e.g., "SetCompletion", "Issue"
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

// Course domain errors
var (
	ErrCourseNotFound  = NewDomainError("course", "Find", ErrNotFound, "course not found")
	ErrItemNotFound    = NewDomainError("course", "FindItem", ErrNotFound, "content item not found")
	ErrInvalidItemKind = NewDomainError("course", "Validate", ErrInvalidInput, "unknown content item kind")
	ErrInvalidPosition = NewDomainError("course", "Validate", ErrInvalidInput, "position must be positive")
	ErrPositionTaken   = NewDomainError("course", "PublishItem", ErrAlreadyExists, "position already taken in course")
)

// Progress domain errors
var (
	ErrEnrollmentNotFound = NewDomainError("progress", "FindEnrollment", ErrNotFound, "enrollment not found")
	ErrLearnerNotEnrolled = NewDomainError("progress", "SetCompletion", ErrNotEnrolled, "learner is not enrolled in the course")
	ErrConcurrentToggle   = NewDomainError("progress", "SetCompletion", ErrConflict, "concurrent completion toggle lost the race")
	ErrInvalidLearnerID   = NewDomainError("progress", "Validate", ErrInvalidID, "invalid learner ID")
)

// Certificate domain errors
var (
	ErrCertificateNotFound   = NewDomainError("certificate", "Find", ErrNotFound, "certificate not found")
	ErrCertificateIneligible = NewDomainError("certificate", "Issue", ErrInvalidState, "enrollment is not completed")
	ErrMalformedCode         = NewDomainError("certificate", "ParseCode", ErrInvalidInput, "malformed certificate code")
	ErrCodeCollision         = NewDomainError("certificate", "Insert", ErrAlreadyExists, "certificate code already taken")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNotEnrolled checks if the error reports a missing enrollment for an operation
// that requires one.
func IsNotEnrolled(err error) bool {
	return errors.Is(err, ErrNotEnrolled)
}

// IsConflict checks if the error is a lost storage race.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsInvalidState checks if the error is an invariant breach.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
