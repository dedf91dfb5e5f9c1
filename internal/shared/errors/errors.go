// Package errors is the application error taxonomy. Each AppError carries the
// HTTP status the API answers with, and can wrap a domain sentinel so
// errors.Is still matches it.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation          ErrorType = "validation_error"
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeInternal            ErrorType = "internal_error"
	ErrorTypeInvalidState        ErrorType = "invalid_state"
	ErrorTypeNotEntitled         ErrorType = "not_entitled"
	ErrorTypeConfiguration       ErrorType = "configuration_error"
	ErrorTypeConcurrencyConflict ErrorType = "concurrency_conflict"
)

var statusCodes = map[ErrorType]int{
	ErrorTypeValidation:          http.StatusBadRequest,
	ErrorTypeNotFound:            http.StatusNotFound,
	ErrorTypeInternal:            http.StatusInternalServerError,
	ErrorTypeInvalidState:        http.StatusConflict,
	ErrorTypeNotEntitled:         http.StatusForbidden,
	ErrorTypeConfiguration:       http.StatusInternalServerError,
	ErrorTypeConcurrencyConflict: http.StatusConflict,
}

type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details string    `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause records the underlying error and returns e.
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

func newAppError(t ErrorType, message string, details []string) *AppError {
	return &AppError{
		Type:    t,
		Message: message,
		Code:    statusCodes[t],
		Details: strings.Join(details, "; "),
	}
}

func NewValidationError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeValidation, message, details)
}

func NewNotFoundError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeNotFound, message, details)
}

// NewInvalidStateError reports a lifecycle operation the subscription's
// current status does not allow.
func NewInvalidStateError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeInvalidState, message, details)
}

// NewNotEntitledError reports a module or feature the plan does not grant.
func NewNotEntitledError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeNotEntitled, message, details)
}

func NewConfigurationError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeConfiguration, message, details)
}

// NewConcurrencyConflictError reports a write that kept losing a version race.
func NewConcurrencyConflictError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeConcurrencyConflict, message, details)
}

func IsAppError(err error) bool {
	return GetAppError(err) != nil
}

// GetAppError returns the first AppError in err's chain, or nil.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

func isType(err error, t ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == t
}

func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }
func IsInvalidStateError(err error) bool { return isType(err, ErrorTypeInvalidState) }
func IsNotEntitledError(err error) bool { return isType(err, ErrorTypeNotEntitled) }
func IsConfigurationError(err error) bool { return isType(err, ErrorTypeConfiguration) }
func IsConcurrencyConflictError(err error) bool { return isType(err, ErrorTypeConcurrencyConflict) }

var (
	duplicateMarkers = []string{
		"Duplicate entry",          // mysql
		"UNIQUE constraint failed", // sqlite
	}
	lockMarkers = []string{
		"Deadlock found",
		"Lock wait timeout exceeded",
		"database is locked",
		"database table is locked",
	}
)

// IsDuplicateError reports a unique-key violation from MySQL or SQLite.
func IsDuplicateError(err error) bool {
	return containsAny(err, duplicateMarkers)
}

// IsTransientLockError reports lock contention that is safe to retry.
func IsTransientLockError(err error) bool {
	return containsAny(err, lockMarkers)
}

func containsAny(err error, markers []string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
