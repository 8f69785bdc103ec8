// Package errors provides error code definitions shared across the core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies an error class for callers that need to branch on
// failure kind rather than message text.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Database errors
	ErrDatabase  ErrorCode = "DATABASE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Scheduler errors
	ErrTopicNotFound ErrorCode = "TOPIC_NOT_FOUND"

	// Sync errors. Transient failures are recorded on the queue row and
	// retried on the next trigger; abandoned operations exceeded their retry
	// budget and were evicted.
	ErrSyncTransient     ErrorCode = "SYNC_TRANSIENT"
	ErrSyncAbandoned     ErrorCode = "SYNC_ABANDONED"
	ErrSyncAuthFailed    ErrorCode = "SYNC_AUTH_FAILED"
	ErrSyncInProgress    ErrorCode = "SYNC_IN_PROGRESS"
	ErrSyncNotConfigured ErrorCode = "SYNC_NOT_CONFIGURED"
)

// AppError represents an application error with a stable code.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code, so
// errors.Is(err, &AppError{Code: ErrTopicNotFound}) works across wrapping.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates an AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates an AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an AppError wrapping an underlying cause.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the ErrorCode from err, or ErrInternal if err is not an
// AppError.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var app *AppError
	if stderrors.As(err, &app) {
		return app.Code
	}
	return ErrInternal
}

// NotFound reports whether err carries the topic-not-found code.
func NotFound(err error) bool {
	return CodeOf(err) == ErrTopicNotFound || CodeOf(err) == ErrNotFound
}
