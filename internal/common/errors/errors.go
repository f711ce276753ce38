// Package errors provides the structured error type shared by the scheduler, sync queue and ops API.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeStoreReadFailed  ErrorCode = "STORE_READ_FAILED"
	ErrCodeStoreWriteFailed ErrorCode = "STORE_WRITE_FAILED"
	ErrCodeRecordNotFound   ErrorCode = "STORE_RECORD_NOT_FOUND"

	ErrCodeDisplayFailed ErrorCode = "DISPLAY_FAILED"

	ErrCodeRemoteUnavailable  ErrorCode = "REMOTE_UNAVAILABLE"
	ErrCodeRemoteRejected     ErrorCode = "REMOTE_REJECTED"
	ErrCodeSyncNotConfigured  ErrorCode = "SYNC_NOT_CONFIGURED"
	ErrCodeSyncRetryExhausted ErrorCode = "SYNC_RETRY_EXHAUSTED"

	ErrCodeSettingsInvalid ErrorCode = "SETTINGS_INVALID"
	ErrCodeInvalidRequest  ErrorCode = "INVALID_REQUEST"

	ErrCodeAuthRequired ErrorCode = "AUTH_REQUIRED"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key to the error metadata and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	e := &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewStoreReadError wraps a failed read against the local store.
func NewStoreReadError(op string, err error) *StandardError {
	return newError(ErrCodeStoreReadFailed, fmt.Sprintf("store read failed: %s", op), err, true)
}

// NewStoreWriteError wraps a failed write against the local store.
func NewStoreWriteError(op string, err error) *StandardError {
	return newError(ErrCodeStoreWriteFailed, fmt.Sprintf("store write failed: %s", op), err, true)
}

func NewRecordNotFoundError(kind, id string) *StandardError {
	e := newError(ErrCodeRecordNotFound, fmt.Sprintf("%s not found", kind), nil, false)
	e.Details = fmt.Sprintf("id: %s", id)
	return e
}

// NewDisplayFailedError is logged when a notification could not be shown; never returned to callers.
func NewDisplayFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeDisplayFailed, fmt.Sprintf("notification display failed on %s", channel), err, false)
}

// NewRemoteUnavailableError covers transport failures and 5xx answers from the mirror.
func NewRemoteUnavailableError(err error) *StandardError {
	return newError(ErrCodeRemoteUnavailable, "remote mirror unavailable", err, true)
}

// NewRemoteRejectedError covers a non-success status the mirror returned for a record.
func NewRemoteRejectedError(status int, body string) *StandardError {
	e := newError(ErrCodeRemoteRejected, fmt.Sprintf("remote mirror rejected record: status %d", status), nil, true)
	e.Details = body
	return e.WithMetadata("status", status)
}

func NewSyncNotConfiguredError() *StandardError {
	return newError(ErrCodeSyncNotConfigured, "remote mirror is not configured", nil, false)
}

func NewSyncRetryExhaustedError(itemID string, attempts int) *StandardError {
	e := newError(ErrCodeSyncRetryExhausted, "sync item dropped after exhausting retries", nil, false)
	e.Details = fmt.Sprintf("id: %s, attempts: %d", itemID, attempts)
	return e
}

func NewSettingsInvalidError(details string) *StandardError {
	e := newError(ErrCodeSettingsInvalid, "notification settings validation failed", nil, false)
	e.Details = details
	return e
}

func NewInvalidRequestError(details string) *StandardError {
	e := newError(ErrCodeInvalidRequest, "invalid request", nil, false)
	e.Details = details
	return e
}

func NewAuthRequiredError(details string) *StandardError {
	e := newError(ErrCodeAuthRequired, "authentication required", nil, false)
	e.Details = details
	return e
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "unexpected error", err, false)
}

// ==========================
// 3. Utility Functions
// ==========================

// AsStandardError unwraps err into a StandardError, wrapping unknown errors as internal.
func AsStandardError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code == code
	}
	return false
}

// IsRetryableErrorCode checks if an error code is worth another attempt.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeStoreReadFailed,
		ErrCodeStoreWriteFailed,
		ErrCodeRemoteUnavailable,
		ErrCodeRemoteRejected:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "STORE"):
		return "STORE"
	case strings.Contains(codeStr, "DISPLAY"):
		return "DISPLAY"
	case strings.HasPrefix(codeStr, "REMOTE"):
		return "NETWORK"
	case strings.HasPrefix(codeStr, "SYNC"):
		return "SYNC"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.HasPrefix(codeStr, "AUTH"):
		return "AUTH"
	default:
		return "OTHER"
	}
}
