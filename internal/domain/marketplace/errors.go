package marketplace

import (
	"fmt"
	"time"
)

// ErrorCode is the canonical classification for marketplace call failures.
// Every raw provider error is normalized to exactly one of these codes.
type ErrorCode string

const (
	ErrorCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrorCodeTimeout            ErrorCode = "TIMEOUT"
	ErrorCodeNetwork            ErrorCode = "NETWORK"
	ErrorCodeAuth               ErrorCode = "AUTH"
	ErrorCodePermission         ErrorCode = "PERMISSION"
	ErrorCodeValidation         ErrorCode = "VALIDATION"
	ErrorCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrorCodeConflict           ErrorCode = "CONFLICT"
	ErrorCodeServerError        ErrorCode = "SERVER_ERROR"
	ErrorCodeInvalidResponse    ErrorCode = "INVALID_RESPONSE"
	ErrorCodeCircuitBreakerOpen ErrorCode = "CIRCUIT_BREAKER_OPEN"
	ErrorCodeUnexpected         ErrorCode = "UNEXPECTED_ERROR"
)

// StoreOperationError is the structured error surfaced to engine callers.
// Code is a closed enum so handlers can switch exhaustively; Retryable tells
// the caller whether repeating the operation later can succeed.
type StoreOperationError struct {
	Code             ErrorCode
	Message          string
	Retryable        bool
	RateLimitResetAt *time.Time
	Details          map[string]any
}

// Error implements the error interface.
func (e *StoreOperationError) Error() string {
	if e.RateLimitResetAt != nil {
		return fmt.Sprintf("%s: %s (retry after %s)", e.Code, e.Message, e.RateLimitResetAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewStoreOperationError creates an error with the default retryability for
// the given code.
func NewStoreOperationError(code ErrorCode, message string) *StoreOperationError {
	return &StoreOperationError{
		Code:      code,
		Message:   message,
		Retryable: DefaultRetryable(code),
	}
}

// DefaultRetryable reports whether errors of the given code are retryable by
// default. TIMEOUT, NETWORK, RATE_LIMITED and SERVER_ERROR failures are
// transient; everything else requires caller intervention.
func DefaultRetryable(code ErrorCode) bool {
	switch code {
	case ErrorCodeRateLimited, ErrorCodeTimeout, ErrorCodeNetwork, ErrorCodeServerError:
		return true
	default:
		return false
	}
}
