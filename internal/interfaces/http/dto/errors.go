package dto

import (
	"net/http"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

// Request-level error codes. Marketplace call failures reuse the canonical
// marketplace.ErrorCode values directly; these cover failures that happen
// before any upstream call is made.
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeValidation is used when request validation fails
	ErrCodeValidation = "VALIDATION"
	// ErrCodeNotFound is used when a local resource is not found
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "UNEXPECTED_ERROR"
)

// ErrorCodeHTTPStatus maps canonical error codes to HTTP status codes.
// Upstream failures that the caller can do nothing about (provider down,
// malformed provider payloads) map to 502; an open breaker maps to 503
// because the engine itself refused to place the call.
var ErrorCodeHTTPStatus = map[string]int{
	string(marketplace.ErrorCodeRateLimited):        http.StatusTooManyRequests,
	string(marketplace.ErrorCodeTimeout):            http.StatusGatewayTimeout,
	string(marketplace.ErrorCodeNetwork):            http.StatusBadGateway,
	string(marketplace.ErrorCodeAuth):               http.StatusUnauthorized,
	string(marketplace.ErrorCodePermission):         http.StatusForbidden,
	string(marketplace.ErrorCodeValidation):         http.StatusBadRequest,
	string(marketplace.ErrorCodeNotFound):           http.StatusNotFound,
	string(marketplace.ErrorCodeConflict):           http.StatusConflict,
	string(marketplace.ErrorCodeServerError):        http.StatusBadGateway,
	string(marketplace.ErrorCodeInvalidResponse):    http.StatusBadGateway,
	string(marketplace.ErrorCodeCircuitBreakerOpen): http.StatusServiceUnavailable,
	string(marketplace.ErrorCodeUnexpected):         http.StatusInternalServerError,

	ErrCodeBadRequest: http.StatusBadRequest,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Returns 500 Internal Server Error if the error code is not found.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
