package marketapi

import (
	"net/http"
	"time"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

// Provider-level error codes that carry meaning across providers. These show
// up both as embedded codes in 200-with-error envelopes and as strings in
// JSON error bodies.
const (
	providerCodeRateLimit       = "RATE_LIMIT_EXCEEDED"
	providerCodeNotFound        = "NOT_FOUND"
	providerCodeConflict        = "CONFLICT"
	providerCodeInvalidResponse = "INVALID_RESPONSE"
	providerCodeValidation      = "VALIDATION_ERROR"
	providerCodeBreakerOpen     = "CIRCUIT_BREAKER_OPEN"
)

// RawFailure is the undigested outcome of a failed attempt, before it is
// mapped onto the canonical taxonomy. Status is zero when the failure never
// produced an HTTP response.
type RawFailure struct {
	Status       int
	ProviderCode string
	Message      string
	Timeout      bool
	NetworkErr   bool
	RetryAfter   *time.Duration
	Details      map[string]any
	// NotSent marks a failure raised before the request left the process
	// (credential resolution, body encoding, URL construction). These never
	// count toward the circuit breaker: only the provider's own failures do.
	NotSent bool
}

// Normalize maps a raw provider failure onto the canonical error taxonomy.
// now anchors the conversion of a relative Retry-After into an absolute
// reset timestamp.
func Normalize(raw RawFailure, now time.Time) *marketplace.StoreOperationError {
	code := classify(raw)

	err := &marketplace.StoreOperationError{
		Code:      code,
		Message:   raw.Message,
		Retryable: marketplace.DefaultRetryable(code),
		Details:   raw.Details,
	}
	if err.Message == "" {
		err.Message = defaultMessage(code)
	}
	if code == marketplace.ErrorCodeUnexpected {
		err.Retryable = raw.Status == 0 || raw.Status >= 500
	}
	if raw.RetryAfter != nil {
		resetAt := now.Add(*raw.RetryAfter)
		err.RateLimitResetAt = &resetAt
	}
	return err
}

func classify(raw RawFailure) marketplace.ErrorCode {
	switch raw.ProviderCode {
	case providerCodeRateLimit:
		return marketplace.ErrorCodeRateLimited
	case providerCodeNotFound:
		return marketplace.ErrorCodeNotFound
	case providerCodeConflict:
		return marketplace.ErrorCodeConflict
	case providerCodeInvalidResponse:
		return marketplace.ErrorCodeInvalidResponse
	case providerCodeValidation:
		return marketplace.ErrorCodeValidation
	case providerCodeBreakerOpen:
		return marketplace.ErrorCodeCircuitBreakerOpen
	}

	if raw.Timeout {
		return marketplace.ErrorCodeTimeout
	}
	if raw.NetworkErr {
		return marketplace.ErrorCodeNetwork
	}

	switch raw.Status {
	case http.StatusTooManyRequests:
		return marketplace.ErrorCodeRateLimited
	case http.StatusRequestTimeout:
		return marketplace.ErrorCodeTimeout
	case http.StatusUnauthorized:
		return marketplace.ErrorCodeAuth
	case http.StatusForbidden:
		return marketplace.ErrorCodePermission
	case http.StatusNotFound:
		return marketplace.ErrorCodeNotFound
	case http.StatusConflict:
		return marketplace.ErrorCodeConflict
	case http.StatusBadRequest:
		return marketplace.ErrorCodeValidation
	}

	switch {
	case raw.Status >= 500:
		return marketplace.ErrorCodeServerError
	case raw.Status >= 400:
		return marketplace.ErrorCodeValidation
	}
	return marketplace.ErrorCodeUnexpected
}

func defaultMessage(code marketplace.ErrorCode) string {
	switch code {
	case marketplace.ErrorCodeRateLimited:
		return "provider rate limit exceeded"
	case marketplace.ErrorCodeTimeout:
		return "request timed out"
	case marketplace.ErrorCodeNetwork:
		return "network error reaching provider"
	case marketplace.ErrorCodeAuth:
		return "authentication failed"
	case marketplace.ErrorCodePermission:
		return "permission denied"
	case marketplace.ErrorCodeValidation:
		return "request rejected by provider"
	case marketplace.ErrorCodeNotFound:
		return "resource not found"
	case marketplace.ErrorCodeConflict:
		return "conflicting state on provider"
	case marketplace.ErrorCodeServerError:
		return "provider server error"
	case marketplace.ErrorCodeInvalidResponse:
		return "provider returned an unparseable response"
	case marketplace.ErrorCodeCircuitBreakerOpen:
		return "circuit breaker open"
	default:
		return "unexpected error"
	}
}
