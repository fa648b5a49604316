package dto

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{string(marketplace.ErrorCodeRateLimited), http.StatusTooManyRequests},
		{string(marketplace.ErrorCodeTimeout), http.StatusGatewayTimeout},
		{string(marketplace.ErrorCodeNetwork), http.StatusBadGateway},
		{string(marketplace.ErrorCodeAuth), http.StatusUnauthorized},
		{string(marketplace.ErrorCodePermission), http.StatusForbidden},
		{string(marketplace.ErrorCodeValidation), http.StatusBadRequest},
		{string(marketplace.ErrorCodeNotFound), http.StatusNotFound},
		{string(marketplace.ErrorCodeConflict), http.StatusConflict},
		{string(marketplace.ErrorCodeServerError), http.StatusBadGateway},
		{string(marketplace.ErrorCodeInvalidResponse), http.StatusBadGateway},
		{string(marketplace.ErrorCodeCircuitBreakerOpen), http.StatusServiceUnavailable},
		{string(marketplace.ErrorCodeUnexpected), http.StatusInternalServerError},
		{ErrCodeBadRequest, http.StatusBadRequest},
		// Unknown code should return 500
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestEveryCanonicalCodeHasStatus(t *testing.T) {
	codes := []marketplace.ErrorCode{
		marketplace.ErrorCodeRateLimited,
		marketplace.ErrorCodeTimeout,
		marketplace.ErrorCodeNetwork,
		marketplace.ErrorCodeAuth,
		marketplace.ErrorCodePermission,
		marketplace.ErrorCodeValidation,
		marketplace.ErrorCodeNotFound,
		marketplace.ErrorCodeConflict,
		marketplace.ErrorCodeServerError,
		marketplace.ErrorCodeInvalidResponse,
		marketplace.ErrorCodeCircuitBreakerOpen,
		marketplace.ErrorCodeUnexpected,
	}

	for _, code := range codes {
		t.Run(string(code), func(t *testing.T) {
			status, ok := ErrorCodeHTTPStatus[string(code)]
			assert.True(t, ok, "error code %s should be in ErrorCodeHTTPStatus map", code)
			assert.GreaterOrEqual(t, status, 400)
		})
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(ErrCodeNotFound, "Resource not found")

	assert.False(t, resp.Success)
	assert.Nil(t, resp.Data)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "Resource not found", resp.Error.Message)
	assert.NotZero(t, resp.Error.Timestamp)
}

func TestNewErrorResponseWithCorrelationID(t *testing.T) {
	resp := NewErrorResponseWithCorrelationID(ErrCodeNotFound, "Resource not found", "corr-123-456")

	assert.False(t, resp.Success)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "Resource not found", resp.Error.Message)
	assert.Equal(t, "corr-123-456", resp.Error.CorrelationID)
	assert.NotZero(t, resp.Error.Timestamp)
}

func TestNewValidationErrorResponse(t *testing.T) {
	details := []ValidationDetail{
		{Field: "quantity", Message: "Must be at least 1"},
		{Field: "condition", Message: "Must be one of: N U"},
	}

	resp := NewValidationErrorResponse("Request validation failed", "corr-789", details)

	assert.False(t, resp.Success)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "Request validation failed", resp.Error.Message)
	assert.Equal(t, "corr-789", resp.Error.CorrelationID)
	assert.Len(t, resp.Error.Details, 2)
	assert.Equal(t, "quantity", resp.Error.Details[0].Field)
	assert.Equal(t, "Must be at least 1", resp.Error.Details[0].Message)
}

func TestErrorResponseJSON(t *testing.T) {
	resp := NewErrorResponseWithCorrelationID(ErrCodeNotFound, "Journal entry not found", "corr-test-123")

	data, err := json.Marshal(resp)
	assert.NoError(t, err)

	var decoded Response
	err = json.Unmarshal(data, &decoded)
	assert.NoError(t, err)

	assert.False(t, decoded.Success)
	assert.NotNil(t, decoded.Error)
	assert.Equal(t, ErrCodeNotFound, decoded.Error.Code)
	assert.Equal(t, "Journal entry not found", decoded.Error.Message)
	assert.Equal(t, "corr-test-123", decoded.Error.CorrelationID)
}

func TestErrorResponseTimestamp(t *testing.T) {
	before := time.Now()
	resp := NewErrorResponse(ErrCodeInternal, "Server error")
	after := time.Now()

	assert.True(t, !resp.Error.Timestamp.Before(before), "Timestamp should not be before call")
	assert.True(t, !resp.Error.Timestamp.After(after), "Timestamp should not be after call")
}

func TestNewSuccessResponse(t *testing.T) {
	data := map[string]string{"name": "test"}
	resp := NewSuccessResponse(data)

	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.Nil(t, resp.Meta)
}

func TestNewSuccessResponseWithMeta(t *testing.T) {
	data := []string{"item1", "item2"}
	resp := NewSuccessResponseWithMeta(data, 100, 1, 10)

	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Meta)
	assert.Equal(t, int64(100), resp.Meta.Total)
	assert.Equal(t, 1, resp.Meta.Page)
	assert.Equal(t, 10, resp.Meta.PageSize)
	assert.Equal(t, 10, resp.Meta.TotalPages)
}

func TestNewSuccessResponseWithMetaPagination(t *testing.T) {
	tests := []struct {
		total         int64
		page          int
		pageSize      int
		expectedPages int
		expectedSize  int
	}{
		{100, 1, 10, 10, 10},
		{101, 1, 10, 11, 10}, // partial page
		{0, 1, 10, 0, 10},
		{9, 1, 10, 1, 10},
		{10, 1, 10, 1, 10},
		{11, 1, 10, 2, 10},
		// zero pageSize should default to 20
		{100, 1, 0, 5, 20},
		{100, 1, -1, 5, 20},
	}

	for _, tt := range tests {
		resp := NewSuccessResponseWithMeta(nil, tt.total, tt.page, tt.pageSize)
		assert.Equal(t, tt.expectedPages, resp.Meta.TotalPages)
		assert.Equal(t, tt.expectedSize, resp.Meta.PageSize)
	}
}
