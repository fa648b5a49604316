package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appmarketplace "github.com/bricksync/backend/internal/application/marketplace"
	"github.com/bricksync/backend/internal/domain/marketplace"
	"github.com/bricksync/backend/internal/interfaces/http/dto"
)

// CorrelationIDKey is the gin context key for the request correlation ID,
// set by the logging middleware.
const CorrelationIDKey = "correlation_id"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getCorrelationID extracts the correlation ID from the context
func getCorrelationID(c *gin.Context) string {
	if id := c.GetString(CorrelationIDKey); id != "" {
		return id
	}
	if id := c.GetHeader("X-Correlation-ID"); id != "" {
		return id
	}
	return ""
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	correlationID := getCorrelationID(c)
	c.JSON(statusCode, dto.NewErrorResponseWithCorrelationID(code, message, correlationID))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	correlationID := getCorrelationID(c)
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		correlationID,
		details,
	))
}

// HandleOperationError converts an engine or service error to an HTTP
// response. Canonical operation errors carry their own status mapping; a
// rate-limited failure additionally sets Retry-After from the window reset.
func (h *BaseHandler) HandleOperationError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	correlationID := getCorrelationID(c)

	if errors.Is(err, appmarketplace.ErrUnknownProvider) {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponseWithCorrelationID(
			dto.ErrCodeBadRequest, err.Error(), correlationID))
		return
	}

	var opErr *marketplace.StoreOperationError
	if errors.As(err, &opErr) {
		statusCode := dto.GetHTTPStatus(string(opErr.Code))
		if opErr.RateLimitResetAt != nil {
			if wait := time.Until(*opErr.RateLimitResetAt); wait > 0 {
				c.Header("Retry-After", opErr.RateLimitResetAt.UTC().Format(http.TimeFormat))
			}
		}
		resp := dto.NewErrorResponseWithCorrelationID(string(opErr.Code), opErr.Message, correlationID)
		resp.Error.Retryable = opErr.Retryable
		resp.Error.RetryAt = opErr.RateLimitResetAt
		c.JSON(statusCode, resp)
		return
	}

	c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithCorrelationID(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		correlationID,
	))
}
