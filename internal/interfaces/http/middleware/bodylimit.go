package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bricksync/backend/internal/interfaces/http/dto"
)

// BodyLimit rejects request bodies over maxBytes. The declared length is
// checked up front; the body is additionally wrapped in a MaxBytesReader so
// chunked uploads without a Content-Length cannot slip past the limit.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponse("REQUEST_TOO_LARGE", "Request body exceeds maximum allowed size"))
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
