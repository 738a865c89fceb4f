package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chromechat-service/internal/observability"
)

// RequestID propagates or assigns a request id and stores it on the
// request context for event headers.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(observability.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(observability.HeaderRequestID, id)
		c.Set("requestID", id)
		c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}
