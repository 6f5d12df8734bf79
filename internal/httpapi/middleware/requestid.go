package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"llm-backend/internal/observability"
)

const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with an id and binds it into the request
// context so downstream logs carry it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(
			observability.WithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
