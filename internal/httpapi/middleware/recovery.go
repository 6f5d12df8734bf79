package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"llm-backend/internal/common"
	"llm-backend/internal/observability"
)

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				observability.LoggerFromContext(c.Request.Context()).
					Error("http.panic", "path", c.FullPath(), "panic", r)
				if !c.Writer.Written() {
					common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
