package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"translator-agent/internal/core/logger"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.Request.Header.Get(logger.RequestIDKey)
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(logger.RequestIDKey, rid)
		c.Set(logger.RequestIDKey, rid)
		c.Next()
	}
}
