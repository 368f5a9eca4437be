package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"translator-agent/internal/core/auth"
	"translator-agent/internal/core/logger"
	resp "translator-agent/internal/transport/http/response"
)

const (
	KeyClaims = "claims"
	KeyRole   = "role"
)

// AuthJWT 校验 access token，写入 userId / role / claims
func AuthJWT(j *auth.JWTer, requireRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ah := c.GetHeader("Authorization")
		if !strings.HasPrefix(ah, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "Access token required"))
			return
		}
		claims, err := j.Parse(strings.TrimPrefix(ah, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "Invalid token"))
			return
		}
		if requireRole != "" && claims.Role != requireRole {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeForbidden, "forbidden"))
			return
		}
		c.Set(KeyClaims, claims)
		c.Set(logger.UserIDKey, claims.UID)
		c.Set(KeyRole, claims.Role)
		c.Next()
	}
}
