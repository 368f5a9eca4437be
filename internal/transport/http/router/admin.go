package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"translator-agent/internal/core/auth"
	"translator-agent/internal/domain"
	mdw "translator-agent/internal/transport/http/middleware"
)

// NewAdminEngine 管理端：/admin/v1 统一要求 admin 角色
func NewAdminEngine(l *zap.Logger, jwter *auth.JWTer, o Options, checks ...HealthCheck) *gin.Engine {
	r := newEngine(l, o.withDefaults(), checks)

	admin := r.Group("/admin/v1")
	admin.Use(mdw.AuthJWT(jwter, domain.RoleAdmin))

	MountAllAdmin(admin)
	return r
}
