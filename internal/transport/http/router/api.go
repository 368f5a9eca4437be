package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"translator-agent/internal/core/auth"
	"translator-agent/internal/core/server"
	mdw "translator-agent/internal/transport/http/middleware"
)

type Options struct {
	Origins        []string
	GlobalRPS      float64
	GlobalBurst    int
	PerIPRPS       float64 // 0 不限
	PerIPBurst     int
	MaxConcurrent  int64
	MaxBodyBytes   int64
	HandlerTimeout time.Duration
	// 不套用 HandlerTimeout 的完整路径，不做前缀匹配
	TimeoutSkip []string
}

func (o Options) withDefaults() Options {
	if o.GlobalRPS <= 0 {
		o.GlobalRPS = 200
	}
	if o.GlobalBurst <= 0 {
		o.GlobalBurst = 400
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 300
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 16 << 20
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = 10 * time.Second
	}
	return o
}

func newEngine(l *zap.Logger, o Options, checks []HealthCheck) *gin.Engine {
	r := server.NewRouter(l, o.Origins)
	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(rate.Limit(o.GlobalRPS), o.GlobalBurst),
	)
	if o.PerIPRPS > 0 {
		r.Use(mdw.RateLimitPerIP(rate.Limit(o.PerIPRPS), o.PerIPBurst, 10*time.Minute))
	}
	r.Use(
		mdw.ConcurrencyLimit(o.MaxConcurrent),
		mdw.MaxBodyBytes(o.MaxBodyBytes),
		mdw.Timeout(o.HandlerTimeout, o.TimeoutSkip...),
		mdw.Metrics(),
		mdw.AccessLog(l, "/health", "/metrics"),
	)

	r.GET("/health", healthHandler(checks))
	r.GET("/metrics", mdw.MetricsHandler())
	return r
}

// NewAPIEngine 用户端：/api/v1 下公共 + 鉴权两个分组
func NewAPIEngine(l *zap.Logger, jwter *auth.JWTer, o Options, checks ...HealthCheck) *gin.Engine {
	r := newEngine(l, o.withDefaults(), checks)

	api := r.Group("/api/v1")
	authed := api.Group("")
	authed.Use(mdw.AuthJWT(jwter, ""))

	MountAllAPI(api, authed)
	return r
}
