package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	resp "translator-agent/internal/transport/http/response"
)

// Timeout skipPaths 精确匹配，命中的路由自己管理超时（翻译要等外部模型）
func Timeout(d time.Duration, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[strings.TrimRight(p, "/")] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := skip[strings.TrimRight(c.Request.URL.Path, "/")]; ok {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeTimeout, "timeout"))
		}
	}
}
