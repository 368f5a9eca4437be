package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	resp "translator-agent/internal/transport/http/response"
)

// MaxBodyBytes 声明的 Content-Length 超限直接 413；
// 未声明长度（chunked）的由 MaxBytesReader 截断，绑定层再转成 413
func MaxBodyBytes(n int64) gin.HandlerFunc {
	msg := fmt.Sprintf("请求体不能超过 %s", humanSize(n))
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeTooLarge, msg))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KB", n>>10)
	}
	return fmt.Sprintf("%d 字节", n)
}
