package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	resp "translator-agent/internal/transport/http/response"
)

// HealthCheck 一个依赖的探活
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

func healthHandler(checks []HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{}
		healthy := true
		for _, hc := range checks {
			if err := hc.Ping(ctx); err != nil {
				status[hc.Name] = err.Error()
				healthy = false
				continue
			}
			status[hc.Name] = "ok"
		}
		data := gin.H{"status": "ok", "checks": status, "timestamp": time.Now().UTC().Format(time.RFC3339)}
		if !healthy {
			data["status"] = "degraded"
			c.JSON(http.StatusOK, resp.ErrorData(resp.CodeServerError, "unhealthy", data))
			return
		}
		c.JSON(http.StatusOK, resp.OK(data))
	}
}
