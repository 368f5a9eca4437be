package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"translator-agent/internal/core/auth"
	resp "translator-agent/internal/transport/http/response"
)

type pingModule struct{ prio int }

func (m pingModule) Priority() int { return m.prio }

func (pingModule) MountAPI(pub, authed *gin.RouterGroup) {
	pub.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, resp.OK("pong")) })
	authed.GET("/secret", func(c *gin.Context) { c.JSON(http.StatusOK, resp.OK("s")) })
}

func (pingModule) MountAdmin(g *gin.RouterGroup) {
	g.GET("/stats", func(c *gin.Context) { c.JSON(http.StatusOK, resp.OK("admin")) })
}

func resetModules(t *testing.T) {
	mu.Lock()
	apiMods, adminMods = nil, nil
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		apiMods, adminMods = nil, nil
		mu.Unlock()
	})
}

func get(t *testing.T, r http.Handler, path, token string) resp.Resp {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var body resp.Resp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestEngines(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resetModules(t)
	Register(pingModule{})

	j := &auth.JWTer{Secret: []byte("s"), Issuer: "t", TTL: time.Hour}
	userTok, err := j.Issue("u1", "user")
	require.NoError(t, err)
	adminTok, err := j.Issue("a1", "admin")
	require.NoError(t, err)

	api := NewAPIEngine(zap.NewNop(), j, Options{})
	assert.Equal(t, "pong", get(t, api, "/api/v1/ping", "").Data)
	assert.Equal(t, resp.CodeUnauthorized, get(t, api, "/api/v1/secret", "").Code)
	assert.Equal(t, "s", get(t, api, "/api/v1/secret", userTok).Data)

	admin := NewAdminEngine(zap.NewNop(), j, Options{})
	assert.Equal(t, resp.CodeForbidden, get(t, admin, "/admin/v1/stats", userTok).Code)
	assert.Equal(t, "admin", get(t, admin, "/admin/v1/stats", adminTok).Data)
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resetModules(t)
	j := &auth.JWTer{Secret: []byte("s"), TTL: time.Hour}

	okPing := func(context.Context) error { return nil }
	badPing := func(context.Context) error { return errors.New("connection refused") }

	r := NewAPIEngine(zap.NewNop(), j, Options{}, HealthCheck{Name: "db", Ping: okPing}, HealthCheck{Name: "redis", Ping: okPing})
	body := get(t, r, "/health", "")
	assert.Equal(t, resp.CodeOK, body.Code)

	r = NewAPIEngine(zap.NewNop(), j, Options{}, HealthCheck{Name: "db", Ping: okPing}, HealthCheck{Name: "redis", Ping: badPing})
	body = get(t, r, "/health", "")
	assert.Equal(t, resp.CodeServerError, body.Code)
	checks := body.Data.(map[string]any)["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["db"])
	assert.Equal(t, "connection refused", checks["redis"])
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resetModules(t)
	r := NewAPIEngine(zap.NewNop(), &auth.JWTer{Secret: []byte("s"), TTL: time.Hour}, Options{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
