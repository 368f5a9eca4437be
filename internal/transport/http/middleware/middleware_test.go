package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"translator-agent/internal/core/auth"
	"translator-agent/internal/core/kv"
	"translator-agent/internal/core/logger"
	resp "translator-agent/internal/transport/http/response"
)

func init() { gin.SetMode(gin.TestMode) }

func call(t *testing.T, r http.Handler, req *http.Request) (*httptest.ResponseRecorder, resp.Resp) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body resp.Resp
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func okHandler(c *gin.Context) { c.JSON(http.StatusOK, resp.OK(gin.H{"uid": c.GetString(logger.UserIDKey)})) }

func TestAuthJWT(t *testing.T) {
	j := &auth.JWTer{Secret: []byte("s"), Issuer: "t", TTL: time.Hour}
	r := gin.New()
	r.GET("/me", AuthJWT(j, ""), okHandler)
	r.GET("/admin", AuthJWT(j, "admin"), okHandler)

	tok, err := j.Issue("u1", "user")
	require.NoError(t, err)

	_, body := call(t, r, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, resp.CodeUnauthorized, body.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	_, body = call(t, r, req)
	assert.Equal(t, resp.CodeUnauthorized, body.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	_, body = call(t, r, req)
	require.Equal(t, resp.CodeOK, body.Code)
	assert.Equal(t, "u1", body.Data.(map[string]any)["uid"])

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	_, body = call(t, r, req)
	assert.Equal(t, resp.CodeForbidden, body.Code)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(logger.RequestIDKey)) })

	w, _ := call(t, r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Body.String(), 36)
	assert.Equal(t, w.Body.String(), w.Header().Get(logger.RequestIDKey))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(logger.RequestIDKey, "abc")
	w, _ = call(t, r, req)
	assert.Equal(t, "abc", w.Body.String())
}

func TestRateLimitPerIP(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitPerIP(0.001, 2, time.Minute))
	r.GET("/", okHandler)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		_, body := call(t, r, req)
		assert.Equal(t, resp.CodeOK, body.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	_, body := call(t, r, req)
	assert.Equal(t, resp.CodeTooManyRequests, body.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	_, body = call(t, r, req)
	assert.Equal(t, resp.CodeOK, body.Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func withUser(uid string) gin.HandlerFunc {
	return func(c *gin.Context) { c.Set(logger.UserIDKey, uid); c.Next() }
}

func TestUserRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	store := kv.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = store.Close() })

	r := gin.New()
	r.POST("/t/:uid", func(c *gin.Context) { c.Set(logger.UserIDKey, c.Param("uid")); c.Next() },
		UserRateLimit(store, "translate", 2, time.Minute, nil), okHandler)

	for i := 0; i < 2; i++ {
		_, body := call(t, r, httptest.NewRequest(http.MethodPost, "/t/u1", nil))
		assert.Equal(t, resp.CodeOK, body.Code)
	}
	_, body := call(t, r, httptest.NewRequest(http.MethodPost, "/t/u1", nil))
	assert.Equal(t, resp.CodeTooManyRequests, body.Code)
	_, body = call(t, r, httptest.NewRequest(http.MethodPost, "/t/u2", nil))
	assert.Equal(t, resp.CodeOK, body.Code)

	// 存储不可用时放行
	r2 := gin.New()
	r2.POST("/", withUser("u1"), UserRateLimit(brokenLimiter{}, "translate", 1, time.Minute, nil), okHandler)
	_, body = call(t, r2, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, resp.CodeOK, body.Code)
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(20*time.Millisecond, "/slow-ok"))
	wait := func(c *gin.Context) {
		select {
		case <-c.Request.Context().Done():
		case <-time.After(200 * time.Millisecond):
			c.JSON(http.StatusOK, resp.OK(nil))
		}
	}
	r.GET("/slow", wait)
	r.GET("/slow-ok", wait)
	r.GET("/slow-ok/history", wait)

	_, body := call(t, r, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, resp.CodeTimeout, body.Code)
	_, body = call(t, r, httptest.NewRequest(http.MethodGet, "/slow-ok", nil))
	assert.Equal(t, resp.CodeOK, body.Code)
	// 子路径不继承跳过
	_, body = call(t, r, httptest.NewRequest(http.MethodGet, "/slow-ok/history", nil))
	assert.Equal(t, resp.CodeTimeout, body.Code)
}

func TestMaxBodyBytes(t *testing.T) {
	r := gin.New()
	r.Use(MaxBodyBytes(2 << 10))
	r.POST("/echo", func(c *gin.Context) {
		var in map[string]string
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, err.Error()))
			return
		}
		c.JSON(http.StatusOK, resp.OK(in))
	})

	w, body := call(t, r, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"a":"b"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, resp.CodeOK, body.Code)

	big := `{"a":"` + strings.Repeat("x", 4<<10) + `"}`
	w, body = call(t, r, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(big)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, resp.CodeTooLarge, body.Code)
	assert.Equal(t, "请求体不能超过 2 KB", body.Msg)
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "16 MB", humanSize(16<<20))
	assert.Equal(t, "3 KB", humanSize(3<<10))
	assert.Equal(t, "1500 字节", humanSize(1500))
}

func TestMaskQuery(t *testing.T) {
	out := maskQuery(map[string][]string{"Password": {"x"}, "page": {"1"}, "sign": {"abc"}})
	assert.Equal(t, []string{"****"}, out["Password"])
	assert.Equal(t, []string{"****"}, out["sign"])
	assert.Equal(t, []string{"1"}, out["page"])
}
