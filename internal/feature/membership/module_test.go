package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"translator-agent/internal/core/database"
	"translator-agent/internal/core/logger"
	"translator-agent/internal/domain"
	"translator-agent/internal/quota"
	"translator-agent/internal/repo"
	"translator-agent/internal/service"
)

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*gin.Engine, *repo.MembershipRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := database.NewGorm(database.Opts{
		Driver: "sqlite", DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	plans := repo.NewPlanRepo(db)
	memberships := repo.NewMembershipRepo(db)
	usage := repo.NewUsageRepo(db)
	require.NoError(t, plans.Seed(context.Background(), domain.DefaultPlans()))
	require.NoError(t, repo.NewUserRepo(db).Create(context.Background(), &domain.User{
		ID: "u1", Username: "u1", Email: "u1@example.com", PasswordHash: "x", Role: domain.RoleUser,
	}))

	ledger := quota.NewLedger(memberships, usage, quota.DefaultFreeQuota)
	m := New(service.NewMembershipService(plans, memberships, usage, ledger, nil), nil)

	r := gin.New()
	api := r.Group("/api/v1")
	authed := api.Group("", func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Set(logger.UserIDKey, uid)
		}
		c.Next()
	})
	m.MountAPI(api, authed)
	m.MountAdmin(r.Group("/admin/v1"))
	return r, memberships
}

func get(t *testing.T, r *gin.Engine, method, path, uid string) envelope {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if uid != "" {
		req.Header.Set("X-Test-User", uid)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestPlansArePublic(t *testing.T) {
	r, _ := setup(t)
	env := get(t, r, http.MethodGet, "/api/v1/membership/plans", "")
	require.Equal(t, 0, env.Code, env.Msg)
	var out struct {
		Plans []domain.MembershipPlan `json:"plans"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Len(t, out.Plans, 3)
	assert.Equal(t, "basic-plan", out.Plans[0].ID)
}

func TestCurrentUsageAndHistory(t *testing.T) {
	r, memberships := setup(t)

	assert.Equal(t, 401, get(t, r, http.MethodGet, "/api/v1/membership/current", "").Code)

	env := get(t, r, http.MethodGet, "/api/v1/membership/current", "u1")
	require.Equal(t, 0, env.Code)
	assert.JSONEq(t, `{"membership":null}`, string(env.Data))

	env = get(t, r, http.MethodGet, "/api/v1/membership/usage", "u1")
	require.Equal(t, 0, env.Code)
	var usage service.UsageReport
	require.NoError(t, json.Unmarshal(env.Data, &usage))
	assert.Equal(t, quota.DefaultFreeQuota, usage.Quota)
	assert.False(t, usage.MembershipActive)

	plan := domain.DefaultPlans()[2]
	_, err := memberships.Activate(context.Background(), "u1", &plan, time.Now())
	require.NoError(t, err)

	env = get(t, r, http.MethodGet, "/api/v1/membership/usage", "u1")
	require.NoError(t, json.Unmarshal(env.Data, &usage))
	assert.Equal(t, -1, usage.Quota)
	assert.Equal(t, -1, usage.RemainingQuota)
	assert.True(t, usage.MembershipActive)

	env = get(t, r, http.MethodGet, "/api/v1/membership/history?page=1&limit=5", "u1")
	require.Equal(t, 0, env.Code)
	var hist service.MembershipHistory
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	assert.Len(t, hist.Memberships, 1)
	assert.Equal(t, int64(1), hist.Pagination.Total)

	assert.Equal(t, 400, get(t, r, http.MethodGet, "/api/v1/membership/history?page=0", "u1").Code)
}

func TestAdminExpire(t *testing.T) {
	r, memberships := setup(t)
	plan := domain.DefaultPlans()[0]
	_, err := memberships.Activate(context.Background(), "u1", &plan, time.Now().AddDate(0, -2, 0))
	require.NoError(t, err)

	env := get(t, r, http.MethodPost, "/admin/v1/memberships/expire", "")
	require.Equal(t, 0, env.Code, env.Msg)
	assert.JSONEq(t, `{"expired":1}`, string(env.Data))

	env = get(t, r, http.MethodPost, "/api/v1/membership/check-expiry", "u1")
	require.Equal(t, 0, env.Code)
	var rep service.ExpiryReport
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	assert.False(t, rep.HasActiveMembership)
}
