package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"translator-agent/internal/core/database"
	"translator-agent/internal/core/logger"
	"translator-agent/internal/domain"
	"translator-agent/internal/payment/zpay"
	"translator-agent/internal/repo"
	"translator-agent/internal/service"
)

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type fixture struct {
	r      *gin.Engine
	client *zpay.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := database.NewGorm(database.Opts{
		Driver: "sqlite", DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	ctx := context.Background()
	plans := repo.NewPlanRepo(db)
	require.NoError(t, plans.Seed(ctx, domain.DefaultPlans()))
	users := repo.NewUserRepo(db)
	for _, id := range []string{"u1", "u2"} {
		require.NoError(t, users.Create(ctx, &domain.User{
			ID: id, Username: "user-" + id, Email: id + "@example.com", PasswordHash: "x", Role: domain.RoleUser,
		}))
	}
	orders := repo.NewPaymentRepo(db)
	require.NoError(t, orders.Create(ctx, &domain.PaymentOrder{
		ID: "ord-1", UserID: "u1", PlanID: "basic-plan", Amount: 29, Currency: "CNY",
		Status: domain.OrderPending, PaymentMethod: service.ProviderZPay, PaymentProvider: service.ProviderZPay,
	}))

	client := zpay.New(zpay.Options{MerchantID: "m1", SecretKey: "s3cret", APIURL: "http://127.0.0.1:0"}, nil)
	svc := service.NewPaymentService(plans, orders, repo.NewMembershipRepo(db), client, nil, service.PaymentURLs{}, nil)

	r := gin.New()
	api := r.Group("/api/v1")
	authed := api.Group("", func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Set(logger.UserIDKey, uid)
		}
		c.Next()
	})
	m := New(svc, nil)
	m.MountAPI(api, authed)
	m.MountAdmin(r.Group("/admin/v1"))
	return &fixture{r: r, client: client}
}

func (f *fixture) do(t *testing.T, method, path, uid, body string) envelope {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("X-Test-User", uid)
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func (f *fixture) notification(t *testing.T, status string) string {
	t.Helper()
	n := zpay.Notification{
		OrderID: "ord-1", PaymentID: "pay-9", Amount: "29.00", Currency: "CNY",
		Status: status, Timestamp: "1700000000",
	}
	n.Signature = f.client.SignNotification(n)
	b, err := json.Marshal(n)
	require.NoError(t, err)
	return string(b)
}

func TestWebhook_SignedPaymentActivatesOnce(t *testing.T) {
	f := newFixture(t)

	env := f.do(t, http.MethodPost, "/api/v1/payment/webhook/zpay", "", f.notification(t, "paid"))
	require.Equal(t, 0, env.Code, env.Msg)
	assert.JSONEq(t, `{"message":"Notification processed"}`, string(env.Data))

	env = f.do(t, http.MethodPost, "/api/v1/payment/webhook/zpay", "", f.notification(t, "paid"))
	require.Equal(t, 0, env.Code, env.Msg)
	assert.JSONEq(t, `{"message":"Already processed"}`, string(env.Data))

	env = f.do(t, http.MethodPost, "/api/v1/payment/verify", "u1", `{"orderId":"ord-1","paymentId":"pay-9"}`)
	require.Equal(t, 0, env.Code, env.Msg)
	var res service.VerifyResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Success)
	assert.Equal(t, domain.OrderPaid, res.Order.Status)
	require.NotNil(t, res.Membership)
	assert.Equal(t, "basic-plan", res.Membership.PlanID)
}

func TestWebhook_Rejects(t *testing.T) {
	f := newFixture(t)

	tampered := strings.Replace(f.notification(t, "paid"), `"29.00"`, `"0.01"`, 1)
	env := f.do(t, http.MethodPost, "/api/v1/payment/webhook/zpay", "", tampered)
	assert.Equal(t, 400, env.Code)

	env = f.do(t, http.MethodPost, "/api/v1/payment/webhook/zpay", "", `{"order_id":"ord-1"}`)
	assert.Equal(t, 400, env.Code)

	env = f.do(t, http.MethodPost, "/api/v1/payment/webhook/zpay", "", f.notification(t, "bogus"))
	assert.Equal(t, 400, env.Code)
}

func TestVerify_OtherUserCannotSeeOrder(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, 0, f.do(t, http.MethodPost, "/api/v1/payment/webhook/zpay", "", f.notification(t, "paid")).Code)

	assert.Equal(t, 400, f.do(t, http.MethodPost, "/api/v1/payment/verify", "u2", `{"orderId":"ord-1","paymentId":"pay-9"}`).Code)
	assert.Equal(t, 404, f.do(t, http.MethodGet, "/api/v1/payment/orders/ord-1", "u2", "").Code)
	assert.Equal(t, 401, f.do(t, http.MethodGet, "/api/v1/payment/orders/ord-1", "", "").Code)

	env := f.do(t, http.MethodGet, "/api/v1/payment/orders/ord-1", "u1", "")
	require.Equal(t, 0, env.Code, env.Msg)
	var o domain.PaymentOrder
	require.NoError(t, json.Unmarshal(env.Data, &o))
	assert.Equal(t, domain.OrderPaid, o.Status)
}

func TestVerify_PendingOrderNotCompleted(t *testing.T) {
	f := newFixture(t)
	env := f.do(t, http.MethodPost, "/api/v1/payment/verify", "u1", `{"orderId":"ord-1","paymentId":"pay-9"}`)
	assert.Equal(t, 400, env.Code)
}

func TestAdmin_ListAndRefund(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, 0, f.do(t, http.MethodPost, "/api/v1/payment/webhook/zpay", "", f.notification(t, "paid")).Code)

	env := f.do(t, http.MethodGet, "/admin/v1/orders?status=paid", "", "")
	require.Equal(t, 0, env.Code, env.Msg)
	var list service.OrderList
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(1), list.Total)

	assert.Equal(t, 400, f.do(t, http.MethodGet, "/admin/v1/orders?status=bogus", "", "").Code)

	env = f.do(t, http.MethodPost, "/admin/v1/orders/ord-1/refund", "", "")
	require.Equal(t, 0, env.Code, env.Msg)
	var o domain.PaymentOrder
	require.NoError(t, json.Unmarshal(env.Data, &o))
	assert.Equal(t, domain.OrderRefunded, o.Status)

	assert.Equal(t, 400, f.do(t, http.MethodPost, "/admin/v1/orders/ord-1/refund", "", "").Code)
	assert.Equal(t, 404, f.do(t, http.MethodPost, "/admin/v1/orders/nope/refund", "", "").Code)
}
