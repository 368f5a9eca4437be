package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"translator-agent/internal/core/kv"
	"translator-agent/internal/domain"
	"translator-agent/internal/payment/zpay"
)

type fakeGateway struct {
	mu        sync.Mutex
	createErr error
	query     *zpay.OrderStatus
	valid     bool
	created   []zpay.OrderRequest
}

func (g *fakeGateway) CreateOrder(_ context.Context, r zpay.OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, r)
	if g.createErr != nil {
		return "", g.createErr
	}
	return "https://pay.example.com/" + r.OrderID, nil
}

func (g *fakeGateway) QueryOrder(context.Context, string) (*zpay.OrderStatus, error) {
	if g.query == nil {
		return nil, zpay.ErrGateway
	}
	return g.query, nil
}

func (g *fakeGateway) Verify(zpay.Notification) bool { return g.valid }

type paymentFixture struct {
	*repos
	gw    *fakeGateway
	store *kv.Store
	svc   *PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	r := newRepos(t)
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	store := kv.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = store.Close() })

	gw := &fakeGateway{valid: true}
	svc := NewPaymentService(r.plans, r.orders, r.memberships, gw, store, PaymentURLs{
		ReturnURL: "https://app.example.com/payment/success",
		CancelURL: "https://app.example.com/payment/cancel",
		NotifyURL: "https://api.example.com/api/v1/payment/webhook/zpay",
	}, nil)
	r.seedUser(t, "user-0001")
	return &paymentFixture{repos: r, gw: gw, store: store, svc: svc}
}

func (f *paymentFixture) createOrder(t *testing.T) *OrderView {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), "user-0001", CreateOrderInput{
		PlanID: "premium-plan", PaymentMethod: ProviderZPay, Amount: 99.00, Currency: "CNY",
	})
	require.NoError(t, err)
	return o
}

func TestPayment_CreateOrder(t *testing.T) {
	f := newPaymentFixture(t)
	o := f.createOrder(t)

	assert.True(t, len(o.ID) > 10)
	assert.Equal(t, "TAUSER-000", o.ID[:10])
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Equal(t, "https://pay.example.com/"+o.ID, o.PaymentURL)
	require.NotNil(t, o.ProviderOrderID)
	require.Len(t, f.gw.created, 1)
	assert.Equal(t, "Translator Agent - 专业版", f.gw.created[0].Subject)
	assert.Contains(t, f.gw.created[0].NotifyURL, "/webhook/zpay")

	stored, err := f.orders.FindByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, *stored.ProviderOrderID)
}

func TestPayment_CreateOrderRejects(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, "user-0001", CreateOrderInput{PlanID: "nope", PaymentMethod: ProviderZPay, Amount: 1, Currency: "CNY"})
	assert.ErrorIs(t, err, ErrPlanNotFound)

	_, err = f.svc.CreateOrder(ctx, "user-0001", CreateOrderInput{PlanID: "basic-plan", PaymentMethod: ProviderZPay, Amount: 28.98, Currency: "CNY"})
	assert.ErrorIs(t, err, ErrAmountMismatch)

	// 0.01 以内容忍
	o, err := f.svc.CreateOrder(ctx, "user-0001", CreateOrderInput{PlanID: "basic-plan", PaymentMethod: "alipay", Amount: 29.005, Currency: "CNY"})
	require.NoError(t, err)
	assert.Empty(t, o.PaymentURL)
	assert.Empty(t, f.gw.created)
}

func TestPayment_CreateOrderGatewayFailureMarksFailed(t *testing.T) {
	f := newPaymentFixture(t)
	f.gw.createErr = errors.New("boom")

	_, err := f.svc.CreateOrder(context.Background(), "user-0001", CreateOrderInput{
		PlanID: "basic-plan", PaymentMethod: ProviderZPay, Amount: 29, Currency: "CNY",
	})
	require.ErrorIs(t, err, ErrPaymentCreate)

	list, err := f.svc.ListOrders(context.Background(), domain.OrderFailed, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)
}

func TestPayment_WebhookActivatesMembershipOnce(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	o := f.createOrder(t)

	n := zpay.Notification{OrderID: o.ID, PaymentID: "PAY-1", Amount: "99.00", Currency: "CNY", Status: "paid"}
	msg, err := f.svc.HandleNotification(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, "Notification processed", msg)

	msg, err = f.svc.HandleNotification(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, "Already processed", msg)

	var count int64
	require.NoError(t, f.db.Model(&domain.UserMembership{}).Where("user_id = ?", "user-0001").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	m, err := f.memberships.Current(ctx, "user-0001", time.Now())
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "premium-plan", m.PlanID)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), m.EndDate, time.Minute)

	res, err := f.svc.Verify(ctx, "user-0001", o.ID, "PAY-1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, domain.OrderPaid, res.Order.Status)
	require.NotNil(t, res.Membership)

	_, err = f.svc.Verify(ctx, "user-0001", o.ID, "PAY-2")
	assert.ErrorIs(t, err, ErrPaymentVerification)
	_, err = f.svc.Verify(ctx, "someone-else", o.ID, "PAY-1")
	assert.ErrorIs(t, err, ErrPaymentVerification)
}

func TestPayment_WebhookConcurrentDeliveries(t *testing.T) {
	f := newPaymentFixture(t)
	o := f.createOrder(t)
	n := zpay.Notification{OrderID: o.ID, PaymentID: "PAY-1", Status: "paid"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	processed := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := f.svc.HandleNotification(context.Background(), n)
			if err == nil && msg == "Notification processed" {
				mu.Lock()
				processed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, processed)

	var count int64
	require.NoError(t, f.db.Model(&domain.UserMembership{}).Where("user_id = ?", "user-0001").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPayment_WebhookRejects(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	o := f.createOrder(t)

	f.gw.valid = false
	_, err := f.svc.HandleNotification(ctx, zpay.Notification{OrderID: o.ID, Status: "paid"})
	assert.ErrorIs(t, err, ErrInvalidSignature)
	f.gw.valid = true

	_, err = f.svc.HandleNotification(ctx, zpay.Notification{OrderID: "TAMISSING", Status: "paid"})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.svc.HandleNotification(ctx, zpay.Notification{OrderID: o.ID, Status: "weird"})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	unlock, err := f.store.Lock(ctx, "order:"+o.ID, "other", time.Minute)
	require.NoError(t, err)
	_, err = f.svc.HandleNotification(ctx, zpay.Notification{OrderID: o.ID, Status: "paid"})
	assert.ErrorIs(t, err, ErrOrderBusy)
	unlock(ctx)

	msg, err := f.svc.HandleNotification(ctx, zpay.Notification{OrderID: o.ID, Status: "failed"})
	require.NoError(t, err)
	assert.Equal(t, "Notification processed", msg)
	m, err := f.memberships.Current(ctx, "user-0001", time.Now())
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestPayment_GetOrderRefreshesPending(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	o := f.createOrder(t)

	// 网关查询失败时返回本地状态
	got, err := f.svc.GetOrder(ctx, "user-0001", o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, got.Status)

	f.gw.query = &zpay.OrderStatus{Status: "paid", PaymentID: "PAY-9"}
	got, err = f.svc.GetOrder(ctx, "user-0001", o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, got.Status)
	require.NotNil(t, got.ProviderPaymentID)
	assert.Equal(t, "PAY-9", *got.ProviderPaymentID)

	m, err := f.memberships.Current(ctx, "user-0001", time.Now())
	require.NoError(t, err)
	require.NotNil(t, m)

	_, err = f.svc.GetOrder(ctx, "someone-else", o.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPayment_Refund(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	o := f.createOrder(t)

	_, err := f.svc.Refund(ctx, o.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.HandleNotification(ctx, zpay.Notification{OrderID: o.ID, PaymentID: "PAY-1", Status: "paid"})
	require.NoError(t, err)

	got, err := f.svc.Refund(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderRefunded, got.Status)

	_, err = f.svc.Refund(ctx, "TAMISSING")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.svc.ListOrders(ctx, "bogus", 0, 10)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
