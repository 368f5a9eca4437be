package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"translator-agent/internal/core/kv"
	"translator-agent/internal/domain"
	"translator-agent/internal/payment/zpay"
	"translator-agent/pkg/utils"
)

const ProviderZPay = "zpay"

// Gateway zpay.Client 实现
type Gateway interface {
	CreateOrder(ctx context.Context, r zpay.OrderRequest) (string, error)
	QueryOrder(ctx context.Context, orderID string) (*zpay.OrderStatus, error)
	Verify(n zpay.Notification) bool
}

// Locker kv.Store 实现
type Locker interface {
	Lock(ctx context.Context, key, owner string, ttl time.Duration) (func(context.Context), error)
}

type PaymentURLs struct {
	ReturnURL string
	CancelURL string
	NotifyURL string
}

type CreateOrderInput struct {
	PlanID        string
	PaymentMethod string
	Amount        float64
	Currency      string
}

type OrderView struct {
	domain.PaymentOrder
	PaymentURL string `json:"paymentUrl,omitempty"`
}

type VerifyResult struct {
	Success    bool                   `json:"success"`
	Order      *domain.PaymentOrder   `json:"order"`
	Membership *domain.UserMembership `json:"membership"`
}

type OrderList struct {
	Total int64                `json:"total"`
	Items []domain.PaymentOrder `json:"items"`
}

type PaymentService struct {
	plans       domain.PlanRepository
	orders      domain.PaymentRepository
	memberships domain.MembershipRepository
	gateway     Gateway
	locker      Locker
	urls        PaymentURLs
	log         *zap.Logger
	now         func() time.Time
}

func NewPaymentService(
	plans domain.PlanRepository,
	orders domain.PaymentRepository,
	memberships domain.MembershipRepository,
	gateway Gateway,
	locker Locker,
	urls PaymentURLs,
	l *zap.Logger,
) *PaymentService {
	if l == nil {
		l = zap.NewNop()
	}
	return &PaymentService{
		plans: plans, orders: orders, memberships: memberships,
		gateway: gateway, locker: locker, urls: urls,
		log: l.Named("payment"), now: time.Now,
	}
}

func (s *PaymentService) CreateOrder(ctx context.Context, userID string, in CreateOrderInput) (*OrderView, error) {
	plan, err := s.plans.FindActive(ctx, in.PlanID)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if plan == nil {
		return nil, ErrPlanNotFound
	}
	if math.Abs(in.Amount-plan.Price) > 0.01 {
		return nil, ErrAmountMismatch
	}

	now := s.now()
	o := &domain.PaymentOrder{
		ID:              zpay.GenerateOrderID(userID, now),
		UserID:          userID,
		PlanID:          plan.ID,
		Amount:          in.Amount,
		Currency:        in.Currency,
		Status:          domain.OrderPending,
		PaymentMethod:   in.PaymentMethod,
		PaymentProvider: ProviderZPay,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	log := s.log.With(zap.String("order_id", o.ID), zap.String("user_id", userID))

	view := &OrderView{PaymentOrder: *o}
	if in.PaymentMethod != ProviderZPay {
		log.Info("order created", zap.String("method", in.PaymentMethod))
		return view, nil
	}

	payURL, err := s.gateway.CreateOrder(ctx, zpay.OrderRequest{
		OrderID:   o.ID,
		Amount:    o.Amount,
		Currency:  o.Currency,
		Subject:   "Translator Agent - " + plan.Name,
		ReturnURL: s.urls.ReturnURL,
		CancelURL: s.urls.CancelURL,
		NotifyURL: s.urls.NotifyURL,
	})
	if err != nil {
		log.Error("zpay create order failed", zap.Error(err))
		// 拿不到支付链接的订单直接置为失败
		if _, terr := s.orders.Transition(ctx, o.ID, domain.OrderPending, domain.OrderFailed, "", now); terr != nil {
			log.Error("mark order failed", zap.Error(terr))
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentCreate, err)
	}
	if err := s.orders.SetProviderOrderID(ctx, o.ID, o.ID); err != nil {
		return nil, fmt.Errorf("save provider order id: %w", err)
	}
	pid := o.ID
	view.ProviderOrderID = &pid
	view.PaymentURL = payURL
	log.Info("order created", zap.String("method", in.PaymentMethod))
	return view, nil
}

// GetOrder pending 的 zpay 订单顺带向网关查一次最新状态
func (s *PaymentService) GetOrder(ctx context.Context, userID, orderID string) (*domain.PaymentOrder, error) {
	o, err := s.orders.FindForUser(ctx, orderID, userID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if o.Status != domain.OrderPending || o.PaymentProvider != ProviderZPay || s.gateway == nil {
		return o, nil
	}

	st, err := s.gateway.QueryOrder(ctx, o.ID)
	if err != nil {
		s.log.Warn("zpay query order failed", zap.String("order_id", o.ID), zap.Error(err))
		return o, nil
	}
	to := domain.OrderStatus(st.Status)
	if to == domain.OrderPending || !domain.OrderPending.CanTransition(to) {
		return o, nil
	}
	if _, err := s.orders.Transition(ctx, o.ID, domain.OrderPending, to, st.PaymentID, s.now()); err != nil {
		return nil, fmt.Errorf("apply order status: %w", err)
	}
	return s.orders.FindForUser(ctx, orderID, userID)
}

// HandleNotification 处理网关回调，返回给网关的提示语
func (s *PaymentService) HandleNotification(ctx context.Context, n zpay.Notification) (string, error) {
	if !s.gateway.Verify(n) {
		s.log.Warn("invalid zpay signature", zap.String("order_id", n.OrderID))
		return "", ErrInvalidSignature
	}
	log := s.log.With(zap.String("order_id", n.OrderID), zap.String("status", n.Status))

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, "order:"+n.OrderID, utils.NewID(), 30*time.Second)
		switch {
		case errors.Is(err, kv.ErrLocked):
			return "", ErrOrderBusy
		case err != nil:
			// redis 不可用时依赖条件更新保证幂等
			log.Warn("order lock unavailable", zap.Error(err))
		default:
			defer unlock(context.WithoutCancel(ctx))
		}
	}

	o, err := s.orders.FindByID(ctx, n.OrderID)
	if err != nil {
		return "", fmt.Errorf("load order: %w", err)
	}
	if o == nil {
		return "", ErrOrderNotFound
	}
	if o.Status != domain.OrderPending {
		return "Already processed", nil
	}
	to := domain.OrderStatus(n.Status)
	if !domain.OrderPending.CanTransition(to) {
		return "", ErrInvalidStatus
	}
	applied, err := s.orders.Transition(ctx, o.ID, domain.OrderPending, to, n.PaymentID, s.now())
	if err != nil {
		return "", fmt.Errorf("apply notification: %w", err)
	}
	if !applied {
		return "Already processed", nil
	}
	log.Info("zpay notification applied")
	return "Notification processed", nil
}

func (s *PaymentService) Verify(ctx context.Context, userID, orderID, paymentID string) (*VerifyResult, error) {
	o, err := s.orders.FindForUser(ctx, orderID, userID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if o == nil || o.ProviderPaymentID == nil || *o.ProviderPaymentID != paymentID {
		return nil, ErrPaymentVerification
	}
	if o.Status != domain.OrderPaid {
		return nil, ErrPaymentNotCompleted
	}
	m, err := s.memberships.Latest(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	return &VerifyResult{Success: true, Order: o, Membership: m}, nil
}

func (s *PaymentService) ListOrders(ctx context.Context, status domain.OrderStatus, offset, limit int) (*OrderList, error) {
	if status != "" && !status.Valid() {
		return nil, ErrInvalidStatus
	}
	rows, total, err := s.orders.List(ctx, status, offset, limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.PaymentOrder{}
	}
	return &OrderList{Total: total, Items: rows}, nil
}

// Refund 只允许 paid → refunded，会员不自动回收
func (s *PaymentService) Refund(ctx context.Context, orderID string) (*domain.PaymentOrder, error) {
	applied, err := s.orders.Transition(ctx, orderID, domain.OrderPaid, domain.OrderRefunded, "", s.now())
	if err != nil {
		return nil, fmt.Errorf("refund order: %w", err)
	}
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if !applied {
		return nil, ErrInvalidStatus
	}
	s.log.Info("order refunded", zap.String("order_id", orderID))
	return o, nil
}
