package domain

import (
	"context"
	"time"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderFailed    OrderStatus = "failed"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderFailed, OrderCancelled, OrderRefunded:
		return true
	}
	return false
}

// CanTransition pending 只能走向终态；终态中只有 paid → refunded
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	switch s {
	case OrderPending:
		return to == OrderPaid || to == OrderFailed || to == OrderCancelled || to == OrderRefunded
	case OrderPaid:
		return to == OrderRefunded
	}
	return false
}

type PaymentOrder struct {
	ID                string      `gorm:"primaryKey;size:36" json:"id"`
	UserID            string      `gorm:"size:36;not null;index" json:"userId"`
	PlanID            string      `gorm:"size:36;not null" json:"planId"`
	Amount            float64     `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency          string      `gorm:"size:10;not null;default:CNY" json:"currency"`
	Status            OrderStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	PaymentMethod     string      `gorm:"size:50" json:"paymentMethod"`
	PaymentProvider   string      `gorm:"size:50" json:"paymentProvider"`
	ProviderOrderID   *string     `gorm:"size:100;index" json:"providerOrderId"`
	ProviderPaymentID *string     `gorm:"size:100" json:"providerPaymentId"`
	PaidAt            *time.Time  `json:"paidAt"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

func (PaymentOrder) TableName() string { return "payment_orders" }

type PaymentRepository interface {
	Create(ctx context.Context, o *PaymentOrder) error
	FindByID(ctx context.Context, id string) (*PaymentOrder, error)
	FindForUser(ctx context.Context, id, userID string) (*PaymentOrder, error)
	SetProviderOrderID(ctx context.Context, id, providerOrderID string) error
	// Transition 条件更新 status = from → to，返回是否生效；to == paid 时同一事务内激活会员
	Transition(ctx context.Context, id string, from, to OrderStatus, providerPaymentID string, now time.Time) (bool, error)
	List(ctx context.Context, status OrderStatus, offset, limit int) ([]PaymentOrder, int64, error)
}
