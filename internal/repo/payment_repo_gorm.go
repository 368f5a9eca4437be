package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"translator-agent/internal/domain"
)

type PaymentRepo struct{ db *gorm.DB }

func NewPaymentRepo(db *gorm.DB) *PaymentRepo { return &PaymentRepo{db: db} }

func (r *PaymentRepo) Create(ctx context.Context, o *domain.PaymentOrder) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *PaymentRepo) FindByID(ctx context.Context, id string) (*domain.PaymentOrder, error) {
	return r.find(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *PaymentRepo) FindForUser(ctx context.Context, id, userID string) (*domain.PaymentOrder, error) {
	return r.find(r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID))
}

func (r *PaymentRepo) find(q *gorm.DB) (*domain.PaymentOrder, error) {
	var o domain.PaymentOrder
	err := q.First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PaymentRepo) SetProviderOrderID(ctx context.Context, id, providerOrderID string) error {
	return r.db.WithContext(ctx).Model(&domain.PaymentOrder{}).
		Where("id = ?", id).Update("provider_order_id", providerOrderID).Error
}

var ErrPlanMissing = errors.New("plan not found for order")

func (r *PaymentRepo) Transition(ctx context.Context, id string, from, to domain.OrderStatus, providerPaymentID string, now time.Time) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("order %s: illegal transition %s -> %s", id, from, to)
	}
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"status": to}
		if providerPaymentID != "" {
			updates["provider_payment_id"] = providerPaymentID
		}
		if to == domain.OrderPaid {
			updates["paid_at"] = now
		}
		// 条件更新保证单调：并发回调只有一个能命中
		res := tx.Model(&domain.PaymentOrder{}).
			Where("id = ? AND status = ?", id, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		if to != domain.OrderPaid {
			return nil
		}

		var o domain.PaymentOrder
		if err := tx.Where("id = ?", id).First(&o).Error; err != nil {
			return err
		}
		var plan domain.MembershipPlan
		if err := tx.Where("id = ?", o.PlanID).First(&plan).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPlanMissing
			}
			return err
		}
		_, err := activateTx(tx, o.UserID, &plan, now)
		return err
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *PaymentRepo) List(ctx context.Context, status domain.OrderStatus, offset, limit int) ([]domain.PaymentOrder, int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.PaymentOrder{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []domain.PaymentOrder
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
