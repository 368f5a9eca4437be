package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"translator-agent/internal/domain"
	"translator-agent/pkg/utils"
)

type MembershipRepo struct{ db *gorm.DB }

func NewMembershipRepo(db *gorm.DB) *MembershipRepo { return &MembershipRepo{db: db} }

func (r *MembershipRepo) Current(ctx context.Context, userID string, now time.Time) (*domain.UserMembership, error) {
	var m domain.UserMembership
	err := r.db.WithContext(ctx).Preload("Plan").
		Where("user_id = ? AND is_active = ? AND end_date > ?", userID, true, now).
		Order("end_date DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MembershipRepo) Latest(ctx context.Context, userID string) (*domain.UserMembership, error) {
	var m domain.UserMembership
	err := r.db.WithContext(ctx).Preload("Plan").
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("end_date DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MembershipRepo) History(ctx context.Context, userID string, offset, limit int) ([]domain.UserMembership, int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.UserMembership{}).Where("user_id = ?", userID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []domain.UserMembership
	err := q.Preload("Plan").Order("start_date DESC").Offset(offset).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *MembershipRepo) Activate(ctx context.Context, userID string, plan *domain.MembershipPlan, now time.Time) (*domain.UserMembership, error) {
	var out *domain.UserMembership
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := activateTx(tx, userID, plan, now)
		out = m
		return err
	})
	return out, err
}

// activateTx 在调用方事务里执行：先停用旧会员再插入新会员
func activateTx(tx *gorm.DB, userID string, plan *domain.MembershipPlan, now time.Time) (*domain.UserMembership, error) {
	err := tx.Model(&domain.UserMembership{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false).Error
	if err != nil {
		return nil, err
	}
	m := &domain.UserMembership{
		ID:        utils.NewID(),
		UserID:    userID,
		PlanID:    plan.ID,
		StartDate: now,
		EndDate:   now.Add(time.Duration(plan.Duration) * 24 * time.Hour),
		IsActive:  true,
	}
	if err := tx.Create(m).Error; err != nil {
		return nil, err
	}
	m.Plan = plan
	return m, nil
}

func (r *MembershipRepo) ExpireStale(ctx context.Context, userID string, now time.Time) (int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.UserMembership{}).
		Where("is_active = ? AND end_date <= ?", true, now)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	res := q.Update("is_active", false)
	return res.RowsAffected, res.Error
}
