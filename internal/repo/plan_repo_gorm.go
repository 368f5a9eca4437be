package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"translator-agent/internal/domain"
)

type PlanRepo struct{ db *gorm.DB }

func NewPlanRepo(db *gorm.DB) *PlanRepo { return &PlanRepo{db: db} }

func (r *PlanRepo) ListActive(ctx context.Context) ([]domain.MembershipPlan, error) {
	var plans []domain.MembershipPlan
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("price ASC").Find(&plans).Error
	return plans, err
}

func (r *PlanRepo) FindByID(ctx context.Context, id string) (*domain.MembershipPlan, error) {
	return r.find(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *PlanRepo) FindActive(ctx context.Context, id string) (*domain.MembershipPlan, error) {
	return r.find(r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true))
}

func (r *PlanRepo) find(q *gorm.DB) (*domain.MembershipPlan, error) {
	var p domain.MembershipPlan
	err := q.First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PlanRepo) Seed(ctx context.Context, plans []domain.MembershipPlan) error {
	if len(plans) == 0 {
		return nil
	}
	// INSERT IGNORE 语义：已有套餐不覆盖
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&plans).Error
}
