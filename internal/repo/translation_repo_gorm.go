package repo

import (
	"context"

	"gorm.io/gorm"

	"translator-agent/internal/domain"
	"translator-agent/pkg/utils"
)

type TranslationRepo struct{ db *gorm.DB }

func NewTranslationRepo(db *gorm.DB) *TranslationRepo { return &TranslationRepo{db: db} }

func (r *TranslationRepo) Create(ctx context.Context, rec *domain.TranslationRecord) error {
	if rec.ID == "" {
		rec.ID = utils.NewID()
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *TranslationRepo) CountCompleted(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.TranslationRecord{}).
		Where("user_id = ? AND status = ?", userID, domain.TranslationCompleted).
		Count(&n).Error
	return n, err
}
