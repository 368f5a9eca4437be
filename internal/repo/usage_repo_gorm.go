package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"translator-agent/internal/domain"
	"translator-agent/pkg/utils"
)

type UsageRepo struct{ db *gorm.DB }

func NewUsageRepo(db *gorm.DB) *UsageRepo { return &UsageRepo{db: db} }

func (r *UsageRepo) Get(ctx context.Context, userID, month string) (*domain.UsageRecord, error) {
	var u domain.UsageRecord
	err := r.db.WithContext(ctx).Where("user_id = ? AND month = ?", userID, month).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Increment 单条 upsert 完成累加，并发下不丢更新
// mysql: ON DUPLICATE KEY UPDATE；postgres/sqlite: ON CONFLICT (user_id, month) DO UPDATE
func (r *UsageRepo) Increment(ctx context.Context, userID, month string, chars int) error {
	table := domain.UsageRecord{}.TableName()
	rec := domain.UsageRecord{
		ID:                utils.NewID(),
		UserID:            userID,
		Month:             month,
		CharactersUsed:    int64(chars),
		TranslationsCount: 1,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "month"}},
		DoUpdates: clause.Assignments(map[string]any{
			"characters_used":    gorm.Expr(table+".characters_used + ?", chars),
			"translations_count": gorm.Expr(table + ".translations_count + 1"),
			"updated_at":         time.Now(),
		}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("usage increment: %w", err)
	}
	return nil
}

func (r *UsageRepo) Since(ctx context.Context, userID, fromMonth string) ([]domain.UsageRecord, error) {
	var rows []domain.UsageRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND month >= ?", userID, fromMonth).
		Order("month DESC").
		Find(&rows).Error
	return rows, err
}
