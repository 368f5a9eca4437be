package domain

import (
	"context"
	"time"
)

type UsageRecord struct {
	ID                string    `gorm:"primaryKey;size:36" json:"id"`
	UserID            string    `gorm:"size:36;not null;uniqueIndex:uniq_user_month,priority:1" json:"userId"`
	Month             string    `gorm:"size:7;not null;uniqueIndex:uniq_user_month,priority:2;index" json:"month"`
	CharactersUsed    int64     `gorm:"not null;default:0" json:"charactersUsed"`
	TranslationsCount int64     `gorm:"not null;default:0" json:"translationsCount"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (UsageRecord) TableName() string { return "user_usage_stats" }

// MonthKey YYYY-MM（UTC）
func MonthKey(t time.Time) string { return t.UTC().Format("2006-01") }

type UsageRepository interface {
	// Get 没有记录返回 nil, nil
	Get(ctx context.Context, userID, month string) (*UsageRecord, error)
	// Increment 原子 upsert：characters_used += chars, translations_count += 1
	Increment(ctx context.Context, userID, month string, chars int) error
	// Since month >= fromMonth，按月份倒序
	Since(ctx context.Context, userID, fromMonth string) ([]UsageRecord, error)
}
