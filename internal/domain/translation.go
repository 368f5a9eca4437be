package domain

import (
	"context"
	"time"
)

type TranslationStatus string

const (
	TranslationPending   TranslationStatus = "pending"
	TranslationCompleted TranslationStatus = "completed"
	TranslationFailed    TranslationStatus = "failed"
)

type TranslationRecord struct {
	ID             string            `gorm:"primaryKey;size:36" json:"id"`
	UserID         string            `gorm:"size:36;index" json:"userId"`
	SourceText     string            `gorm:"type:text;not null" json:"sourceText"`
	TargetText     *string           `gorm:"type:text" json:"targetText"`
	SourceLang     string            `gorm:"size:10;not null" json:"sourceLang"`
	TargetLang     string            `gorm:"size:10;not null" json:"targetLang"`
	Type           string            `gorm:"size:8;not null;default:text" json:"type"`
	CharacterCount int               `gorm:"not null;default:0" json:"characterCount"`
	Status         TranslationStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	ErrorMessage   *string           `gorm:"type:text" json:"errorMessage"`
	CreatedAt      time.Time         `gorm:"index" json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

func (TranslationRecord) TableName() string { return "translation_requests" }

type TranslationRepository interface {
	Create(ctx context.Context, r *TranslationRecord) error
	CountCompleted(ctx context.Context, userID string) (int64, error)
}
