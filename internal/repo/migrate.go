package repo

import (
	"gorm.io/gorm"

	"translator-agent/internal/domain"
)

// Models 参与 AutoMigrate 的全部表
func Models() []any {
	return []any{
		&domain.User{},
		&domain.MembershipPlan{},
		&domain.UserMembership{},
		&domain.PaymentOrder{},
		&domain.TranslationRecord{},
		&domain.UsageRecord{},
	}
}

func Migrate(db *gorm.DB) error { return db.AutoMigrate(Models()...) }
