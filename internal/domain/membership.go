package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
)

// UnlimitedQuota 套餐额度哨兵值
const UnlimitedQuota = -1

type PlanType string

const (
	PlanBasic      PlanType = "basic"
	PlanPremium    PlanType = "premium"
	PlanEnterprise PlanType = "enterprise"
)

type MembershipPlan struct {
	ID               string                      `gorm:"primaryKey;size:36" json:"id"`
	Name             string                      `gorm:"size:50;not null" json:"name"`
	Type             PlanType                    `gorm:"size:16;not null" json:"type"`
	Price            float64                     `gorm:"type:decimal(10,2);not null" json:"price"`
	Duration         int                         `gorm:"not null" json:"duration"` // 天
	TranslationQuota int                         `gorm:"not null" json:"translationQuota"`
	PrioritySupport  bool                        `gorm:"not null;default:false" json:"prioritySupport"`
	Features         datatypes.JSONSlice[string] `json:"features"`
	IsActive         bool                        `gorm:"not null;default:true" json:"isActive"`
	CreatedAt        time.Time                   `json:"createdAt"`
	UpdatedAt        time.Time                   `json:"updatedAt"`
}

func (MembershipPlan) TableName() string { return "membership_plans" }

func (p MembershipPlan) Unlimited() bool { return p.TranslationQuota == UnlimitedQuota }

type UserMembership struct {
	ID        string          `gorm:"primaryKey;size:36" json:"id"`
	UserID    string          `gorm:"size:36;not null;index" json:"userId"`
	PlanID    string          `gorm:"size:36;not null" json:"planId"`
	StartDate time.Time       `gorm:"not null" json:"startDate"`
	EndDate   time.Time       `gorm:"not null;index" json:"endDate"`
	IsActive  bool            `gorm:"not null;default:true;index" json:"isActive"`
	Plan      *MembershipPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (UserMembership) TableName() string { return "user_memberships" }

// CurrentAt 是否为 now 时刻的有效会员
func (m UserMembership) CurrentAt(now time.Time) bool {
	return m.IsActive && m.EndDate.After(now)
}

type PlanRepository interface {
	ListActive(ctx context.Context) ([]MembershipPlan, error)
	FindByID(ctx context.Context, id string) (*MembershipPlan, error)
	FindActive(ctx context.Context, id string) (*MembershipPlan, error)
	// Seed 已存在的 id 跳过
	Seed(ctx context.Context, plans []MembershipPlan) error
}

type MembershipRepository interface {
	// Current is_active 且 end_date > now，按 end_date 倒序取一条，带 Plan
	Current(ctx context.Context, userID string, now time.Time) (*UserMembership, error)
	History(ctx context.Context, userID string, offset, limit int) ([]UserMembership, int64, error)
	// Activate 停用该用户所有有效会员，再插入新的一条
	Activate(ctx context.Context, userID string, plan *MembershipPlan, now time.Time) (*UserMembership, error)
	// ExpireStale userID 为空时处理所有用户
	ExpireStale(ctx context.Context, userID string, now time.Time) (int64, error)
	// Latest 最近一条有效会员（不校验过期），支付核验用
	Latest(ctx context.Context, userID string) (*UserMembership, error)
}

// DefaultPlans 初始套餐
func DefaultPlans() []MembershipPlan {
	return []MembershipPlan{
		{
			ID: "basic-plan", Name: "基础版", Type: PlanBasic, Price: 29.00, Duration: 30,
			TranslationQuota: 10000, IsActive: true,
			Features: []string{"每月10,000字翻译额度", "支持文本翻译", "基础客服支持", "多语言支持"},
		},
		{
			ID: "premium-plan", Name: "专业版", Type: PlanPremium, Price: 99.00, Duration: 30,
			TranslationQuota: 50000, PrioritySupport: true, IsActive: true,
			Features: []string{"每月50,000字翻译额度", "支持文本、文件、网页翻译", "优先客服支持", "多语言支持", "翻译历史记录", "批量翻译功能"},
		},
		{
			ID: "enterprise-plan", Name: "企业版", Type: PlanEnterprise, Price: 299.00, Duration: 30,
			TranslationQuota: UnlimitedQuota, PrioritySupport: true, IsActive: true,
			Features: []string{"无限翻译额度", "支持所有翻译类型", "专属客服支持", "多语言支持", "翻译历史记录", "批量翻译功能", "API接口调用", "团队协作功能"},
		},
	}
}
