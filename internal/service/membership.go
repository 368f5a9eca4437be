package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"translator-agent/internal/domain"
	"translator-agent/internal/quota"
)

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

func NewPagination(page, limit int, total int64) Pagination {
	p := Pagination{Page: page, Limit: limit, Total: total}
	if limit > 0 {
		p.TotalPages = (total + int64(limit) - 1) / int64(limit)
	}
	return p
}

type MembershipHistory struct {
	Memberships []domain.UserMembership `json:"memberships"`
	Pagination  Pagination              `json:"pagination"`
}

type UsageCounters struct {
	CharactersUsed    int64 `json:"charactersUsed"`
	TranslationsCount int64 `json:"translationsCount"`
}

type UsageReport struct {
	CurrentUsage     UsageCounters        `json:"currentUsage"`
	Quota            int                  `json:"quota"`
	RemainingQuota   int                  `json:"remainingQuota"`
	MonthlyStats     []domain.UsageRecord `json:"monthlyStats"`
	MembershipActive bool                 `json:"membershipActive"`
	MembershipExpiry *time.Time           `json:"membershipExpiry"`
}

type ExpiryReport struct {
	HasActiveMembership bool                   `json:"hasActiveMembership"`
	Membership          *domain.UserMembership `json:"membership"`
	Message             string                 `json:"message"`
}

type MembershipService struct {
	plans       domain.PlanRepository
	memberships domain.MembershipRepository
	usage       domain.UsageRepository
	ledger      *quota.Ledger
	log         *zap.Logger
	now         func() time.Time
}

func NewMembershipService(plans domain.PlanRepository, memberships domain.MembershipRepository, usage domain.UsageRepository, ledger *quota.Ledger, l *zap.Logger) *MembershipService {
	if l == nil {
		l = zap.NewNop()
	}
	return &MembershipService{
		plans: plans, memberships: memberships, usage: usage, ledger: ledger,
		log: l.Named("membership"), now: time.Now,
	}
}

func (s *MembershipService) SeedDefaults(ctx context.Context) error {
	return s.plans.Seed(ctx, domain.DefaultPlans())
}

func (s *MembershipService) Plans(ctx context.Context) ([]domain.MembershipPlan, error) {
	return s.plans.ListActive(ctx)
}

func (s *MembershipService) Current(ctx context.Context, userID string) (*domain.UserMembership, error) {
	return s.memberships.Current(ctx, userID, s.now())
}

func (s *MembershipService) History(ctx context.Context, userID string, page, limit int) (*MembershipHistory, error) {
	rows, total, err := s.memberships.History(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.UserMembership{}
	}
	return &MembershipHistory{Memberships: rows, Pagination: NewPagination(page, limit, total)}, nil
}

// Usage 当月用量 + 近 6 个月统计
func (s *MembershipService) Usage(ctx context.Context, userID string) (*UsageReport, error) {
	snap, err := s.ledger.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	from := domain.MonthKey(time.Date(now.Year(), now.Month()-6, 1, 0, 0, 0, 0, time.UTC))
	monthly, err := s.usage.Since(ctx, userID, from)
	if err != nil {
		return nil, fmt.Errorf("load monthly usage: %w", err)
	}
	if monthly == nil {
		monthly = []domain.UsageRecord{}
	}
	r := &UsageReport{
		CurrentUsage:   UsageCounters{CharactersUsed: snap.CharactersUsed, TranslationsCount: snap.TranslationsCount},
		Quota:          snap.Quota,
		RemainingQuota: snap.Remaining,
		MonthlyStats:   monthly,
	}
	if snap.Membership != nil {
		r.MembershipActive = true
		end := snap.Membership.EndDate
		r.MembershipExpiry = &end
	}
	return r, nil
}

func (s *MembershipService) CheckExpiry(ctx context.Context, userID string) (*ExpiryReport, error) {
	now := s.now()
	n, err := s.memberships.ExpireStale(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("expire memberships: %w", err)
	}
	if n > 0 {
		s.log.Info("memberships expired", zap.String("user_id", userID), zap.Int64("count", n))
	}
	m, err := s.memberships.Current(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return &ExpiryReport{Message: "No active membership"}, nil
	}
	return &ExpiryReport{HasActiveMembership: true, Membership: m, Message: "Membership is active"}, nil
}

// ExpireAll 管理端批量处理过期会员
func (s *MembershipService) ExpireAll(ctx context.Context) (int64, error) {
	n, err := s.memberships.ExpireStale(ctx, "", s.now())
	if err != nil {
		return 0, fmt.Errorf("expire memberships: %w", err)
	}
	s.log.Info("expired memberships swept", zap.Int64("count", n))
	return n, nil
}
