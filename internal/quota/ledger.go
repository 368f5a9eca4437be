package quota

import (
	"context"
	"fmt"
	"time"

	"translator-agent/internal/domain"
)

const DefaultFreeQuota = 1000

// Memberships 只依赖 Current
type Memberships interface {
	Current(ctx context.Context, userID string, now time.Time) (*domain.UserMembership, error)
}

type Decision struct {
	Allowed bool
	// Remaining 检查时的剩余额度，无限为 -1
	Remaining int
	Quota     int
	Reason    string
}

// Snapshot 当月额度概况
type Snapshot struct {
	Quota             int
	CharactersUsed    int64
	TranslationsCount int64
	// Remaining 已截断到 >= 0，无限为 -1
	Remaining  int
	Membership *domain.UserMembership
}

// Ledger 按月字符额度；检查不预占，超额在并发下可能短暂发生
type Ledger struct {
	memberships Memberships
	usage       domain.UsageRepository
	freeQuota   int
	now         func() time.Time
}

func NewLedger(m Memberships, u domain.UsageRepository, freeQuota int) *Ledger {
	if freeQuota <= 0 {
		freeQuota = DefaultFreeQuota
	}
	return &Ledger{memberships: m, usage: u, freeQuota: freeQuota, now: time.Now}
}

// WithClock 测试用
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) quotaFor(ctx context.Context, userID string, now time.Time) (int, *domain.UserMembership, error) {
	m, err := l.memberships.Current(ctx, userID, now)
	if err != nil {
		return 0, nil, fmt.Errorf("load membership: %w", err)
	}
	if m == nil || m.Plan == nil {
		return l.freeQuota, m, nil
	}
	return m.Plan.TranslationQuota, m, nil
}

func (l *Ledger) Check(ctx context.Context, userID string, proposed int) (Decision, error) {
	now := l.now()
	q, _, err := l.quotaFor(ctx, userID, now)
	if err != nil {
		return Decision{}, err
	}
	if q == domain.UnlimitedQuota {
		return Decision{Allowed: true, Remaining: domain.UnlimitedQuota, Quota: q}, nil
	}
	rec, err := l.usage.Get(ctx, userID, domain.MonthKey(now))
	if err != nil {
		return Decision{}, fmt.Errorf("load usage: %w", err)
	}
	var used int64
	if rec != nil {
		used = rec.CharactersUsed
	}
	remaining := q - int(used)
	if remaining < proposed {
		return Decision{
			Remaining: remaining,
			Quota:     q,
			Reason:    fmt.Sprintf("翻译额度不足。当前剩余: %d 字符，需要: %d 字符", remaining, proposed),
		}, nil
	}
	return Decision{Allowed: true, Remaining: remaining, Quota: q}, nil
}

// Record 只在翻译成功后调用
func (l *Ledger) Record(ctx context.Context, userID string, chars int) error {
	return l.usage.Increment(ctx, userID, domain.MonthKey(l.now()), chars)
}

func (l *Ledger) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	now := l.now()
	q, m, err := l.quotaFor(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	rec, err := l.usage.Get(ctx, userID, domain.MonthKey(now))
	if err != nil {
		return nil, fmt.Errorf("load usage: %w", err)
	}
	s := &Snapshot{Quota: q, Membership: m}
	if rec != nil {
		s.CharactersUsed = rec.CharactersUsed
		s.TranslationsCount = rec.TranslationsCount
	}
	switch {
	case q == domain.UnlimitedQuota:
		s.Remaining = domain.UnlimitedQuota
	case int64(q) > s.CharactersUsed:
		s.Remaining = q - int(s.CharactersUsed)
	}
	return s, nil
}

// RemainingAfter 扣除本次用量后的剩余额度，无限保持 -1
func RemainingAfter(remaining, chars int) int {
	if remaining == domain.UnlimitedQuota {
		return remaining
	}
	return remaining - chars
}
