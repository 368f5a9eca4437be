package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"translator-agent/internal/core/auth"
	"translator-agent/internal/core/database"
	"translator-agent/internal/domain"
	"translator-agent/internal/quota"
	"translator-agent/internal/repo"
)

type repos struct {
	db          *gorm.DB
	users       *repo.UserRepo
	plans       *repo.PlanRepo
	memberships *repo.MembershipRepo
	usage       *repo.UsageRepo
	orders      *repo.PaymentRepo
	records     *repo.TranslationRepo
}

func newRepos(t *testing.T) *repos {
	t.Helper()
	db, err := database.NewGorm(database.Opts{
		Driver:   "sqlite",
		DSN:      fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	r := &repos{
		db:          db,
		users:       repo.NewUserRepo(db),
		plans:       repo.NewPlanRepo(db),
		memberships: repo.NewMembershipRepo(db),
		usage:       repo.NewUsageRepo(db),
		orders:      repo.NewPaymentRepo(db),
		records:     repo.NewTranslationRepo(db),
	}
	require.NoError(t, r.plans.Seed(context.Background(), domain.DefaultPlans()))
	return r
}

func (r *repos) ledger() *quota.Ledger {
	return quota.NewLedger(r.memberships, r.usage, quota.DefaultFreeQuota)
}

func (r *repos) seedUser(t *testing.T, id string) *domain.User {
	t.Helper()
	u := &domain.User{ID: id, Username: "user-" + id, Email: id + "@example.com", PasswordHash: "x", Role: domain.RoleUser}
	require.NoError(t, r.users.Create(context.Background(), u))
	return u
}

func testTokens() auth.Pair {
	return auth.Pair{
		Access:  &auth.JWTer{Secret: []byte("access-secret"), Issuer: "test", TTL: time.Hour, Kind: auth.KindAccess},
		Refresh: &auth.JWTer{Secret: []byte("refresh-secret"), Issuer: "test", TTL: 24 * time.Hour, Kind: auth.KindRefresh},
	}
}
