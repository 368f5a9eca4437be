package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"translator-agent/internal/core/auth"
	"translator-agent/internal/domain"
	"translator-agent/pkg/utils"
)

// MembershipSummary 用户信息里附带的当前会员
type MembershipSummary struct {
	ID               string    `json:"id"` // planId
	Name             string    `json:"name"`
	Type             string    `json:"type"`
	Features         []string  `json:"features"`
	IsActive         bool      `json:"isActive"`
	ExpiryDate       time.Time `json:"expiryDate"`
	TranslationQuota int       `json:"translationQuota"`
	PrioritySupport  bool      `json:"prioritySupport"`
}

type UserView struct {
	ID         string             `json:"id"`
	Username   string             `json:"username"`
	Email      string             `json:"email"`
	Avatar     *string            `json:"avatar"`
	Role       string             `json:"role"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
	Membership *MembershipSummary `json:"membership,omitempty"`
}

func newUserView(u *domain.User, m *domain.UserMembership) *UserView {
	v := &UserView{
		ID: u.ID, Username: u.Username, Email: u.Email, Avatar: u.Avatar, Role: u.Role,
		CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	}
	if m != nil && m.Plan != nil {
		features := []string(m.Plan.Features)
		if features == nil {
			features = []string{}
		}
		v.Membership = &MembershipSummary{
			ID:               m.PlanID,
			Name:             m.Plan.Name,
			Type:             string(m.Plan.Type),
			Features:         features,
			IsActive:         true,
			ExpiryDate:       m.EndDate,
			TranslationQuota: m.Plan.TranslationQuota,
			PrioritySupport:  m.Plan.PrioritySupport,
		}
	}
	return v
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type LoginResult struct {
	User         *UserView `json:"user"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
}

type AuthService struct {
	users       domain.UserRepository
	memberships domain.MembershipRepository
	tokens      auth.Pair
	log         *zap.Logger
	now         func() time.Time
}

func NewAuthService(users domain.UserRepository, memberships domain.MembershipRepository, tokens auth.Pair, l *zap.Logger) *AuthService {
	if l == nil {
		l = zap.NewNop()
	}
	return &AuthService{users: users, memberships: memberships, tokens: tokens, log: l.Named("auth"), now: time.Now}
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*UserView, error) {
	username := strings.TrimSpace(in.Username)
	email := normalizeEmail(in.Email)

	exists, err := s.users.ExistsByEmailOrUsername(ctx, email, username)
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if exists {
		return nil, ErrUserExists
	}
	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &domain.User{
		ID:           utils.NewID(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}
	if err := s.users.Create(ctx, u); err != nil {
		// 并发注册撞唯一索引
		if errors.Is(err, gorm.ErrDuplicatedKey) || isDupKey(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user registered", zap.String("user_id", u.ID))
	return newUserView(u, nil), nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u == nil || !utils.CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	access, refresh, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	m, err := s.memberships.Current(ctx, u.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	return &LoginResult{User: newUserView(u, m), Token: access, RefreshToken: refresh}, nil
}

// Refresh 用 refresh token 换新的 access token
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.Refresh.Parse(refreshToken)
	if err != nil {
		return "", ErrInvalidToken
	}
	u, err := s.users.FindByID(ctx, claims.UID)
	if err != nil {
		return "", fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return "", ErrInvalidToken
	}
	tok, err := s.tokens.Access.Issue(u.ID, u.Role)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return tok, nil
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*UserView, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	m, err := s.memberships.Current(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	return newUserView(u, m), nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, username, avatar *string) (*UserView, error) {
	if username != nil {
		name := strings.TrimSpace(*username)
		if name == "" {
			username = nil
		} else {
			taken, err := s.users.UsernameTaken(ctx, name, userID)
			if err != nil {
				return nil, fmt.Errorf("check username: %w", err)
			}
			if taken {
				return nil, ErrUsernameTaken
			}
			username = &name
		}
	}
	if username == nil && avatar == nil {
		return nil, ErrNoFields
	}
	if err := s.users.UpdateProfile(ctx, userID, username, avatar); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isDupKey(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.Profile(ctx, userID)
}

func isDupKey(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation")
}
