package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"translator-agent/internal/domain"
)

type UserList struct {
	Total int64         `json:"total"`
	Items []domain.User `json:"items"`
}

type AdminService struct {
	users domain.UserRepository
	log   *zap.Logger
}

func NewAdminService(users domain.UserRepository, l *zap.Logger) *AdminService {
	if l == nil {
		l = zap.NewNop()
	}
	return &AdminService{users: users, log: l.Named("admin")}
}

func (s *AdminService) ListUsers(ctx context.Context, q string, offset, limit int) (*UserList, error) {
	rows, total, err := s.users.List(ctx, q, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if rows == nil {
		rows = []domain.User{}
	}
	return &UserList{Total: total, Items: rows}, nil
}

// Ban 软删除，已删除或不存在返回 ErrUserNotFound
func (s *AdminService) Ban(ctx context.Context, id string) error {
	ok, err := s.users.SoftDelete(ctx, id)
	if err != nil {
		return fmt.Errorf("ban user: %w", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	s.log.Info("user banned", zap.String("user_id", id))
	return nil
}
