package services

import (
	"context"
	"fmt"

	"carwash/internal/models"
	"carwash/internal/repositories"
)

// UserService — read side of accounts. Accounts are created by the auth
// service; KYC only moves their status.
type UserService interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)
}

type userService struct {
	repo repositories.UserRepository
}

func NewUserService(repo repositories.UserRepository) UserService {
	return &userService{repo: repo}
}

func (s *userService) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, nil
}

