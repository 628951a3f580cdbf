package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carwash/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int) (*models.User, error)
	UpdateStatus(ctx context.Context, id int, status string, at time.Time) error
}

type userRepository struct {
	db DBTX
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	const q = `
		INSERT INTO users (name, email, phone, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = user.CreatedAt
	err := r.db.QueryRowContext(ctx, q,
		user.Name, user.Email, user.Phone, user.Role, user.Status, user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	const q = `
		SELECT id, COALESCE(name,''), email, COALESCE(phone,''), role, status, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var u models.User
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *userRepository) UpdateStatus(ctx context.Context, id int, status string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET status=$1, updated_at=$2 WHERE id=$3`, status, at, id)
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
