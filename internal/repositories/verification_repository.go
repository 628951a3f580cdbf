package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carwash/internal/models"
)

type PhoneVerificationRepository interface {
	Create(ctx context.Context, v *models.PhoneVerification) error
	// ListActive — unverified, unexpired rows for (user, phone), newest first.
	ListActive(ctx context.Context, userID int, phone string, now time.Time) ([]*models.PhoneVerification, error)
	LatestUnverified(ctx context.Context, userID int, phone string) (*models.PhoneVerification, error)
	IncrementAttempts(ctx context.Context, id int64) (int, error)
	MarkVerified(ctx context.Context, id int64) error
	// ExpireActive expires every live code for (user, phone).
	ExpireActive(ctx context.Context, userID int, phone string, now time.Time) error
	CountSince(ctx context.Context, userID int, since time.Time) (int, error)
}

type EmailVerificationRepository interface {
	Create(ctx context.Context, v *models.EmailVerification) error
	ListActive(ctx context.Context, userID int, email string, now time.Time) ([]*models.EmailVerification, error)
	IncrementAttempts(ctx context.Context, id int64) (int, error)
	MarkVerified(ctx context.Context, id int64) error
	ExpireActive(ctx context.Context, userID int, email string, now time.Time) error
	CountSince(ctx context.Context, userID int, since time.Time) (int, error)
}

type phoneVerificationRepository struct{ db DBTX }

// Create — каждая отправка кода — новая строка.
func (r *phoneVerificationRepository) Create(ctx context.Context, v *models.PhoneVerification) error {
	const q = `
		INSERT INTO phone_verifications (user_id, phone, otp_hash, expires_at, verified, attempts, created_at)
		VALUES ($1, $2, $3, $4, FALSE, 0, $5)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, q, v.UserID, v.Phone, v.CodeHash, v.ExpiresAt, v.CreatedAt).Scan(&v.ID); err != nil {
		return fmt.Errorf("phone_verification create: %w", err)
	}
	return nil
}

func (r *phoneVerificationRepository) ListActive(ctx context.Context, userID int, phone string, now time.Time) ([]*models.PhoneVerification, error) {
	const q = `
		SELECT id, user_id, phone, otp_hash, expires_at, verified, attempts, created_at
		FROM phone_verifications
		WHERE user_id = $1 AND phone = $2 AND verified = FALSE AND expires_at > $3
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, q, userID, phone, now)
	if err != nil {
		return nil, fmt.Errorf("phone_verification active: %w", err)
	}
	defer rows.Close()

	var res []*models.PhoneVerification
	for rows.Next() {
		var v models.PhoneVerification
		if err := rows.Scan(&v.ID, &v.UserID, &v.Phone, &v.CodeHash, &v.ExpiresAt, &v.Verified, &v.Attempts, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("phone_verification scan: %w", err)
		}
		res = append(res, &v)
	}
	return res, rows.Err()
}

// LatestUnverified — последняя неподтверждённая отправка (по created_at DESC), даже если истекла.
func (r *phoneVerificationRepository) LatestUnverified(ctx context.Context, userID int, phone string) (*models.PhoneVerification, error) {
	const q = `
		SELECT id, user_id, phone, otp_hash, expires_at, verified, attempts, created_at
		FROM phone_verifications
		WHERE user_id = $1 AND phone = $2 AND verified = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var v models.PhoneVerification
	err := r.db.QueryRowContext(ctx, q, userID, phone).Scan(
		&v.ID, &v.UserID, &v.Phone, &v.CodeHash, &v.ExpiresAt, &v.Verified, &v.Attempts, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("phone_verification latest: %w", err)
	}
	return &v, nil
}

// IncrementAttempts — +1 попытка, возвращает новое значение attempts.
func (r *phoneVerificationRepository) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	const q = `
		UPDATE phone_verifications
		SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`
	var attempts int
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("phone_verification increment attempts: %w", err)
	}
	return attempts, nil
}

// MarkVerified flips verified only once; a second call reports ErrAlreadyConsumed.
func (r *phoneVerificationRepository) MarkVerified(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE phone_verifications SET verified=TRUE WHERE id=$1 AND verified=FALSE`, id)
	if err != nil {
		return fmt.Errorf("phone_verification mark verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("phone_verification mark verified: %w", err)
	}
	if n == 0 {
		return ErrAlreadyConsumed
	}
	return nil
}

// ExpireActive — моментально "протухаем" все живые коды (при превышении попыток).
func (r *phoneVerificationRepository) ExpireActive(ctx context.Context, userID int, phone string, now time.Time) error {
	const q = `
		UPDATE phone_verifications SET expires_at = $3
		WHERE user_id = $1 AND phone = $2 AND verified = FALSE AND expires_at > $3
	`
	if _, err := r.db.ExecContext(ctx, q, userID, phone, now); err != nil {
		return fmt.Errorf("phone_verification expire: %w", err)
	}
	return nil
}

func (r *phoneVerificationRepository) CountSince(ctx context.Context, userID int, since time.Time) (int, error) {
	var c int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM phone_verifications WHERE user_id = $1 AND created_at >= $2`, userID, since).Scan(&c)
	if err != nil {
		return 0, fmt.Errorf("phone_verification count recent: %w", err)
	}
	return c, nil
}

type emailVerificationRepository struct{ db DBTX }

func (r *emailVerificationRepository) Create(ctx context.Context, v *models.EmailVerification) error {
	const q = `
		INSERT INTO email_verifications (user_id, email, token_hash, expires_at, verified, attempts, created_at)
		VALUES ($1, $2, $3, $4, FALSE, 0, $5)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, q, v.UserID, v.Email, v.CodeHash, v.ExpiresAt, v.CreatedAt).Scan(&v.ID); err != nil {
		return fmt.Errorf("email_verification create: %w", err)
	}
	return nil
}

func (r *emailVerificationRepository) ListActive(ctx context.Context, userID int, email string, now time.Time) ([]*models.EmailVerification, error) {
	const q = `
		SELECT id, user_id, email, token_hash, expires_at, verified, attempts, created_at
		FROM email_verifications
		WHERE user_id = $1 AND email = $2 AND verified = FALSE AND expires_at > $3
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, q, userID, email, now)
	if err != nil {
		return nil, fmt.Errorf("email_verification active: %w", err)
	}
	defer rows.Close()

	var res []*models.EmailVerification
	for rows.Next() {
		var v models.EmailVerification
		if err := rows.Scan(&v.ID, &v.UserID, &v.Email, &v.CodeHash, &v.ExpiresAt, &v.Verified, &v.Attempts, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("email_verification scan: %w", err)
		}
		res = append(res, &v)
	}
	return res, rows.Err()
}

func (r *emailVerificationRepository) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx,
		`UPDATE email_verifications SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`, id).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("email_verification increment attempts: %w", err)
	}
	return attempts, nil
}

func (r *emailVerificationRepository) MarkVerified(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE email_verifications SET verified=TRUE WHERE id=$1 AND verified=FALSE`, id)
	if err != nil {
		return fmt.Errorf("email_verification mark verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("email_verification mark verified: %w", err)
	}
	if n == 0 {
		return ErrAlreadyConsumed
	}
	return nil
}

func (r *emailVerificationRepository) ExpireActive(ctx context.Context, userID int, email string, now time.Time) error {
	const q = `
		UPDATE email_verifications SET expires_at = $3
		WHERE user_id = $1 AND email = $2 AND verified = FALSE AND expires_at > $3
	`
	if _, err := r.db.ExecContext(ctx, q, userID, email, now); err != nil {
		return fmt.Errorf("email_verification expire: %w", err)
	}
	return nil
}

func (r *emailVerificationRepository) CountSince(ctx context.Context, userID int, since time.Time) (int, error) {
	var c int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM email_verifications WHERE user_id = $1 AND created_at >= $2`, userID, since).Scan(&c)
	if err != nil {
		return 0, fmt.Errorf("email_verification count recent: %w", err)
	}
	return c, nil
}
