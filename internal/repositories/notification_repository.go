package repositories

import (
	"context"
	"fmt"

	"carwash/internal/models"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID int, unreadOnly bool, limit, offset int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id int64, userID int) (bool, error)
	CountUnread(ctx context.Context, userID int) (int, error)
}

type notificationRepository struct{ db DBTX }

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	const q = `
		INSERT INTO notifications (user_id, type, title, message, read, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, q, n.UserID, n.Type, n.Title, n.Message, n.CreatedAt).Scan(&n.ID); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID int, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	const q = `
		SELECT id, user_id, type, title, message, read, created_at
		FROM notifications
		WHERE user_id = $1 AND ($2 = FALSE OR read = FALSE)
		ORDER BY id DESC
		LIMIT $3 OFFSET $4`
	rows, err := r.db.QueryContext(ctx, q, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var res []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		res = append(res, &n)
	}
	return res, rows.Err()
}

// MarkRead — только свои уведомления.
func (r *notificationRepository) MarkRead(ctx context.Context, id int64, userID int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read=TRUE WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return n > 0, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID int) (int, error) {
	var c int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND read=FALSE`, userID).Scan(&c); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return c, nil
}
