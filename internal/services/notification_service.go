package services

import (
	"context"
	"strings"
	"time"

	"carwash/internal/models"
	"carwash/internal/repositories"
)

// NotificationService is a per-user inbox stored in the notifications table.
type NotificationService struct {
	Store repositories.Store
	Now   func() time.Time
}

func NewNotificationService(store repositories.Store) *NotificationService {
	return &NotificationService{Store: store, Now: time.Now}
}

func (s *NotificationService) Notify(ctx context.Context, userID int, typ, title, message string) error {
	if strings.TrimSpace(title) == "" {
		return invalidInput("title is required")
	}
	n := &models.Notification{
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if s.Now != nil {
		n.CreatedAt = s.Now()
	}
	return s.Store.Notifications().Create(ctx, n)
}

func (s *NotificationService) List(ctx context.Context, userID int, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	items, err := s.Store.Notifications().ListByUser(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.Notification{}
	}
	return items, nil
}

// MarkRead — чужие и несуществующие уведомления дают ErrNotFound.
func (s *NotificationService) MarkRead(ctx context.Context, id int64, userID int) error {
	ok, err := s.Store.Notifications().MarkRead(ctx, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID int) (int, error) {
	return s.Store.Notifications().CountUnread(ctx, userID)
}
