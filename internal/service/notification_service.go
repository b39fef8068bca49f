package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/gokselkaptan/takas-app-sub005/internal/models"
	"github.com/gokselkaptan/takas-app-sub005/internal/pkg/apperror"
)

// NotificationRepo stores and reads per-user notifications.
type NotificationRepo interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error)
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// NotificationService records swap events for later retrieval. Live
// delivery goes through the websocket hub separately.
type NotificationService struct {
	repo NotificationRepo
}

func NewNotificationService(repo NotificationRepo) *NotificationService {
	return &NotificationService{repo: repo}
}

// Record stores one notification with an arbitrary JSON payload.
func (s *NotificationService) Record(ctx context.Context, userID uuid.UUID, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "marshal notification payload failed")
	}
	n := &models.Notification{UserID: userID, Payload: raw}
	if err := s.repo.Create(ctx, n); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "store notification failed")
	}
	return nil
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, userID, limit, offset, unreadOnly)
}

// MarkAllRead flags every notification of the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

// UnreadCount returns the number of unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}
