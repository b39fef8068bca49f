package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gokselkaptan/takas-app-sub005/internal/models"
)

// NotificationRepository stores swap-event notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, payload, is_read)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, payload, is_read, created_at
	`
	err := r.db.GetContext(ctx, notification, query,
		notification.UserID, notification.Payload, notification.IsRead)
	if err != nil {
		return fmt.Errorf("notification repository: create %w", err)
	}
	return nil
}

// List returns the user's notifications, newest first.
func (r *NotificationRepository) List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	var notifications []models.Notification
	query := `
		SELECT id, user_id, payload, is_read, created_at
		FROM notifications WHERE user_id = $1
	`
	if unreadOnly {
		query += ` AND NOT is_read`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	err := r.db.SelectContext(ctx, &notifications, query, userID, limit, offset)
	return notifications, err
}

// MarkAllAsRead marks every notification of a user as read.
func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read
	`, userID)
	return err
}

// CountUnread returns the number of unread notifications.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read
	`, userID)
	return count, err
}
