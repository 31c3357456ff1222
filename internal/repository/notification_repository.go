package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pricescope/backend/internal/model"
)

// NotificationRepository defines the interface for persisted in-app
// notifications. The pipeline only creates rows; marking them read belongs
// to the CRUD API.
type NotificationRepository interface {
	Create(ctx context.Context, notification *model.Notification) error
}

type notificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Create persists an unread notification
func (r *notificationRepository) Create(ctx context.Context, notification *model.Notification) error {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (id, user_id, type, content, read)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING created_at
	`, notification.ID, notification.UserID, notification.Type, notification.Content,
	).Scan(&notification.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}
