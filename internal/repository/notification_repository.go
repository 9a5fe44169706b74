package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
)

const notificationColumns = `id, user_id, type, title, message, session_id, related_object_id, related_object_type, is_read, is_broadcast, action_url, created_at, read_at`

// NotificationRepository persists notifications and observer subscriptions.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a single notification row.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, user_id, type, title, message, session_id, related_object_id, related_object_type, is_read, is_broadcast, action_url, created_at, read_at)
        VALUES (:id, :user_id, :type, :title, :message, :session_id, :related_object_id, :related_object_type, :is_read, :is_broadcast, :action_url, :created_at, :read_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// FindByID returns a notification by its ID.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	query := fmt.Sprintf("SELECT %s FROM notifications WHERE id = $1", notificationColumns)
	var n models.Notification
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListForUser returns the union of the user's personal notifications and all
// broadcasts, newest first, optionally limited to unread ones.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE (user_id = $1 OR is_broadcast = TRUE)`, notificationColumns)
	if unreadOnly {
		query += " AND is_read = FALSE"
	}
	query += " ORDER BY created_at DESC"

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, userID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// UnreadCount counts the user's unread personal notifications plus every
// unread broadcast. Broadcasts have no per-user read state, so the broadcast
// part is global.
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE)
      + (SELECT COUNT(*) FROM notifications WHERE is_broadcast = TRUE AND is_read = FALSE)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flips is_read and stamps read_at. The is_read guard makes the
// operation idempotent: a second call affects zero rows and keeps the
// original read_at.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string, readAt time.Time) (bool, error) {
	const query = `UPDATE notifications SET is_read = TRUE, read_at = $2 WHERE id = $1 AND is_read = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, readAt)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return affected > 0, nil
}

// ListActiveObservers resolves the fan-out recipient set: active observers of
// the event type scoped to the given session, or the general (session-less)
// subscribers when sessionID is nil.
func (r *NotificationRepository) ListActiveObservers(ctx context.Context, eventType models.NotificationType, sessionID *string) ([]models.NotificationObserver, error) {
	query := `SELECT id, user_id, event_type, session_id, is_active, created_at
        FROM notification_observers WHERE event_type = $1 AND is_active = TRUE`
	args := []interface{}{eventType}
	if sessionID != nil {
		query += " AND session_id = $2"
		args = append(args, *sessionID)
	} else {
		query += " AND session_id IS NULL"
	}

	var observers []models.NotificationObserver
	if err := r.db.SelectContext(ctx, &observers, query, args...); err != nil {
		return nil, fmt.Errorf("list observers: %w", err)
	}
	return observers, nil
}

// GetOrCreateObserver returns the observer for the unique triple, creating an
// active one when missing. An existing inactive row is returned as-is.
func (r *NotificationRepository) GetOrCreateObserver(ctx context.Context, userID string, eventType models.NotificationType, sessionID *string) (*models.NotificationObserver, error) {
	const insertQuery = `INSERT INTO notification_observers (id, user_id, event_type, session_id, is_active, created_at)
        VALUES ($1, $2, $3, $4, TRUE, $5)
        ON CONFLICT (user_id, event_type, session_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insertQuery, uuid.NewString(), userID, eventType, sessionID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("create observer: %w", err)
	}

	query := `SELECT id, user_id, event_type, session_id, is_active, created_at
        FROM notification_observers WHERE user_id = $1 AND event_type = $2`
	args := []interface{}{userID, eventType}
	if sessionID != nil {
		query += " AND session_id = $3"
		args = append(args, *sessionID)
	} else {
		query += " AND session_id IS NULL"
	}
	var observer models.NotificationObserver
	if err := r.db.GetContext(ctx, &observer, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("load observer: %w", err)
	}
	return &observer, nil
}

// DeactivateObserver soft-deletes matching subscriptions.
func (r *NotificationRepository) DeactivateObserver(ctx context.Context, userID string, eventType models.NotificationType, sessionID *string) error {
	query := `UPDATE notification_observers SET is_active = FALSE WHERE user_id = $1 AND event_type = $2`
	args := []interface{}{userID, eventType}
	if sessionID != nil {
		query += " AND session_id = $3"
		args = append(args, *sessionID)
	} else {
		query += " AND session_id IS NULL"
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deactivate observer: %w", err)
	}
	return nil
}
