package models

import "time"

// NotificationType enumerates the events the fan-out service handles.
type NotificationType string

const (
	NotificationSessionRequest   NotificationType = "session_request"
	NotificationSessionConfirmed NotificationType = "session_confirmed"
	NotificationSessionCancelled NotificationType = "session_cancelled"
	NotificationSessionCompleted NotificationType = "session_completed"
	NotificationAnnouncement     NotificationType = "announcement"
	NotificationFeedbackReceived NotificationType = "feedback_received"
	NotificationTechnicalReport  NotificationType = "technical_report"
)

// Notification is a message to one user or, when UserID is nil, a broadcast
// to all users. Broadcasts carry no per-recipient read state.
type Notification struct {
	ID                string           `db:"id" json:"id"`
	UserID            *string          `db:"user_id" json:"user_id,omitempty"`
	Type              NotificationType `db:"type" json:"type"`
	Title             string           `db:"title" json:"title"`
	Message           string           `db:"message" json:"message"`
	SessionID         *string          `db:"session_id" json:"session_id,omitempty"`
	RelatedObjectID   *string          `db:"related_object_id" json:"related_object_id,omitempty"`
	RelatedObjectType *string          `db:"related_object_type" json:"related_object_type,omitempty"`
	IsRead            bool             `db:"is_read" json:"is_read"`
	IsBroadcast       bool             `db:"is_broadcast" json:"is_broadcast"`
	ActionURL         string           `db:"action_url" json:"action_url,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	ReadAt            *time.Time       `db:"read_at" json:"read_at,omitempty"`
}

// NotificationObserver is a persisted subscription of a user to an event
// type, optionally scoped to one session. Unique on (user, event, session).
type NotificationObserver struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	EventType NotificationType `db:"event_type" json:"event_type"`
	SessionID *string          `db:"session_id" json:"session_id,omitempty"`
	IsActive  bool             `db:"is_active" json:"is_active"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
