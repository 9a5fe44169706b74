package models

import "time"

// Feedback is a student's rating of an enrollment, one per enrollment.
type Feedback struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	Rating       int       `db:"rating" json:"rating"`
	Comment      string    `db:"comment" json:"comment,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// DeliveryMode is how a requested session should be held.
type DeliveryMode string

const (
	DeliveryModeOnline  DeliveryMode = "online"
	DeliveryModeOffline DeliveryMode = "offline"
	DeliveryModeHybrid  DeliveryMode = "hybrid"
)

// SessionRequest is a student's ask for a new tutoring session.
type SessionRequest struct {
	ID           string       `db:"id" json:"id"`
	StudentID    string       `db:"student_id" json:"student_id"`
	Subject      string       `db:"subject" json:"subject"`
	DeliveryMode DeliveryMode `db:"delivery_mode" json:"delivery_mode"`
	Date         time.Time    `db:"date" json:"date"`
	StartTime    string       `db:"start_time" json:"start_time"`
	EndTime      string       `db:"end_time" json:"end_time"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// ReportStatus is the handling state of a technical report.
type ReportStatus string

const (
	ReportStatusPending    ReportStatus = "pending"
	ReportStatusInProgress ReportStatus = "in_progress"
	ReportStatusResolved   ReportStatus = "resolved"
	ReportStatusClosed     ReportStatus = "closed"
)

// ReportPriority ranks technical reports.
type ReportPriority string

const (
	ReportPriorityLow    ReportPriority = "low"
	ReportPriorityMedium ReportPriority = "medium"
	ReportPriorityHigh   ReportPriority = "high"
)

// TechnicalReport is a user-filed issue with the platform.
type TechnicalReport struct {
	ID          string         `db:"id" json:"id"`
	ReporterID  string         `db:"reporter_id" json:"reporter_id"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	Priority    ReportPriority `db:"priority" json:"priority"`
	Status      ReportStatus   `db:"status" json:"status"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}
