package models

import "time"

// SessionStatus is the lifecycle state of a tutoring session. Transitions are
// one-directional: scheduled -> ongoing|cancelled, ongoing -> completed|cancelled.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusOngoing   SessionStatus = "ongoing"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// CanTransitionTo reports whether the status may move to the target state.
func (s SessionStatus) CanTransitionTo(target SessionStatus) bool {
	switch s {
	case SessionStatusScheduled:
		return target == SessionStatusOngoing || target == SessionStatusCancelled
	case SessionStatusOngoing:
		return target == SessionStatusCompleted || target == SessionStatusCancelled
	default:
		return false
	}
}

// Subject is a course subject sessions are held for.
type Subject struct {
	ID   string `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// Session is a recurring tutoring class offering. Days holds dash-separated
// weekday ordinals, e.g. "2-3-4". EnrolledCount is a denormalised counter kept
// consistent with enrollment rows by the ledger transactions.
type Session struct {
	ID            string        `db:"id" json:"id"`
	ClassCode     string        `db:"class_code" json:"class_code"`
	SubjectID     string        `db:"subject_id" json:"subject_id"`
	TutorID       string        `db:"tutor_id" json:"tutor_id"`
	Days          string        `db:"days" json:"days"`
	StartTime     string        `db:"start_time" json:"start_time"`
	EndTime       string        `db:"end_time" json:"end_time"`
	Capacity      int           `db:"capacity" json:"capacity"`
	EnrolledCount int           `db:"enrolled_count" json:"enrolled_count"`
	Status        SessionStatus `db:"status" json:"status"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// SessionDetail enriches Session with subject and tutor info.
type SessionDetail struct {
	Session
	SubjectCode   string `db:"subject_code" json:"subject_code"`
	SubjectName   string `db:"subject_name" json:"subject_name"`
	TutorName     string `db:"tutor_name" json:"tutor_name"`
	FeedbackCount int    `db:"feedback_count" json:"feedback_count,omitempty"`
}

// SessionFilter provides filters for listing sessions.
type SessionFilter struct {
	TutorID   string
	SubjectID string
	Status    SessionStatus
	Search    string
	Page      int
	PageSize  int
}
