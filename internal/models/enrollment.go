package models

import "time"

// Enrollment links a student to a session. The (student_id, session_id) pair
// is unique; IsActive is false for enrollments released by a tutor-side
// session cancellation. Student-side cancellations delete the row outright.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	SessionID  string    `db:"session_id" json:"session_id"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
	IsActive   bool      `db:"is_active" json:"is_active"`
}

// EnrollmentDetail enriches Enrollment with session context for listings.
type EnrollmentDetail struct {
	Enrollment
	ClassCode   string        `db:"class_code" json:"class_code"`
	SubjectName string        `db:"subject_name" json:"subject_name"`
	TutorName   string        `db:"tutor_name" json:"tutor_name"`
	Days        string        `db:"days" json:"days"`
	StartTime   string        `db:"start_time" json:"start_time"`
	EndTime     string        `db:"end_time" json:"end_time"`
	Status      SessionStatus `db:"status" json:"status"`
}
