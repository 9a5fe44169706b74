package models

import "time"

// Tutor is the tutor profile linked one-to-one to a user account.
type Tutor struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	TutorCode string     `db:"tutor_code" json:"tutor_code"`
	FullName  string     `db:"full_name" json:"full_name"`
	Email     string     `db:"email" json:"email"`
	Phone     string     `db:"phone" json:"phone"`
	Major     string     `db:"major" json:"major"`
	DOB       *time.Time `db:"dob" json:"dob,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// TutorExpertise links a tutor to a subject they can teach.
type TutorExpertise struct {
	TutorID   string `db:"tutor_id" json:"tutor_id"`
	SubjectID string `db:"subject_id" json:"subject_id"`
}
