package models

import "time"

// Student is the student profile linked one-to-one to a user account.
type Student struct {
	ID           string     `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	StudentCode  string     `db:"student_code" json:"student_code"`
	FullName     string     `db:"full_name" json:"full_name"`
	Email        string     `db:"email" json:"email"`
	Phone        string     `db:"phone" json:"phone"`
	Major        string     `db:"major" json:"major"`
	DOB          *time.Time `db:"dob" json:"dob,omitempty"`
	SpecialNeeds string     `db:"special_needs" json:"special_needs,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}
