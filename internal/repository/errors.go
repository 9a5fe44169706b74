package repository

import "errors"

// Sentinel errors returned by ledger transactions. Services translate these
// into the HTTP-aware taxonomy in pkg/errors.
var (
	ErrSessionFull       = errors.New("session has reached capacity")
	ErrAlreadyEnrolled   = errors.New("active enrollment already exists")
	ErrSubjectMismatch   = errors.New("sessions cover different subjects")
	ErrTutorMismatch     = errors.New("sessions have different tutors")
	ErrInvalidTransition = errors.New("session status does not allow the operation")
)
