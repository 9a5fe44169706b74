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

// EnrollmentRepository owns the enrollment ledger: enrollment rows plus the
// denormalised per-session counters. Every capacity-affecting operation runs
// inside a transaction that re-reads the session row under a write lock and
// validates against the fresh state, so concurrent requests cannot lose
// counter updates.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, session_id, enrolled_at, is_active FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListActiveByStudent returns the student's active enrollments with session context.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.session_id, e.enrolled_at, e.is_active,
        s.class_code, sub.name AS subject_name, t.full_name AS tutor_name,
        s.days, s.start_time, s.end_time, s.status
        FROM enrollments e
        JOIN sessions s ON s.id = e.session_id
        LEFT JOIN subjects sub ON sub.id = s.subject_id
        LEFT JOIN tutors t ON t.id = s.tutor_id
        WHERE e.student_id = $1 AND e.is_active = TRUE
        ORDER BY e.enrolled_at DESC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// RosterRow is one line of a session roster.
type RosterRow struct {
	StudentCode string    `db:"student_code"`
	FullName    string    `db:"full_name"`
	Email       string    `db:"email"`
	EnrolledAt  time.Time `db:"enrolled_at"`
}

// ListRosterBySession returns the active roster for a session ordered by name.
func (r *EnrollmentRepository) ListRosterBySession(ctx context.Context, sessionID string) ([]RosterRow, error) {
	const query = `SELECT st.student_code, st.full_name, st.email, e.enrolled_at
        FROM enrollments e
        JOIN students st ON st.id = e.student_id
        WHERE e.session_id = $1 AND e.is_active = TRUE
        ORDER BY st.full_name ASC`
	var rows []RosterRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session roster: %w", err)
	}
	return rows, nil
}

// ListActiveUserIDsBySession returns the account IDs behind a session's
// active enrollments, used for completion notices.
func (r *EnrollmentRepository) ListActiveUserIDsBySession(ctx context.Context, sessionID string) ([]string, error) {
	const query = `SELECT st.user_id
        FROM enrollments e
        JOIN students st ON st.id = e.student_id
        WHERE e.session_id = $1 AND e.is_active = TRUE`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session user ids: %w", err)
	}
	return ids, nil
}

// Enroll creates an active enrollment and increments the session counter in
// one transaction. The session row is locked and re-validated first.
func (r *EnrollmentRepository) Enroll(ctx context.Context, studentID, sessionID string) (enrollment *models.Enrollment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enroll: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	session, err := lockSession(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusScheduled {
		err = ErrInvalidTransition
		return nil, err
	}
	if session.EnrolledCount >= session.Capacity {
		err = ErrSessionFull
		return nil, err
	}

	var exists int
	const existsQuery = `SELECT 1 FROM enrollments WHERE student_id = $1 AND session_id = $2 AND is_active = TRUE LIMIT 1`
	if err = tx.GetContext(ctx, &exists, existsQuery, studentID, sessionID); err == nil {
		err = ErrAlreadyEnrolled
		return nil, err
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}

	enrollment = &models.Enrollment{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		SessionID:  sessionID,
		EnrolledAt: time.Now().UTC(),
		IsActive:   true,
	}
	const insertQuery = `INSERT INTO enrollments (id, student_id, session_id, enrolled_at, is_active)
        VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.ExecContext(ctx, insertQuery, enrollment.ID, enrollment.StudentID, enrollment.SessionID, enrollment.EnrolledAt, enrollment.IsActive); err != nil {
		return nil, fmt.Errorf("create enrollment: %w", err)
	}

	const countQuery = `UPDATE sessions SET enrolled_count = enrolled_count + 1 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, countQuery, sessionID); err != nil {
		return nil, fmt.Errorf("increment enrolled count: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enroll: %w", err)
	}
	return enrollment, nil
}

// Cancel removes the student's enrollment row and decrements the session
// counter, floored at zero, in one transaction.
func (r *EnrollmentRepository) Cancel(ctx context.Context, enrollmentID, studentID string) (session *models.Session, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cancel: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var enrollment models.Enrollment
	const findQuery = `SELECT id, student_id, session_id, enrolled_at, is_active
        FROM enrollments WHERE id = $1 AND student_id = $2`
	if err = tx.GetContext(ctx, &enrollment, findQuery, enrollmentID, studentID); err != nil {
		return nil, err
	}

	if _, err = lockSession(ctx, tx, enrollment.SessionID); err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, enrollmentID); err != nil {
		return nil, fmt.Errorf("delete enrollment: %w", err)
	}

	const countQuery = `UPDATE sessions SET enrolled_count = GREATEST(enrolled_count - 1, 0) WHERE id = $1`
	if _, err = tx.ExecContext(ctx, countQuery, enrollment.SessionID); err != nil {
		return nil, fmt.Errorf("decrement enrolled count: %w", err)
	}

	session = &models.Session{}
	refetch := fmt.Sprintf("SELECT %s FROM sessions WHERE id = $1", sessionColumns)
	if err = tx.GetContext(ctx, session, refetch, enrollment.SessionID); err != nil {
		return nil, fmt.Errorf("reload session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}
	return session, nil
}

// Reschedule moves an enrollment to a target session with the same subject
// and tutor. Both session rows are locked in ID order, validated, and the
// counter moves and the enrollment repoint commit together.
func (r *EnrollmentRepository) Reschedule(ctx context.Context, enrollmentID, studentID, targetSessionID string) (enrollment *models.Enrollment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reschedule: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	found := &models.Enrollment{}
	const findQuery = `SELECT id, student_id, session_id, enrolled_at, is_active
        FROM enrollments WHERE id = $1 AND student_id = $2 AND is_active = TRUE`
	if err = tx.GetContext(ctx, found, findQuery, enrollmentID, studentID); err != nil {
		return nil, err
	}
	if found.SessionID == targetSessionID {
		err = ErrAlreadyEnrolled
		return nil, err
	}

	// Lock both sessions in a stable order to avoid deadlocks between
	// opposite-direction reschedules.
	firstID, secondID := found.SessionID, targetSessionID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	first, err := lockSession(ctx, tx, firstID)
	if err != nil {
		return nil, err
	}
	second, err := lockSession(ctx, tx, secondID)
	if err != nil {
		return nil, err
	}
	current, target := first, second
	if current.ID != found.SessionID {
		current, target = second, first
	}

	if target.SubjectID != current.SubjectID {
		err = ErrSubjectMismatch
		return nil, err
	}
	if target.TutorID != current.TutorID {
		err = ErrTutorMismatch
		return nil, err
	}
	if target.EnrolledCount >= target.Capacity {
		err = ErrSessionFull
		return nil, err
	}
	// Only ongoing sessions may be rescheduled away from.
	if current.Status != models.SessionStatusOngoing {
		err = ErrInvalidTransition
		return nil, err
	}

	var exists int
	const existsQuery = `SELECT 1 FROM enrollments WHERE student_id = $1 AND session_id = $2 AND is_active = TRUE LIMIT 1`
	if err = tx.GetContext(ctx, &exists, existsQuery, studentID, targetSessionID); err == nil {
		err = ErrAlreadyEnrolled
		return nil, err
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check target enrollment: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE sessions SET enrolled_count = GREATEST(enrolled_count - 1, 0) WHERE id = $1`, current.ID); err != nil {
		return nil, fmt.Errorf("decrement source count: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE sessions SET enrolled_count = enrolled_count + 1 WHERE id = $1`, target.ID); err != nil {
		return nil, fmt.Errorf("increment target count: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE enrollments SET session_id = $2 WHERE id = $1`, enrollmentID, target.ID); err != nil {
		return nil, fmt.Errorf("repoint enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reschedule: %w", err)
	}
	found.SessionID = target.ID
	return found, nil
}

func lockSession(ctx context.Context, tx *sqlx.Tx, id string) (*models.Session, error) {
	var session models.Session
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE id = $1 FOR UPDATE", sessionColumns)
	if err := tx.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("lock session: %w", err)
	}
	return &session, nil
}
