package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
)

const sessionColumns = `id, class_code, subject_id, tutor_id, days, start_time, end_time, capacity, enrolled_count, status, created_at`

// SessionRepository handles persistence of tutoring sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// List returns sessions filtered by the provided criteria.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.SessionDetail, int, error) {
	base := `FROM sessions s
LEFT JOIN subjects sub ON sub.id = s.subject_id
LEFT JOIN tutors t ON t.id = s.tutor_id`
	var conditions []string
	var args []interface{}

	if filter.TutorID != "" {
		conditions = append(conditions, fmt.Sprintf("s.tutor_id = $%d", len(args)+1))
		args = append(args, filter.TutorID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("s.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(s.class_code ILIKE $%d OR sub.name ILIKE $%d OR sub.code ILIKE $%d OR t.full_name ILIKE $%d)",
			len(args)+1, len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.class_code, s.subject_id, s.tutor_id, s.days, s.start_time, s.end_time,
        s.capacity, s.enrolled_count, s.status, s.created_at,
        sub.code AS subject_code, sub.name AS subject_name, t.full_name AS tutor_name
        %s ORDER BY s.class_code ASC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var sessions []models.SessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// ListAvailableForStudent returns scheduled sessions with free seats that the
// student is not already actively enrolled in.
func (r *SessionRepository) ListAvailableForStudent(ctx context.Context, studentID, search string) ([]models.SessionDetail, error) {
	query := `SELECT s.id, s.class_code, s.subject_id, s.tutor_id, s.days, s.start_time, s.end_time,
        s.capacity, s.enrolled_count, s.status, s.created_at,
        sub.code AS subject_code, sub.name AS subject_name, t.full_name AS tutor_name
        FROM sessions s
        LEFT JOIN subjects sub ON sub.id = s.subject_id
        LEFT JOIN tutors t ON t.id = s.tutor_id
        WHERE s.status = $1
          AND s.enrolled_count < s.capacity
          AND s.id NOT IN (SELECT session_id FROM enrollments WHERE student_id = $2 AND is_active = TRUE)`
	args := []interface{}{models.SessionStatusScheduled, studentID}
	if search != "" {
		query += " AND (s.class_code ILIKE $3 OR sub.name ILIKE $3 OR sub.code ILIKE $3 OR t.full_name ILIKE $3)"
		args = append(args, "%"+search+"%")
	}
	query += " ORDER BY s.class_code ASC"

	var sessions []models.SessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list available sessions: %w", err)
	}
	return sessions, nil
}

// ListReschedulableTargets returns sessions the enrollment could move to:
// same subject, same tutor, free seats, not the current session.
func (r *SessionRepository) ListReschedulableTargets(ctx context.Context, current *models.Session) ([]models.SessionDetail, error) {
	const query = `SELECT s.id, s.class_code, s.subject_id, s.tutor_id, s.days, s.start_time, s.end_time,
        s.capacity, s.enrolled_count, s.status, s.created_at,
        sub.code AS subject_code, sub.name AS subject_name, t.full_name AS tutor_name
        FROM sessions s
        LEFT JOIN subjects sub ON sub.id = s.subject_id
        LEFT JOIN tutors t ON t.id = s.tutor_id
        WHERE s.subject_id = $1 AND s.tutor_id = $2 AND s.id <> $3
          AND s.status IN ($4, $5) AND s.enrolled_count < s.capacity
        ORDER BY s.class_code ASC`
	var sessions []models.SessionDetail
	err := r.db.SelectContext(ctx, &sessions, query,
		current.SubjectID, current.TutorID, current.ID,
		models.SessionStatusScheduled, models.SessionStatusOngoing)
	if err != nil {
		return nil, fmt.Errorf("list reschedule targets: %w", err)
	}
	return sessions, nil
}

// FindByID returns a session by its ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE id = $1", sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindDetailByID returns a session with subject and tutor context.
func (r *SessionRepository) FindDetailByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	const query = `SELECT s.id, s.class_code, s.subject_id, s.tutor_id, s.days, s.start_time, s.end_time,
        s.capacity, s.enrolled_count, s.status, s.created_at,
        sub.code AS subject_code, sub.name AS subject_name, t.full_name AS tutor_name
        FROM sessions s
        LEFT JOIN subjects sub ON sub.id = s.subject_id
        LEFT JOIN tutors t ON t.id = s.tutor_id
        WHERE s.id = $1`
	var detail models.SessionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create persists a new session record.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}
	const query = `INSERT INTO sessions (id, class_code, subject_id, tutor_id, days, start_time, end_time, capacity, enrolled_count, status, created_at)
        VALUES (:id, :class_code, :subject_id, :tutor_id, :days, :start_time, :end_time, :capacity, :enrolled_count, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateSchedule changes days and time window for a session still open to
// schedule changes (scheduled or ongoing).
func (r *SessionRepository) UpdateSchedule(ctx context.Context, id, days, startTime, endTime string) error {
	const query = `UPDATE sessions SET days = $2, start_time = $3, end_time = $4
        WHERE id = $1 AND status IN ($5, $6)`
	res, err := r.db.ExecContext(ctx, query, id, days, startTime, endTime,
		models.SessionStatusScheduled, models.SessionStatusOngoing)
	if err != nil {
		return fmt.Errorf("update session schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session schedule: %w", err)
	}
	if affected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// Transition moves a session from one status to another. The guard on the
// current status enforces the one-directional state machine.
func (r *SessionRepository) Transition(ctx context.Context, id string, from, to models.SessionStatus) error {
	const query = `UPDATE sessions SET status = $3 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("transition session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition session: %w", err)
	}
	if affected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// CancelWithEnrollments cancels a session and releases every active
// enrollment in one transaction. It returns the user IDs of the affected
// students so the caller can notify them.
func (r *SessionRepository) CancelWithEnrollments(ctx context.Context, sessionID string) (affected []string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin session cancel: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var session models.Session
	lockQuery := fmt.Sprintf("SELECT %s FROM sessions WHERE id = $1 FOR UPDATE", sessionColumns)
	if err = tx.GetContext(ctx, &session, lockQuery, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("lock session: %w", err)
	}
	if session.Status != models.SessionStatusScheduled && session.Status != models.SessionStatusOngoing {
		err = ErrInvalidTransition
		return nil, err
	}

	const releaseQuery = `UPDATE enrollments e SET is_active = FALSE
        FROM students st
        WHERE e.session_id = $1 AND e.is_active = TRUE AND st.id = e.student_id
        RETURNING st.user_id`
	if err = tx.SelectContext(ctx, &affected, releaseQuery, sessionID); err != nil {
		return nil, fmt.Errorf("release enrollments: %w", err)
	}

	const cancelQuery = `UPDATE sessions SET status = $2, enrolled_count = 0 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, cancelQuery, sessionID, models.SessionStatusCancelled); err != nil {
		return nil, fmt.Errorf("cancel session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit session cancel: %w", err)
	}
	return affected, nil
}
