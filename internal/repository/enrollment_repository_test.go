package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
)

func newLedgerMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sessionRow(id, subjectID, tutorID string, capacity, enrolled int, status models.SessionStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "class_code", "subject_id", "tutor_id", "days", "start_time", "end_time", "capacity", "enrolled_count", "status", "created_at"}).
		AddRow(id, "CALC-01", subjectID, tutorID, "2-4", "09:00", "11:00", capacity, enrolled, status, time.Now())
}

const lockSessionPattern = `SELECT id, class_code, subject_id, tutor_id, days, start_time, end_time, capacity, enrolled_count, status, created_at FROM sessions WHERE id = \$1 FOR UPDATE`

func TestEnrollClaimsSeatAtomically(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSessionPattern).
		WithArgs("sess-1").
		WillReturnRows(sessionRow("sess-1", "subj-1", "tut-1", 15, 10, models.SessionStatusScheduled))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND session_id = $2 AND is_active = TRUE LIMIT 1")).
		WithArgs("stu-1", "sess-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "sess-1", sqlmock.AnyArg(), true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET enrolled_count = enrolled_count + 1 WHERE id = $1")).
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment, err := repo.Enroll(context.Background(), "stu-1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", enrollment.StudentID)
	assert.Equal(t, "sess-1", enrollment.SessionID)
	assert.True(t, enrollment.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollRejectsFullSession(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSessionPattern).
		WithArgs("sess-1").
		WillReturnRows(sessionRow("sess-1", "subj-1", "tut-1", 15, 15, models.SessionStatusScheduled))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "stu-1", "sess-1")
	require.ErrorIs(t, err, ErrSessionFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollRejectsNonScheduledSession(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSessionPattern).
		WithArgs("sess-1").
		WillReturnRows(sessionRow("sess-1", "subj-1", "tut-1", 15, 3, models.SessionStatusOngoing))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "stu-1", "sess-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollRejectsDuplicate(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSessionPattern).
		WithArgs("sess-1").
		WillReturnRows(sessionRow("sess-1", "subj-1", "tut-1", 15, 3, models.SessionStatusScheduled))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND session_id = $2 AND is_active = TRUE LIMIT 1")).
		WithArgs("stu-1", "sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "stu-1", "sess-1")
	require.ErrorIs(t, err, ErrAlreadyEnrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelDeletesRowAndFloorsCounter(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, session_id, enrolled_at, is_active")).
		WithArgs("enr-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "session_id", "enrolled_at", "is_active"}).
			AddRow("enr-1", "stu-1", "sess-1", time.Now(), true))
	mock.ExpectQuery(lockSessionPattern).
		WithArgs("sess-1").
		WillReturnRows(sessionRow("sess-1", "subj-1", "tut-1", 15, 1, models.SessionStatusScheduled))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE id = $1")).
		WithArgs("enr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET enrolled_count = GREATEST(enrolled_count - 1, 0) WHERE id = $1")).
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, class_code, subject_id, tutor_id, days, start_time, end_time, capacity, enrolled_count, status, created_at FROM sessions WHERE id = $1")).
		WithArgs("sess-1").
		WillReturnRows(sessionRow("sess-1", "subj-1", "tut-1", 15, 0, models.SessionStatusScheduled))
	mock.ExpectCommit()

	session, err := repo.Cancel(context.Background(), "enr-1", "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 0, session.EnrolledCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelUnknownEnrollment(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, session_id, enrolled_at, is_active")).
		WithArgs("enr-missing", "stu-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Cancel(context.Background(), "enr-missing", "stu-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleMovesSeatBetweenSessions(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, session_id, enrolled_at, is_active")).
		WithArgs("enr-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "session_id", "enrolled_at", "is_active"}).
			AddRow("enr-1", "stu-1", "sess-a", time.Now(), true))
	// Sessions lock in ID order, source first here.
	mock.ExpectQuery(lockSessionPattern).
		WithArgs("sess-a").
		WillReturnRows(sessionRow("sess-a", "subj-1", "tut-1", 15, 10, models.SessionStatusOngoing))
	mock.ExpectQuery(lockSessionPattern).
		WithArgs("sess-b").
		WillReturnRows(sessionRow("sess-b", "subj-1", "tut-1", 16, 8, models.SessionStatusScheduled))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND session_id = $2 AND is_active = TRUE LIMIT 1")).
		WithArgs("stu-1", "sess-b").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET enrolled_count = GREATEST(enrolled_count - 1, 0) WHERE id = $1")).
		WithArgs("sess-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET enrolled_count = enrolled_count + 1 WHERE id = $1")).
		WithArgs("sess-b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET session_id = $2 WHERE id = $1")).
		WithArgs("enr-1", "sess-b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment, err := repo.Reschedule(context.Background(), "enr-1", "stu-1", "sess-b")
	require.NoError(t, err)
	assert.Equal(t, "sess-b", enrollment.SessionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleRejectsSubjectMismatch(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, session_id, enrolled_at, is_active")).
		WithArgs("enr-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "session_id", "enrolled_at", "is_active"}).
			AddRow("enr-1", "stu-1", "sess-a", time.Now(), true))
	mock.ExpectQuery(lockSessionPattern).
		WithArgs("sess-a").
		WillReturnRows(sessionRow("sess-a", "subj-1", "tut-1", 15, 10, models.SessionStatusOngoing))
	mock.ExpectQuery(lockSessionPattern).
		WithArgs("sess-b").
		WillReturnRows(sessionRow("sess-b", "subj-other", "tut-1", 16, 8, models.SessionStatusScheduled))
	mock.ExpectRollback()

	_, err := repo.Reschedule(context.Background(), "enr-1", "stu-1", "sess-b")
	require.ErrorIs(t, err, ErrSubjectMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleRejectsTutorMismatch(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, session_id, enrolled_at, is_active")).
		WithArgs("enr-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "session_id", "enrolled_at", "is_active"}).
			AddRow("enr-1", "stu-1", "sess-a", time.Now(), true))
	mock.ExpectQuery(lockSessionPattern).
		WithArgs("sess-a").
		WillReturnRows(sessionRow("sess-a", "subj-1", "tut-1", 15, 10, models.SessionStatusOngoing))
	mock.ExpectQuery(lockSessionPattern).
		WithArgs("sess-b").
		WillReturnRows(sessionRow("sess-b", "subj-1", "tut-other", 16, 8, models.SessionStatusScheduled))
	mock.ExpectRollback()

	_, err := repo.Reschedule(context.Background(), "enr-1", "stu-1", "sess-b")
	require.ErrorIs(t, err, ErrTutorMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleRequiresOngoingSource(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, session_id, enrolled_at, is_active")).
		WithArgs("enr-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "session_id", "enrolled_at", "is_active"}).
			AddRow("enr-1", "stu-1", "sess-a", time.Now(), true))
	mock.ExpectQuery(lockSessionPattern).
		WithArgs("sess-a").
		WillReturnRows(sessionRow("sess-a", "subj-1", "tut-1", 15, 10, models.SessionStatusScheduled))
	mock.ExpectQuery(lockSessionPattern).
		WithArgs("sess-b").
		WillReturnRows(sessionRow("sess-b", "subj-1", "tut-1", 16, 8, models.SessionStatusScheduled))
	mock.ExpectRollback()

	_, err := repo.Reschedule(context.Background(), "enr-1", "stu-1", "sess-b")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleRejectsSameSession(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, session_id, enrolled_at, is_active")).
		WithArgs("enr-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "session_id", "enrolled_at", "is_active"}).
			AddRow("enr-1", "stu-1", "sess-a", time.Now(), true))
	mock.ExpectRollback()

	_, err := repo.Reschedule(context.Background(), "enr-1", "stu-1", "sess-a")
	require.ErrorIs(t, err, ErrAlreadyEnrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}
