package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
)

func TestCancelWithEnrollmentsReleasesRoster(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSessionPattern).
		WithArgs("sess-1").
		WillReturnRows(sessionRow("sess-1", "subj-1", "tut-1", 15, 5, models.SessionStatusScheduled))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE enrollments e SET is_active = FALSE")).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).
			AddRow("user-1").AddRow("user-2").AddRow("user-3").AddRow("user-4").AddRow("user-5"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET status = $2, enrolled_count = 0 WHERE id = $1")).
		WithArgs("sess-1", models.SessionStatusCancelled).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	affected, err := repo.CancelWithEnrollments(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1", "user-2", "user-3", "user-4", "user-5"}, affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelWithEnrollmentsRejectsCompletedSession(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSessionPattern).
		WithArgs("sess-1").
		WillReturnRows(sessionRow("sess-1", "subj-1", "tut-1", 15, 0, models.SessionStatusCompleted))
	mock.ExpectRollback()

	_, err := repo.CancelWithEnrollments(context.Background(), "sess-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelWithEnrollmentsUnknownSession(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSessionPattern).
		WithArgs("sess-missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.CancelWithEnrollments(context.Background(), "sess-missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
