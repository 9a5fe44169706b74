package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
)

func newNotificationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestNotificationRepositoryListForUserIncludesBroadcasts(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "type", "title", "message", "session_id", "related_object_id", "related_object_type", "is_read", "is_broadcast", "action_url", "created_at", "read_at"}).
		AddRow("n-1", "user-1", models.NotificationSessionConfirmed, "a", "b", nil, nil, nil, false, false, "", time.Now(), nil).
		AddRow("n-2", nil, models.NotificationAnnouncement, "c", "d", nil, nil, nil, false, true, "", time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE (user_id = $1 OR is_broadcast = TRUE) ORDER BY created_at DESC")).
		WithArgs("user-1").
		WillReturnRows(rows)

	notifications, err := repo.ListForUser(context.Background(), "user-1", false)
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	assert.True(t, notifications[1].IsBroadcast)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryUnreadCountSumsPersonalAndBroadcast(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("(SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE)")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(5))

	count, err := repo.UnreadCount(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkReadGuardsOnUnread(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	readAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET is_read = TRUE, read_at = $2 WHERE id = $1 AND is_read = FALSE")).
		WithArgs("n-1", readAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := repo.MarkRead(context.Background(), "n-1", readAt)
	require.NoError(t, err)
	assert.True(t, changed)

	// An already-read notification affects zero rows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET is_read = TRUE, read_at = $2 WHERE id = $1 AND is_read = FALSE")).
		WithArgs("n-1", readAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err = repo.MarkRead(context.Background(), "n-1", readAt)
	require.NoError(t, err)
	assert.False(t, changed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveObserversScopesToSession(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	sessionID := "sess-1"
	rows := sqlmock.NewRows([]string{"id", "user_id", "event_type", "session_id", "is_active", "created_at"}).
		AddRow("obs-1", "user-1", models.NotificationSessionCancelled, sessionID, true, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE event_type = $1 AND is_active = TRUE AND session_id = $2")).
		WithArgs(models.NotificationSessionCancelled, "sess-1").
		WillReturnRows(rows)

	observers, err := repo.ListActiveObservers(context.Background(), models.NotificationSessionCancelled, &sessionID)
	require.NoError(t, err)
	require.Len(t, observers, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveObserversGeneralUsesNullScope(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE event_type = $1 AND is_active = TRUE AND session_id IS NULL")).
		WithArgs(models.NotificationTechnicalReport).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "event_type", "session_id", "is_active", "created_at"}))

	observers, err := repo.ListActiveObservers(context.Background(), models.NotificationTechnicalReport, nil)
	require.NoError(t, err)
	assert.Empty(t, observers)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateObserverReturnsExistingRow(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id, event_type, session_id) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), "user-1", models.NotificationAnnouncement, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"id", "user_id", "event_type", "session_id", "is_active", "created_at"}).
		AddRow("obs-old", "user-1", models.NotificationAnnouncement, nil, false, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND event_type = $2 AND session_id IS NULL")).
		WithArgs("user-1", models.NotificationAnnouncement).
		WillReturnRows(rows)

	observer, err := repo.GetOrCreateObserver(context.Background(), "user-1", models.NotificationAnnouncement, nil)
	require.NoError(t, err)
	assert.Equal(t, "obs-old", observer.ID)
	// The existing row comes back as-is, reactivation is not implied.
	assert.False(t, observer.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}
