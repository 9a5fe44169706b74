package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
)

type mockNotificationRepo struct {
	notifications map[string]models.Notification
	observers     []models.NotificationObserver
	created       []models.Notification
	nextID        int
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	if m.notifications == nil {
		m.notifications = make(map[string]models.Notification)
	}
	m.nextID++
	n.ID = fmt.Sprintf("notif-%d", m.nextID)
	m.notifications[n.ID] = *n
	m.created = append(m.created, *n)
	return nil
}

func (m *mockNotificationRepo) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	if n, ok := m.notifications[id]; ok {
		return &n, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockNotificationRepo) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	var list []models.Notification
	for _, n := range m.notifications {
		personal := n.UserID != nil && *n.UserID == userID
		if !personal && !n.IsBroadcast {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		list = append(list, n)
	}
	return list, nil
}

func (m *mockNotificationRepo) UnreadCount(ctx context.Context, userID string) (int, error) {
	count := 0
	for _, n := range m.notifications {
		if n.IsRead {
			continue
		}
		if n.IsBroadcast || (n.UserID != nil && *n.UserID == userID) {
			count++
		}
	}
	return count, nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id string, readAt time.Time) (bool, error) {
	n, ok := m.notifications[id]
	if !ok || n.IsRead {
		return false, nil
	}
	n.IsRead = true
	n.ReadAt = &readAt
	m.notifications[id] = n
	return true, nil
}

func (m *mockNotificationRepo) ListActiveObservers(ctx context.Context, eventType models.NotificationType, sessionID *string) ([]models.NotificationObserver, error) {
	var matched []models.NotificationObserver
	for _, o := range m.observers {
		if !o.IsActive || o.EventType != eventType {
			continue
		}
		if sessionID == nil && o.SessionID != nil {
			continue
		}
		if sessionID != nil && (o.SessionID == nil || *o.SessionID != *sessionID) {
			continue
		}
		matched = append(matched, o)
	}
	return matched, nil
}

func (m *mockNotificationRepo) GetOrCreateObserver(ctx context.Context, userID string, eventType models.NotificationType, sessionID *string) (*models.NotificationObserver, error) {
	for _, o := range m.observers {
		if o.UserID == userID && o.EventType == eventType {
			return &o, nil
		}
	}
	observer := models.NotificationObserver{ID: "obs-new", UserID: userID, EventType: eventType, SessionID: sessionID, IsActive: true}
	m.observers = append(m.observers, observer)
	return &observer, nil
}

func (m *mockNotificationRepo) DeactivateObserver(ctx context.Context, userID string, eventType models.NotificationType, sessionID *string) error {
	for i, o := range m.observers {
		if o.UserID == userID && o.EventType == eventType {
			m.observers[i].IsActive = false
		}
	}
	return nil
}

type mapCacheRepo struct {
	entries map[string]interface{}
	deleted []string
}

func (m *mapCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	v, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if p, ok := dest.(*int); ok {
		*p = v.(int)
	}
	return nil
}

func (m *mapCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = make(map[string]interface{})
	}
	m.entries[key] = value
	return nil
}

func (m *mapCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	for key := range m.entries {
		delete(m.entries, key)
	}
	return nil
}

func newNotificationService(repo *mockNotificationRepo, cacheRepo *mapCacheRepo) *NotificationService {
	cacheSvc := NewCacheService(nil, nil, time.Minute, zap.NewNop(), false)
	if cacheRepo != nil {
		cacheSvc = NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	}
	return NewNotificationService(repo, cacheSvc, nil, nil, zap.NewNop(), time.Minute)
}

func TestNotifyBroadcastCreatesSingleRow(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := newNotificationService(repo, nil)

	created, err := svc.Notify(context.Background(), NotifyInput{
		Type:      models.NotificationAnnouncement,
		Title:     "Maintenance",
		Message:   "The portal is down tonight.",
		Broadcast: true,
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.True(t, created[0].IsBroadcast)
	assert.Nil(t, created[0].UserID)
}

func TestNotifyBroadcastIgnoresRecipients(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := newNotificationService(repo, nil)

	created, err := svc.Notify(context.Background(), NotifyInput{
		Type:       models.NotificationAnnouncement,
		Title:      "Hello",
		Message:    "World",
		Broadcast:  true,
		Recipients: []string{"user-1", "user-2"},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.True(t, created[0].IsBroadcast)
}

func TestNotifyExplicitRecipientsSkipObservers(t *testing.T) {
	repo := &mockNotificationRepo{
		observers: []models.NotificationObserver{
			{UserID: "observer-1", EventType: models.NotificationSessionCancelled, IsActive: true},
		},
	}
	svc := newNotificationService(repo, nil)

	created, err := svc.Notify(context.Background(), NotifyInput{
		Type:       models.NotificationSessionCancelled,
		Title:      "Cancelled",
		Message:    "Your session is gone.",
		Recipients: []string{"user-1"},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.NotNil(t, created[0].UserID)
	assert.Equal(t, "user-1", *created[0].UserID)
}

func TestNotifyRecipientsAreNotDeduplicated(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := newNotificationService(repo, nil)

	created, err := svc.Notify(context.Background(), NotifyInput{
		Type:       models.NotificationSessionCompleted,
		Title:      "Done",
		Message:    "Leave feedback.",
		Recipients: []string{"user-1", "user-1"},
	})
	require.NoError(t, err)
	assert.Len(t, created, 2)
}

func TestNotifyFallsBackToSessionObservers(t *testing.T) {
	sessionID := "sess-1"
	repo := &mockNotificationRepo{
		observers: []models.NotificationObserver{
			{UserID: "observer-1", EventType: models.NotificationSessionCancelled, SessionID: &sessionID, IsActive: true},
			{UserID: "observer-2", EventType: models.NotificationSessionCancelled, SessionID: nil, IsActive: true},
			{UserID: "observer-3", EventType: models.NotificationSessionCancelled, SessionID: &sessionID, IsActive: false},
		},
	}
	svc := newNotificationService(repo, nil)

	created, err := svc.Notify(context.Background(), NotifyInput{
		Type:      models.NotificationSessionCancelled,
		Title:     "Cancelled",
		Message:   "Session cancelled.",
		SessionID: &sessionID,
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "observer-1", *created[0].UserID)
}

func TestNotifyFallsBackToGeneralObservers(t *testing.T) {
	repo := &mockNotificationRepo{
		observers: []models.NotificationObserver{
			{UserID: "staff-1", EventType: models.NotificationTechnicalReport, IsActive: true},
			{UserID: "staff-2", EventType: models.NotificationTechnicalReport, IsActive: true},
		},
	}
	svc := newNotificationService(repo, nil)

	created, err := svc.Notify(context.Background(), NotifyInput{
		Type:    models.NotificationTechnicalReport,
		Title:   "Report",
		Message: "Projector broken.",
	})
	require.NoError(t, err)
	assert.Len(t, created, 2)
}

func TestNotifyRejectsMissingFields(t *testing.T) {
	svc := newNotificationService(&mockNotificationRepo{}, nil)

	_, err := svc.Notify(context.Background(), NotifyInput{Type: models.NotificationAnnouncement})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := newNotificationService(repo, nil)

	created, err := svc.Notify(context.Background(), NotifyInput{
		Type:       models.NotificationSessionConfirmed,
		Title:      "Confirmed",
		Message:    "Welcome.",
		Recipients: []string{"user-1"},
	})
	require.NoError(t, err)
	id := created[0].ID

	first, err := svc.MarkRead(context.Background(), id, "user-1")
	require.NoError(t, err)
	require.True(t, first.IsRead)
	require.NotNil(t, first.ReadAt)

	second, err := svc.MarkRead(context.Background(), id, "user-1")
	require.NoError(t, err)
	assert.True(t, second.IsRead)
	assert.Equal(t, first.ReadAt, second.ReadAt)
}

func TestMarkReadForbiddenForOtherUser(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := newNotificationService(repo, nil)

	created, err := svc.Notify(context.Background(), NotifyInput{
		Type:       models.NotificationSessionConfirmed,
		Title:      "Confirmed",
		Message:    "Welcome.",
		Recipients: []string{"user-1"},
	})
	require.NoError(t, err)

	_, err = svc.MarkRead(context.Background(), created[0].ID, "user-2")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestMarkReadAllowsAnyUserOnBroadcast(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := newNotificationService(repo, nil)

	created, err := svc.Notify(context.Background(), NotifyInput{
		Type:      models.NotificationAnnouncement,
		Title:     "Hello",
		Message:   "World",
		Broadcast: true,
	})
	require.NoError(t, err)

	n, err := svc.MarkRead(context.Background(), created[0].ID, "anyone")
	require.NoError(t, err)
	assert.True(t, n.IsRead)
}

func TestMarkReadNotFound(t *testing.T) {
	svc := newNotificationService(&mockNotificationRepo{}, nil)

	_, err := svc.MarkRead(context.Background(), "missing", "user-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestUnreadCountIncludesBroadcasts(t *testing.T) {
	repo := &mockNotificationRepo{}
	svc := newNotificationService(repo, nil)

	_, err := svc.Notify(context.Background(), NotifyInput{
		Type: models.NotificationSessionConfirmed, Title: "a", Message: "b",
		Recipients: []string{"user-1"},
	})
	require.NoError(t, err)
	_, err = svc.Notify(context.Background(), NotifyInput{
		Type: models.NotificationAnnouncement, Title: "c", Message: "d", Broadcast: true,
	})
	require.NoError(t, err)

	count, err := svc.UnreadCount(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Broadcasts have no per-user read state, so other users see them too.
	count, err = svc.UnreadCount(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUnreadCountServedFromCacheUntilInvalidated(t *testing.T) {
	repo := &mockNotificationRepo{}
	cacheRepo := &mapCacheRepo{}
	svc := newNotificationService(repo, cacheRepo)

	count, err := svc.UnreadCount(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, 0, count)

	// Writing directly to the repo does not refresh the cached value.
	uid := "user-1"
	require.NoError(t, repo.Create(context.Background(), &models.Notification{UserID: &uid, Type: models.NotificationSessionConfirmed, Title: "a", Message: "b"}))

	count, err = svc.UnreadCount(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// A fan-out through the service invalidates and the next read is fresh.
	_, err = svc.Notify(context.Background(), NotifyInput{
		Type: models.NotificationSessionConfirmed, Title: "c", Message: "d",
		Recipients: []string{"user-1"},
	})
	require.NoError(t, err)

	count, err = svc.UnreadCount(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSubscribeReturnsExistingObserverUnchanged(t *testing.T) {
	repo := &mockNotificationRepo{
		observers: []models.NotificationObserver{
			{ID: "obs-1", UserID: "user-1", EventType: models.NotificationAnnouncement, IsActive: false},
		},
	}
	svc := newNotificationService(repo, nil)

	observer, err := svc.Subscribe(context.Background(), "user-1", models.NotificationAnnouncement, nil)
	require.NoError(t, err)
	assert.Equal(t, "obs-1", observer.ID)
	assert.False(t, observer.IsActive)
}

func TestSubscribeRejectsUnknownEventType(t *testing.T) {
	svc := newNotificationService(&mockNotificationRepo{}, nil)

	_, err := svc.Subscribe(context.Background(), "user-1", "bogus", nil)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestUnsubscribeDeactivates(t *testing.T) {
	repo := &mockNotificationRepo{
		observers: []models.NotificationObserver{
			{ID: "obs-1", UserID: "user-1", EventType: models.NotificationAnnouncement, IsActive: true},
		},
	}
	svc := newNotificationService(repo, nil)

	require.NoError(t, svc.Unsubscribe(context.Background(), "user-1", models.NotificationAnnouncement, nil))
	assert.False(t, repo.observers[0].IsActive)
}

func TestAnnounceReturnsBroadcast(t *testing.T) {
	svc := newNotificationService(&mockNotificationRepo{}, nil)

	n, err := svc.Announce(context.Background(), "Title", "Message", "/somewhere")
	require.NoError(t, err)
	assert.True(t, n.IsBroadcast)
	assert.Equal(t, models.NotificationAnnouncement, n.Type)
}
