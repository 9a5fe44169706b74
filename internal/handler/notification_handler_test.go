package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hcmut-ssps/tutoring-api/internal/middleware"
	"github.com/hcmut-ssps/tutoring-api/internal/models"
	"github.com/hcmut-ssps/tutoring-api/internal/service"
)

type notificationRepoStub struct {
	notifications map[string]models.Notification
	observers     []models.NotificationObserver
	nextID        int
}

func (m *notificationRepoStub) Create(ctx context.Context, n *models.Notification) error {
	if m.notifications == nil {
		m.notifications = make(map[string]models.Notification)
	}
	m.nextID++
	n.ID = fmt.Sprintf("notif-%d", m.nextID)
	m.notifications[n.ID] = *n
	return nil
}

func (m *notificationRepoStub) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	if n, ok := m.notifications[id]; ok {
		return &n, nil
	}
	return nil, sql.ErrNoRows
}

func (m *notificationRepoStub) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	var list []models.Notification
	for _, n := range m.notifications {
		if n.IsBroadcast || (n.UserID != nil && *n.UserID == userID) {
			if unreadOnly && n.IsRead {
				continue
			}
			list = append(list, n)
		}
	}
	return list, nil
}

func (m *notificationRepoStub) UnreadCount(ctx context.Context, userID string) (int, error) {
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

func (m *notificationRepoStub) MarkRead(ctx context.Context, id string, readAt time.Time) (bool, error) {
	n, ok := m.notifications[id]
	if !ok || n.IsRead {
		return false, nil
	}
	n.IsRead = true
	n.ReadAt = &readAt
	m.notifications[id] = n
	return true, nil
}

func (m *notificationRepoStub) ListActiveObservers(ctx context.Context, eventType models.NotificationType, sessionID *string) ([]models.NotificationObserver, error) {
	return nil, nil
}

func (m *notificationRepoStub) GetOrCreateObserver(ctx context.Context, userID string, eventType models.NotificationType, sessionID *string) (*models.NotificationObserver, error) {
	observer := models.NotificationObserver{ID: "obs-1", UserID: userID, EventType: eventType, SessionID: sessionID, IsActive: true}
	m.observers = append(m.observers, observer)
	return &observer, nil
}

func (m *notificationRepoStub) DeactivateObserver(ctx context.Context, userID string, eventType models.NotificationType, sessionID *string) error {
	return nil
}

func newNotificationHandler(repo *notificationRepoStub) *NotificationHandler {
	cache := service.NewCacheService(nil, nil, time.Minute, zap.NewNop(), false)
	svc := service.NewNotificationService(repo, cache, nil, nil, zap.NewNop(), time.Minute)
	return NewNotificationHandler(svc)
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func studentContext(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})
}

func TestNotificationHandlerUnreadCount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	uid := "user-1"
	repo := &notificationRepoStub{notifications: map[string]models.Notification{
		"n-1": {ID: "n-1", UserID: &uid, Type: models.NotificationSessionConfirmed},
		"n-2": {ID: "n-2", IsBroadcast: true, Type: models.NotificationAnnouncement},
	}}
	handler := newNotificationHandler(repo)

	c, w := newGinContext(http.MethodGet, "/notifications/unread-count", nil)
	studentContext(c)

	handler.UnreadCount(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data struct {
			UnreadCount int `json:"unread_count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, 2, envelope.Data.UnreadCount)
}

func TestNotificationHandlerMarkReadForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	other := "user-other"
	repo := &notificationRepoStub{notifications: map[string]models.Notification{
		"n-1": {ID: "n-1", UserID: &other, Type: models.NotificationSessionConfirmed},
	}}
	handler := newNotificationHandler(repo)

	c, w := newGinContext(http.MethodPost, "/notifications/n-1/read", nil)
	c.Params = gin.Params{{Key: "id", Value: "n-1"}}
	studentContext(c)

	handler.MarkRead(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestNotificationHandlerSubscribe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newNotificationHandler(&notificationRepoStub{})

	payload, _ := json.Marshal(map[string]interface{}{"event_type": "announcement"})
	c, w := newGinContext(http.MethodPost, "/notifications/subscriptions", payload)
	studentContext(c)

	handler.Subscribe(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestNotificationHandlerSubscribeRejectsUnknownType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newNotificationHandler(&notificationRepoStub{})

	payload, _ := json.Marshal(map[string]interface{}{"event_type": "bogus"})
	c, w := newGinContext(http.MethodPost, "/notifications/subscriptions", payload)
	studentContext(c)

	handler.Subscribe(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotificationHandlerAnnounce(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &notificationRepoStub{}
	handler := newNotificationHandler(repo)

	payload, _ := json.Marshal(map[string]interface{}{"title": "Hello", "message": "World"})
	c, w := newGinContext(http.MethodPost, "/notifications/announcements", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "office-1", Role: models.RoleOffice})

	handler.Announce(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.notifications, 1)
}
