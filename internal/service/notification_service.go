package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
)

const unreadCountKeyPrefix = "notifications:unread:"

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id string, readAt time.Time) (bool, error)
	ListActiveObservers(ctx context.Context, eventType models.NotificationType, sessionID *string) ([]models.NotificationObserver, error)
	GetOrCreateObserver(ctx context.Context, userID string, eventType models.NotificationType, sessionID *string) (*models.NotificationObserver, error)
	DeactivateObserver(ctx context.Context, userID string, eventType models.NotificationType, sessionID *string) error
}

// NotificationService fans events out to notification rows and manages
// observer subscriptions and read state.
type NotificationService struct {
	repo      notificationRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	unreadTTL time.Duration
}

// NewNotificationService constructs the service.
func NewNotificationService(repo notificationRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, unreadTTL time.Duration) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if unreadTTL <= 0 {
		unreadTTL = time.Minute
	}
	return &NotificationService{repo: repo, cache: cache, metrics: metrics, validator: validate, logger: logger, unreadTTL: unreadTTL}
}

// NotifyInput describes one event to fan out.
type NotifyInput struct {
	Type              models.NotificationType `validate:"required"`
	Title             string                  `validate:"required"`
	Message           string                  `validate:"required"`
	Broadcast         bool
	Recipients        []string
	SessionID         *string
	RelatedObjectID   *string
	RelatedObjectType *string
	ActionURL         string
}

// Notify resolves recipients and persists one notification row per recipient.
// Resolution picks exactly one branch: broadcast, explicit recipients, session
// observers, then general observers of the event type. Recipients are not
// deduplicated; a user reached through two explicit entries gets two rows.
func (s *NotificationService) Notify(ctx context.Context, input NotifyInput) ([]models.Notification, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notification payload")
	}

	if input.Broadcast {
		n := s.buildNotification(input, nil)
		n.IsBroadcast = true
		if err := s.repo.Create(ctx, n); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create broadcast")
		}
		s.metrics.RecordNotification(input.Type)
		s.invalidateUnread(ctx, "*")
		return []models.Notification{*n}, nil
	}

	recipients := input.Recipients
	if len(recipients) == 0 {
		observers, err := s.repo.ListActiveObservers(ctx, input.Type, input.SessionID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve observers")
		}
		for _, observer := range observers {
			recipients = append(recipients, observer.UserID)
		}
	}

	created := make([]models.Notification, 0, len(recipients))
	for _, userID := range recipients {
		uid := userID
		n := s.buildNotification(input, &uid)
		if err := s.repo.Create(ctx, n); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
		}
		s.metrics.RecordNotification(input.Type)
		s.invalidateUnread(ctx, uid)
		created = append(created, *n)
	}
	return created, nil
}

func (s *NotificationService) buildNotification(input NotifyInput, userID *string) *models.Notification {
	return &models.Notification{
		UserID:            userID,
		Type:              input.Type,
		Title:             input.Title,
		Message:           input.Message,
		SessionID:         input.SessionID,
		RelatedObjectID:   input.RelatedObjectID,
		RelatedObjectType: input.RelatedObjectType,
		ActionURL:         input.ActionURL,
		CreatedAt:         time.Now().UTC(),
	}
}

// List returns the user's notifications including broadcasts.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	notifications, err := s.repo.ListForUser(ctx, userID, unreadOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// UnreadCount returns the number of unread notifications for the user, served
// from cache when fresh. Unread broadcasts count for every user since
// broadcasts have no per-user read state.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	key := unreadCountKeyPrefix + userID
	var cached int
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}
	if err := s.cache.Set(ctx, key, count, s.unreadTTL); err != nil {
		s.logger.Warn("failed to cache unread count", zap.String("user_id", userID), zap.Error(err))
	}
	return count, nil
}

// MarkRead marks a notification as read. The operation is idempotent: marking
// an already-read notification changes nothing and keeps the original read_at.
// A user may only mark their own notifications or broadcasts.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, userID string) (*models.Notification, error) {
	n, err := s.repo.FindByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notification")
	}
	if !n.IsBroadcast && (n.UserID == nil || *n.UserID != userID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "notification belongs to another user")
	}

	changed, err := s.repo.MarkRead(ctx, notificationID, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if changed {
		if n.IsBroadcast {
			s.invalidateUnread(ctx, "*")
		} else {
			s.invalidateUnread(ctx, userID)
		}
		n, err = s.repo.FindByID(ctx, notificationID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload notification")
		}
	}
	return n, nil
}

// Subscribe registers the user as an observer of an event type, optionally
// scoped to one session. An existing subscription is returned unchanged, even
// when it was previously deactivated.
func (s *NotificationService) Subscribe(ctx context.Context, userID string, eventType models.NotificationType, sessionID *string) (*models.NotificationObserver, error) {
	if !validNotificationType(eventType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown event type")
	}
	observer, err := s.repo.GetOrCreateObserver(ctx, userID, eventType, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to subscribe")
	}
	return observer, nil
}

// Unsubscribe deactivates the matching subscription.
func (s *NotificationService) Unsubscribe(ctx context.Context, userID string, eventType models.NotificationType, sessionID *string) error {
	if !validNotificationType(eventType) {
		return appErrors.Clone(appErrors.ErrValidation, "unknown event type")
	}
	if err := s.repo.DeactivateObserver(ctx, userID, eventType, sessionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unsubscribe")
	}
	return nil
}

// NotifySessionConfirmed tells a student their enrollment went through.
func (s *NotificationService) NotifySessionConfirmed(ctx context.Context, userID string, session *models.SessionDetail) {
	sessionID := session.ID
	s.notifyBestEffort(ctx, NotifyInput{
		Type:       models.NotificationSessionConfirmed,
		Title:      "Enrollment confirmed",
		Message:    fmt.Sprintf("You are enrolled in %s (%s) with %s.", session.ClassCode, session.SubjectName, session.TutorName),
		Recipients: []string{userID},
		SessionID:  &sessionID,
		ActionURL:  fmt.Sprintf("/sessions/%s", session.ID),
	})
}

// NotifySessionCancelled tells the affected students their session is gone.
func (s *NotificationService) NotifySessionCancelled(ctx context.Context, userIDs []string, session *models.SessionDetail) {
	if len(userIDs) == 0 {
		return
	}
	sessionID := session.ID
	s.notifyBestEffort(ctx, NotifyInput{
		Type:       models.NotificationSessionCancelled,
		Title:      "Session cancelled",
		Message:    fmt.Sprintf("%s (%s) has been cancelled by the tutor.", session.ClassCode, session.SubjectName),
		Recipients: userIDs,
		SessionID:  &sessionID,
	})
}

// NotifySessionCompleted asks participants for feedback once a session ends.
func (s *NotificationService) NotifySessionCompleted(ctx context.Context, userIDs []string, session *models.SessionDetail) {
	if len(userIDs) == 0 {
		return
	}
	sessionID := session.ID
	s.notifyBestEffort(ctx, NotifyInput{
		Type:       models.NotificationSessionCompleted,
		Title:      "Session completed",
		Message:    fmt.Sprintf("%s (%s) has finished. Please leave feedback.", session.ClassCode, session.SubjectName),
		Recipients: userIDs,
		SessionID:  &sessionID,
		ActionURL:  fmt.Sprintf("/sessions/%s/feedback", session.ID),
	})
}

// NotifySessionRequested fans a new session request out to every tutor.
func (s *NotificationService) NotifySessionRequested(ctx context.Context, tutorUserIDs []string, request *models.SessionRequest) {
	if len(tutorUserIDs) == 0 {
		return
	}
	requestID := request.ID
	objectType := "session_request"
	s.notifyBestEffort(ctx, NotifyInput{
		Type:              models.NotificationSessionRequest,
		Title:             "New session request",
		Message:           fmt.Sprintf("A student requested a %s session for %s.", request.DeliveryMode, request.Subject),
		Recipients:        tutorUserIDs,
		RelatedObjectID:   &requestID,
		RelatedObjectType: &objectType,
	})
}

// NotifyFeedbackReceived tells the tutor a student rated their session.
func (s *NotificationService) NotifyFeedbackReceived(ctx context.Context, tutorUserID string, session *models.SessionDetail, feedbackID string) {
	sessionID := session.ID
	objectType := "feedback"
	s.notifyBestEffort(ctx, NotifyInput{
		Type:              models.NotificationFeedbackReceived,
		Title:             "New feedback",
		Message:           fmt.Sprintf("A student left feedback on %s (%s).", session.ClassCode, session.SubjectName),
		Recipients:        []string{tutorUserID},
		SessionID:         &sessionID,
		RelatedObjectID:   &feedbackID,
		RelatedObjectType: &objectType,
	})
}

// NotifyTechnicalReport alerts the general observers of technical reports.
func (s *NotificationService) NotifyTechnicalReport(ctx context.Context, report *models.TechnicalReport) {
	reportID := report.ID
	objectType := "technical_report"
	s.notifyBestEffort(ctx, NotifyInput{
		Type:              models.NotificationTechnicalReport,
		Title:             "Technical report filed",
		Message:           fmt.Sprintf("[%s] %s", report.Priority, report.Title),
		RelatedObjectID:   &reportID,
		RelatedObjectType: &objectType,
	})
}

// Announce broadcasts an announcement to every user.
func (s *NotificationService) Announce(ctx context.Context, title, message, actionURL string) (*models.Notification, error) {
	created, err := s.Notify(ctx, NotifyInput{
		Type:      models.NotificationAnnouncement,
		Title:     title,
		Message:   message,
		Broadcast: true,
		ActionURL: actionURL,
	})
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

// notifyBestEffort logs and swallows fan-out failures so notification problems
// never roll back the business operation that triggered them.
func (s *NotificationService) notifyBestEffort(ctx context.Context, input NotifyInput) {
	if _, err := s.Notify(ctx, input); err != nil {
		s.logger.Warn("notification fan-out failed",
			zap.String("type", string(input.Type)),
			zap.Error(err))
	}
}

func (s *NotificationService) invalidateUnread(ctx context.Context, userID string) {
	if err := s.cache.Invalidate(ctx, unreadCountKeyPrefix+userID); err != nil {
		s.logger.Warn("failed to invalidate unread cache", zap.String("user_id", userID), zap.Error(err))
	}
}

func validNotificationType(t models.NotificationType) bool {
	switch t {
	case models.NotificationSessionRequest, models.NotificationSessionConfirmed,
		models.NotificationSessionCancelled, models.NotificationSessionCompleted,
		models.NotificationAnnouncement, models.NotificationFeedbackReceived,
		models.NotificationTechnicalReport:
		return true
	default:
		return false
	}
}
