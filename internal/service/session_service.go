package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
	"github.com/hcmut-ssps/tutoring-api/internal/repository"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
)

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.SessionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindDetailByID(ctx context.Context, id string) (*models.SessionDetail, error)
	Create(ctx context.Context, session *models.Session) error
	UpdateSchedule(ctx context.Context, id, days, startTime, endTime string) error
	Transition(ctx context.Context, id string, from, to models.SessionStatus) error
	CancelWithEnrollments(ctx context.Context, sessionID string) ([]string, error)
}

type sessionTutorRepository interface {
	FindByUserID(ctx context.Context, userID string) (*models.Tutor, error)
}

type sessionParticipantRepository interface {
	ListActiveUserIDsBySession(ctx context.Context, sessionID string) ([]string, error)
	ListRosterBySession(ctx context.Context, sessionID string) ([]repository.RosterRow, error)
}

// SessionService owns the tutor-side session lifecycle.
type SessionService struct {
	sessions      sessionRepository
	tutors        sessionTutorRepository
	participants  sessionParticipantRepository
	notifications *NotificationService
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewSessionService constructs the service.
func NewSessionService(sessions sessionRepository, tutors sessionTutorRepository, participants sessionParticipantRepository, notifications *NotificationService, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions:      sessions,
		tutors:        tutors,
		participants:  participants,
		notifications: notifications,
		validator:     validate,
		logger:        logger,
	}
}

// CreateSessionRequest describes the tutor's create payload. Days holds
// dash-separated weekday ordinals, e.g. "2-3-4".
type CreateSessionRequest struct {
	ClassCode string `json:"class_code" validate:"required"`
	SubjectID string `json:"subject_id" validate:"required,uuid4"`
	Days      string `json:"days" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Capacity  int    `json:"capacity" validate:"required,gt=0"`
}

// UpdateScheduleRequest changes the weekly slots of a session.
type UpdateScheduleRequest struct {
	Days      string `json:"days" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// List returns sessions matching the filter with pagination.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.SessionDetail, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	sessions, total, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return sessions, pagination, nil
}

// ListForTutor returns the calling tutor's sessions.
func (s *SessionService) ListForTutor(ctx context.Context, userID string, filter models.SessionFilter) ([]models.SessionDetail, *models.Pagination, error) {
	tutor, err := s.resolveTutor(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	filter.TutorID = tutor.ID
	return s.List(ctx, filter)
}

// Get returns a session with subject and tutor context.
func (s *SessionService) Get(ctx context.Context, id string) (*models.SessionDetail, error) {
	detail, err := s.sessions.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return detail, nil
}

// Roster returns the active participants of a session. Only the owning tutor
// or office staff may read it.
func (s *SessionService) Roster(ctx context.Context, actor *models.JWTClaims, sessionID string) ([]repository.RosterRow, error) {
	if _, err := s.authorizeSessionAccess(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	roster, err := s.participants.ListRosterBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	return roster, nil
}

// Create registers a new scheduled session owned by the calling tutor.
func (s *SessionService) Create(ctx context.Context, userID string, req CreateSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	tutor, err := s.resolveTutor(ctx, userID)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		ClassCode: req.ClassCode,
		SubjectID: req.SubjectID,
		TutorID:   tutor.ID,
		Days:      req.Days,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Capacity:  req.Capacity,
		Status:    models.SessionStatusScheduled,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	s.logger.Info("session created", zap.String("session_id", session.ID), zap.String("tutor_id", tutor.ID))
	return session, nil
}

// UpdateSchedule changes days and times of a session still open to changes.
func (s *SessionService) UpdateSchedule(ctx context.Context, actor *models.JWTClaims, sessionID string, req UpdateScheduleRequest) (*models.SessionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	if _, err := s.authorizeSessionAccess(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	if err := s.sessions.UpdateSchedule(ctx, sessionID, req.Days, req.StartTime, req.EndTime); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "completed or cancelled sessions cannot be rescheduled")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
	}
	return s.Get(ctx, sessionID)
}

// Start moves a scheduled session to ongoing.
func (s *SessionService) Start(ctx context.Context, actor *models.JWTClaims, sessionID string) (*models.SessionDetail, error) {
	return s.transition(ctx, actor, sessionID, models.SessionStatusScheduled, models.SessionStatusOngoing)
}

// Complete moves an ongoing session to completed and asks participants for
// feedback.
func (s *SessionService) Complete(ctx context.Context, actor *models.JWTClaims, sessionID string) (*models.SessionDetail, error) {
	detail, err := s.transition(ctx, actor, sessionID, models.SessionStatusOngoing, models.SessionStatusCompleted)
	if err != nil {
		return nil, err
	}
	userIDs, uerr := s.participants.ListActiveUserIDsBySession(ctx, sessionID)
	if uerr != nil {
		s.logger.Warn("failed to resolve participants for completion notice", zap.String("session_id", sessionID), zap.Error(uerr))
		return detail, nil
	}
	s.notifications.NotifySessionCompleted(ctx, userIDs, detail)
	return detail, nil
}

// Cancel cancels a session, releases every active enrollment and notifies the
// affected students. The release and the status change commit together.
func (s *SessionService) Cancel(ctx context.Context, actor *models.JWTClaims, sessionID string) (*models.SessionDetail, error) {
	if _, err := s.authorizeSessionAccess(ctx, actor, sessionID); err != nil {
		return nil, err
	}

	affected, err := s.sessions.CancelWithEnrollments(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		if errors.Is(err, repository.ErrInvalidTransition) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "session is already completed or cancelled")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel session")
	}

	detail, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.notifications.NotifySessionCancelled(ctx, affected, detail)
	s.logger.Info("session cancelled",
		zap.String("session_id", sessionID),
		zap.Int("released_enrollments", len(affected)))
	return detail, nil
}

func (s *SessionService) transition(ctx context.Context, actor *models.JWTClaims, sessionID string, from, to models.SessionStatus) (*models.SessionDetail, error) {
	session, err := s.authorizeSessionAccess(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	// Fast-fail on the loaded row; the guarded UPDATE remains the
	// authoritative check under concurrent changes.
	if !session.Status.CanTransitionTo(to) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "session is not "+string(from))
	}
	if err := s.sessions.Transition(ctx, sessionID, from, to); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "session is not "+string(from))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transition session")
	}
	return s.Get(ctx, sessionID)
}

// authorizeSessionAccess lets office staff through and otherwise requires the
// caller to be the owning tutor.
func (s *SessionService) authorizeSessionAccess(ctx context.Context, actor *models.JWTClaims, sessionID string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if actor.Role == models.RoleOffice {
		return session, nil
	}
	tutor, err := s.resolveTutor(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if session.TutorID != tutor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another tutor")
	}
	return session, nil
}

func (s *SessionService) resolveTutor(ctx context.Context, userID string) (*models.Tutor, error) {
	tutor, err := s.tutors.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no tutor profile for this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tutor profile")
	}
	return tutor, nil
}
