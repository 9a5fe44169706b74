package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
)

type feedbackRepository interface {
	ExistsForEnrollment(ctx context.Context, enrollmentID string) (bool, error)
	CreateFeedback(ctx context.Context, fb *models.Feedback) error
	ListFeedbackBySession(ctx context.Context, sessionID string) ([]models.Feedback, error)
	CreateSessionRequest(ctx context.Context, req *models.SessionRequest) error
	ListSessionRequests(ctx context.Context) ([]models.SessionRequest, error)
	CreateTechnicalReport(ctx context.Context, report *models.TechnicalReport) error
	FindTechnicalReport(ctx context.Context, id string) (*models.TechnicalReport, error)
	UpdateTechnicalReportStatus(ctx context.Context, id string, status models.ReportStatus) error
}

type feedbackEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type feedbackTutorRepository interface {
	FindByID(ctx context.Context, id string) (*models.Tutor, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// FeedbackService covers session feedback, session requests and technical
// reports, each of which triggers a notification fan-out.
type FeedbackService struct {
	repo          feedbackRepository
	enrollments   feedbackEnrollmentRepository
	sessions      enrollmentSessionRepository
	students      enrollmentStudentRepository
	tutors        feedbackTutorRepository
	notifications *NotificationService
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewFeedbackService constructs the service.
func NewFeedbackService(repo feedbackRepository, enrollments feedbackEnrollmentRepository, sessions enrollmentSessionRepository, students enrollmentStudentRepository, tutors feedbackTutorRepository, notifications *NotificationService, validate *validator.Validate, logger *zap.Logger) *FeedbackService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedbackService{
		repo:          repo,
		enrollments:   enrollments,
		sessions:      sessions,
		students:      students,
		tutors:        tutors,
		notifications: notifications,
		validator:     validate,
		logger:        logger,
	}
}

// CreateFeedbackRequest is the student's rating payload.
type CreateFeedbackRequest struct {
	EnrollmentID string `json:"enrollment_id" validate:"required,uuid4"`
	Rating       int    `json:"rating" validate:"required,min=1,max=5"`
	Comment      string `json:"comment"`
}

// CreateSessionRequestInput is the student's ask for a new session.
type CreateSessionRequestInput struct {
	Subject      string    `json:"subject" validate:"required"`
	DeliveryMode string    `json:"delivery_mode" validate:"required,oneof=online offline hybrid"`
	Date         time.Time `json:"date" validate:"required"`
	StartTime    string    `json:"start_time" validate:"required"`
	EndTime      string    `json:"end_time" validate:"required"`
}

// CreateTechnicalReportInput files a platform issue.
type CreateTechnicalReportInput struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	Priority    string `json:"priority" validate:"required,oneof=low medium high"`
}

// CreateFeedback records a rating for one of the caller's enrollments. Only
// completed sessions accept feedback and each enrollment may be rated once.
func (s *FeedbackService) CreateFeedback(ctx context.Context, userID string, req CreateFeedbackRequest) (*models.Feedback, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid feedback payload")
	}

	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no student profile for this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}

	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.StudentID != student.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}

	session, err := s.sessions.FindDetailByID(ctx, enrollment.SessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.Status != models.SessionStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "feedback is only accepted after the session completes")
	}

	exists, err := s.repo.ExistsForEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check feedback")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "feedback already submitted for this enrollment")
	}

	feedback := &models.Feedback{
		EnrollmentID: req.EnrollmentID,
		Rating:       req.Rating,
		Comment:      req.Comment,
	}
	if err := s.repo.CreateFeedback(ctx, feedback); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create feedback")
	}

	if tutor, terr := s.tutors.FindByID(ctx, session.TutorID); terr == nil {
		s.notifications.NotifyFeedbackReceived(ctx, tutor.UserID, session, feedback.ID)
	} else {
		s.logger.Warn("failed to resolve tutor for feedback notice", zap.String("tutor_id", session.TutorID), zap.Error(terr))
	}
	return feedback, nil
}

// ListSessionFeedback returns all feedback left on a session.
func (s *FeedbackService) ListSessionFeedback(ctx context.Context, sessionID string) ([]models.Feedback, error) {
	rows, err := s.repo.ListFeedbackBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list feedback")
	}
	return rows, nil
}

// CreateSessionRequest files a new session request and notifies every tutor.
func (s *FeedbackService) CreateSessionRequest(ctx context.Context, userID string, input CreateSessionRequestInput) (*models.SessionRequest, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session request payload")
	}
	if input.EndTime <= input.StartTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no student profile for this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}

	request := &models.SessionRequest{
		StudentID:    student.ID,
		Subject:      input.Subject,
		DeliveryMode: models.DeliveryMode(input.DeliveryMode),
		Date:         input.Date,
		StartTime:    input.StartTime,
		EndTime:      input.EndTime,
	}
	if err := s.repo.CreateSessionRequest(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session request")
	}

	if tutorIDs, terr := s.tutors.ListUserIDs(ctx); terr == nil {
		s.notifications.NotifySessionRequested(ctx, tutorIDs, request)
	} else {
		s.logger.Warn("failed to resolve tutors for request notice", zap.Error(terr))
	}
	return request, nil
}

// ListSessionRequests returns all open session requests, newest first.
func (s *FeedbackService) ListSessionRequests(ctx context.Context) ([]models.SessionRequest, error) {
	requests, err := s.repo.ListSessionRequests(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list session requests")
	}
	return requests, nil
}

// CreateTechnicalReport files an issue and alerts the subscribed office staff.
func (s *FeedbackService) CreateTechnicalReport(ctx context.Context, userID string, input CreateTechnicalReportInput) (*models.TechnicalReport, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	report := &models.TechnicalReport{
		ReporterID:  userID,
		Title:       input.Title,
		Description: input.Description,
		Priority:    models.ReportPriority(input.Priority),
		Status:      models.ReportStatusPending,
	}
	if err := s.repo.CreateTechnicalReport(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report")
	}
	s.notifications.NotifyTechnicalReport(ctx, report)
	return report, nil
}

// UpdateReportStatus moves a technical report along its handling flow:
// pending -> in_progress -> resolved|closed.
func (s *FeedbackService) UpdateReportStatus(ctx context.Context, reportID string, status models.ReportStatus) (*models.TechnicalReport, error) {
	report, err := s.repo.FindTechnicalReport(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	if !validReportTransition(report.Status, status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "report status does not allow this change")
	}
	if err := s.repo.UpdateTechnicalReportStatus(ctx, reportID, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update report")
	}
	report.Status = status
	return report, nil
}

func validReportTransition(from, to models.ReportStatus) bool {
	switch from {
	case models.ReportStatusPending:
		return to == models.ReportStatusInProgress || to == models.ReportStatusClosed
	case models.ReportStatusInProgress:
		return to == models.ReportStatusResolved || to == models.ReportStatusClosed
	default:
		return false
	}
}
