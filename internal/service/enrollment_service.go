package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
	"github.com/hcmut-ssps/tutoring-api/internal/repository"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
)

type enrollmentLedger interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	Enroll(ctx context.Context, studentID, sessionID string) (*models.Enrollment, error)
	Cancel(ctx context.Context, enrollmentID, studentID string) (*models.Session, error)
	Reschedule(ctx context.Context, enrollmentID, studentID, targetSessionID string) (*models.Enrollment, error)
}

type enrollmentSessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindDetailByID(ctx context.Context, id string) (*models.SessionDetail, error)
	ListAvailableForStudent(ctx context.Context, studentID, search string) ([]models.SessionDetail, error)
	ListReschedulableTargets(ctx context.Context, current *models.Session) ([]models.SessionDetail, error)
}

type enrollmentStudentRepository interface {
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

// EnrollmentService orchestrates the enrollment ledger. All capacity checks
// run inside the repository transactions; this layer resolves the caller's
// student profile, translates ledger failures and triggers notifications.
type EnrollmentService struct {
	enrollments   enrollmentLedger
	sessions      enrollmentSessionRepository
	students      enrollmentStudentRepository
	notifications *NotificationService
	metrics       *MetricsService
	logger        *zap.Logger
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(enrollments enrollmentLedger, sessions enrollmentSessionRepository, students enrollmentStudentRepository, notifications *NotificationService, metrics *MetricsService, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		enrollments:   enrollments,
		sessions:      sessions,
		students:      students,
		notifications: notifications,
		metrics:       metrics,
		logger:        logger,
	}
}

// Enroll registers the calling student into a session. The seat is claimed
// atomically; a full or non-scheduled session rejects without side effects.
func (s *EnrollmentService) Enroll(ctx context.Context, userID, sessionID string) (*models.Enrollment, error) {
	student, err := s.resolveStudent(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	enrollment, err := s.enrollments.Enroll(ctx, student.ID, sessionID)
	s.metrics.ObserveDBQuery("ledger_enroll", time.Since(start))
	s.metrics.RecordEnrollmentOperation("enroll", err)
	if err != nil {
		return nil, s.translateLedgerError(err, "session")
	}

	if detail, derr := s.sessions.FindDetailByID(ctx, sessionID); derr == nil {
		s.notifications.NotifySessionConfirmed(ctx, userID, detail)
	} else {
		s.logger.Warn("failed to load session for confirmation notice", zap.String("session_id", sessionID), zap.Error(derr))
	}

	s.logger.Info("student enrolled",
		zap.String("student_id", student.ID),
		zap.String("session_id", sessionID))
	return enrollment, nil
}

// Cancel withdraws the calling student from a session. The enrollment row is
// deleted and the seat freed, with the counter floored at zero.
func (s *EnrollmentService) Cancel(ctx context.Context, userID, enrollmentID string) error {
	student, err := s.resolveStudent(ctx, userID)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = s.enrollments.Cancel(ctx, enrollmentID, student.ID)
	s.metrics.ObserveDBQuery("ledger_cancel", time.Since(start))
	s.metrics.RecordEnrollmentOperation("cancel", err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return s.translateLedgerError(err, "session")
	}

	s.logger.Info("enrollment cancelled",
		zap.String("student_id", student.ID),
		zap.String("enrollment_id", enrollmentID))
	return nil
}

// Reschedule moves the calling student's enrollment to another session with
// the same subject and tutor. Seats move atomically between the two sessions.
func (s *EnrollmentService) Reschedule(ctx context.Context, userID, enrollmentID, targetSessionID string) (*models.Enrollment, error) {
	student, err := s.resolveStudent(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	enrollment, err := s.enrollments.Reschedule(ctx, enrollmentID, student.ID, targetSessionID)
	s.metrics.ObserveDBQuery("ledger_reschedule", time.Since(start))
	s.metrics.RecordEnrollmentOperation("reschedule", err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment or session not found")
		}
		return nil, s.translateLedgerError(err, "target session")
	}

	if detail, derr := s.sessions.FindDetailByID(ctx, targetSessionID); derr == nil {
		s.notifications.NotifySessionConfirmed(ctx, userID, detail)
	}

	s.logger.Info("enrollment rescheduled",
		zap.String("student_id", student.ID),
		zap.String("enrollment_id", enrollmentID),
		zap.String("target_session_id", targetSessionID))
	return enrollment, nil
}

// ListMine returns the calling student's active enrollments.
func (s *EnrollmentService) ListMine(ctx context.Context, userID string) ([]models.EnrollmentDetail, error) {
	student, err := s.resolveStudent(ctx, userID)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListActiveByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// ListAvailable returns open sessions the student can still join.
func (s *EnrollmentService) ListAvailable(ctx context.Context, userID, search string) ([]models.SessionDetail, error) {
	student, err := s.resolveStudent(ctx, userID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListAvailableForStudent(ctx, student.ID, search)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available sessions")
	}
	return sessions, nil
}

// ListRescheduleTargets returns the sessions an enrollment could move to.
func (s *EnrollmentService) ListRescheduleTargets(ctx context.Context, userID, enrollmentID string) ([]models.SessionDetail, error) {
	student, err := s.resolveStudent(ctx, userID)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.StudentID != student.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}
	current, err := s.sessions.FindByID(ctx, enrollment.SessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	targets, err := s.sessions.ListReschedulableTargets(ctx, current)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reschedule targets")
	}
	return targets, nil
}

func (s *EnrollmentService) resolveStudent(ctx context.Context, userID string) (*models.Student, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no student profile for this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	return student, nil
}

func (s *EnrollmentService) translateLedgerError(err error, subject string) error {
	switch {
	case errors.Is(err, repository.ErrSessionFull):
		return appErrors.Clone(appErrors.ErrCapacityExceeded, subject+" is full")
	case errors.Is(err, repository.ErrAlreadyEnrolled):
		return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
	case errors.Is(err, repository.ErrSubjectMismatch):
		return appErrors.Clone(appErrors.ErrSubjectMismatch, "")
	case errors.Is(err, repository.ErrTutorMismatch):
		return appErrors.Clone(appErrors.ErrTutorMismatch, "")
	case errors.Is(err, repository.ErrInvalidTransition):
		return appErrors.Clone(appErrors.ErrInvalidState, "")
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, subject+" not found")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "enrollment operation failed")
	}
}
