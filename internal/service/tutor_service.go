package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
)

type tutorRepository interface {
	FindByID(ctx context.Context, id string) (*models.Tutor, error)
	FindByUserID(ctx context.Context, userID string) (*models.Tutor, error)
	List(ctx context.Context) ([]models.Tutor, error)
	Create(ctx context.Context, tutor *models.Tutor) error
	SetExpertise(ctx context.Context, tutorID string, subjectIDs []string) error
}

type subjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	List(ctx context.Context) ([]models.Subject, error)
	Create(ctx context.Context, subject *models.Subject) error
}

// TutorService manages tutor profiles and their subject expertise.
type TutorService struct {
	repo      tutorRepository
	subjects  subjectRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTutorService constructs the service.
func NewTutorService(repo tutorRepository, subjects subjectRepository, validate *validator.Validate, logger *zap.Logger) *TutorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TutorService{repo: repo, subjects: subjects, validator: validate, logger: logger}
}

// CreateTutorRequest registers a tutor profile for an existing account.
type CreateTutorRequest struct {
	UserID    string `json:"user_id" validate:"required,uuid4"`
	TutorCode string `json:"tutor_code" validate:"required"`
	FullName  string `json:"full_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone"`
	Major     string `json:"major"`
}

// GetMine returns the calling tutor's profile.
func (s *TutorService) GetMine(ctx context.Context, userID string) (*models.Tutor, error) {
	tutor, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tutor profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return tutor, nil
}

// List returns every tutor profile.
func (s *TutorService) List(ctx context.Context) ([]models.Tutor, error) {
	tutors, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tutors")
	}
	return tutors, nil
}

// Create registers a tutor profile for an account.
func (s *TutorService) Create(ctx context.Context, req CreateTutorRequest) (*models.Tutor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid tutor payload")
	}
	if _, err := s.repo.FindByUserID(ctx, req.UserID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "account already has a tutor profile")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check profile")
	}

	tutor := &models.Tutor{
		UserID:    req.UserID,
		TutorCode: req.TutorCode,
		FullName:  req.FullName,
		Email:     req.Email,
		Phone:     req.Phone,
		Major:     req.Major,
	}
	if err := s.repo.Create(ctx, tutor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create tutor")
	}
	s.logger.Info("tutor profile created", zap.String("tutor_id", tutor.ID))
	return tutor, nil
}

// SetExpertise replaces the calling tutor's subject expertise set.
func (s *TutorService) SetExpertise(ctx context.Context, userID string, subjectIDs []string) error {
	tutor, err := s.GetMine(ctx, userID)
	if err != nil {
		return err
	}
	for _, subjectID := range subjectIDs {
		if _, err := s.subjects.FindByID(ctx, subjectID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrValidation, "unknown subject "+subjectID)
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject")
		}
	}
	if err := s.repo.SetExpertise(ctx, tutor.ID, subjectIDs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set expertise")
	}
	return nil
}

// ListSubjects returns all subjects ordered by code.
func (s *TutorService) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	subjects, err := s.subjects.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, nil
}

// CreateSubject registers a new subject, office only.
func (s *TutorService) CreateSubject(ctx context.Context, code, name string) (*models.Subject, error) {
	if code == "" || name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "code and name are required")
	}
	subject := &models.Subject{Code: code, Name: name}
	if err := s.subjects.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	return subject, nil
}
