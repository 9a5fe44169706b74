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

type studentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	List(ctx context.Context) ([]models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
}

// StudentService manages student profiles.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the service.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// UpdateStudentProfileRequest carries the editable profile fields.
type UpdateStudentProfileRequest struct {
	FullName     string `json:"full_name" validate:"required"`
	Phone        string `json:"phone"`
	Major        string `json:"major"`
	SpecialNeeds string `json:"special_needs"`
}

// CreateStudentRequest registers a profile for an existing account.
type CreateStudentRequest struct {
	UserID      string `json:"user_id" validate:"required,uuid4"`
	StudentCode string `json:"student_code" validate:"required"`
	FullName    string `json:"full_name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone"`
	Major       string `json:"major"`
}

// GetMine returns the calling student's profile.
func (s *StudentService) GetMine(ctx context.Context, userID string) (*models.Student, error) {
	student, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return student, nil
}

// UpdateMine updates the calling student's profile.
func (s *StudentService) UpdateMine(ctx context.Context, userID string, req UpdateStudentProfileRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	student, err := s.GetMine(ctx, userID)
	if err != nil {
		return nil, err
	}
	student.FullName = req.FullName
	student.Phone = req.Phone
	student.Major = req.Major
	student.SpecialNeeds = req.SpecialNeeds
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return student, nil
}

// List returns every student profile, office only.
func (s *StudentService) List(ctx context.Context) ([]models.Student, error) {
	students, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// Create registers a student profile for an account.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if _, err := s.repo.FindByUserID(ctx, req.UserID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "account already has a student profile")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check profile")
	}

	student := &models.Student{
		UserID:      req.UserID,
		StudentCode: req.StudentCode,
		FullName:    req.FullName,
		Email:       req.Email,
		Phone:       req.Phone,
		Major:       req.Major,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student profile created", zap.String("student_id", student.ID))
	return student, nil
}
