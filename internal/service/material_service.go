package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
	"github.com/hcmut-ssps/tutoring-api/pkg/storage"
)

type materialRepository interface {
	List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, int, error)
	FindByID(ctx context.Context, id string) (*models.Material, error)
	Create(ctx context.Context, material *models.Material) error
	Deactivate(ctx context.Context, id string) error
	IncrementViewCount(ctx context.Context, id string) error
	IncrementDownloadCount(ctx context.Context, id string) error
}

// MaterialService manages the shared library: uploaded files and external
// links, with signed download URLs for the former.
type MaterialService struct {
	repo      materialRepository
	files     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMaterialService constructs the service.
func NewMaterialService(repo materialRepository, files *storage.LocalStorage, signer *storage.SignedURLSigner, validate *validator.Validate, logger *zap.Logger) *MaterialService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaterialService{repo: repo, files: files, signer: signer, validator: validate, logger: logger}
}

// CreateMaterialInput describes a new library entry. Exactly one of Upload
// and ExternalURL must be provided.
type CreateMaterialInput struct {
	Title       string `validate:"required"`
	SubjectID   string `validate:"required,uuid4"`
	Type        string `validate:"required,oneof=book paper slides notes guide other"`
	Description string
	Language    string `validate:"required"`
	ExternalURL string `validate:"omitempty,url"`
	Filename    string
	Upload      io.Reader
}

// MaterialDownload is a ready-to-stream resolved download.
type MaterialDownload struct {
	Material *models.Material
	File     *os.File
}

// List returns active materials with pagination.
func (s *MaterialService) List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	materials, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list materials")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return materials, pagination, nil
}

// Get returns one material and counts the view. The counter update is a
// single atomic increment in the store.
func (s *MaterialService) Get(ctx context.Context, id string) (*models.Material, error) {
	material, err := s.findActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.IncrementViewCount(ctx, id); err != nil {
		s.logger.Warn("failed to count material view", zap.String("material_id", id), zap.Error(err))
	} else {
		material.ViewCount++
	}
	return material, nil
}

// Create registers a new material, storing the uploaded file when present.
func (s *MaterialService) Create(ctx context.Context, input CreateMaterialInput) (*models.Material, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid material payload")
	}
	if (input.Upload == nil) == (input.ExternalURL == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "provide either a file or an external URL")
	}

	material := &models.Material{
		Title:       input.Title,
		SubjectID:   input.SubjectID,
		Type:        models.MaterialType(input.Type),
		Description: input.Description,
		Language:    input.Language,
		IsActive:    true,
	}
	if input.ExternalURL != "" {
		material.ExternalURL = &input.ExternalURL
	} else {
		filename := fmt.Sprintf("%s%s", uuid.NewString(), filepath.Ext(input.Filename))
		relPath, err := s.files.SaveStream(filename, input.Upload)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
		}
		material.FilePath = &relPath
	}

	if err := s.repo.Create(ctx, material); err != nil {
		if material.FilePath != nil {
			_ = s.files.Delete(*material.FilePath)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create material")
	}
	s.logger.Info("material created", zap.String("material_id", material.ID), zap.String("type", string(material.Type)))
	return material, nil
}

// Deactivate soft-deletes a material.
func (s *MaterialService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.findActive(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate material")
	}
	return nil
}

// DownloadURL returns a signed, expiring token for a stored file.
func (s *MaterialService) DownloadURL(ctx context.Context, id string) (string, time.Time, error) {
	material, err := s.findActive(ctx, id)
	if err != nil {
		return "", time.Time{}, err
	}
	if material.FilePath == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrValidation, "material has no stored file")
	}
	token, expiresAt, err := s.signer.Generate(material.ID, *material.FilePath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return token, expiresAt, nil
}

// ResolveDownload verifies a signed token, opens the file and counts the
// download. The caller owns the returned file handle.
func (s *MaterialService) ResolveDownload(ctx context.Context, token string) (*MaterialDownload, error) {
	materialID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download link")
	}
	material, err := s.findActive(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if material.FilePath == nil || *material.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download link does not match the material")
	}

	file, err := s.files.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	if err := s.repo.IncrementDownloadCount(ctx, materialID); err != nil {
		s.logger.Warn("failed to count material download", zap.String("material_id", materialID), zap.Error(err))
	}
	return &MaterialDownload{Material: material, File: file}, nil
}

func (s *MaterialService) findActive(ctx context.Context, id string) (*models.Material, error) {
	material, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	if !material.IsActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
	}
	return material, nil
}
