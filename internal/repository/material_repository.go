package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
)

const materialColumns = `id, title, subject_id, type, description, file_path, external_url, language, is_active, view_count, download_count, created_at, updated_at`

// MaterialRepository handles persistence of library materials.
type MaterialRepository struct {
	db *sqlx.DB
}

// NewMaterialRepository constructs the repository.
func NewMaterialRepository(db *sqlx.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// List returns active materials filtered by the provided criteria.
func (r *MaterialRepository) List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, int, error) {
	base := "FROM materials"
	conditions := []string{"is_active = TRUE"}
	var args []interface{}

	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", materialColumns, base+clause, size, offset)
	var materials []models.Material
	if err := r.db.SelectContext(ctx, &materials, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list materials: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count materials: %w", err)
	}
	return materials, total, nil
}

// FindByID returns a material by its ID.
func (r *MaterialRepository) FindByID(ctx context.Context, id string) (*models.Material, error) {
	query := fmt.Sprintf("SELECT %s FROM materials WHERE id = $1", materialColumns)
	var material models.Material
	if err := r.db.GetContext(ctx, &material, query, id); err != nil {
		return nil, err
	}
	return &material, nil
}

// Create persists a new material record.
func (r *MaterialRepository) Create(ctx context.Context, material *models.Material) error {
	if material.ID == "" {
		material.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if material.CreatedAt.IsZero() {
		material.CreatedAt = now
	}
	material.UpdatedAt = now
	const query = `INSERT INTO materials (id, title, subject_id, type, description, file_path, external_url, language, is_active, view_count, download_count, created_at, updated_at)
        VALUES (:id, :title, :subject_id, :type, :description, :file_path, :external_url, :language, :is_active, :view_count, :download_count, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, material); err != nil {
		return fmt.Errorf("create material: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a material.
func (r *MaterialRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE materials SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate material: %w", err)
	}
	return nil
}

// IncrementViewCount bumps the view counter atomically in the store.
func (r *MaterialRepository) IncrementViewCount(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE materials SET view_count = view_count + 1 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("increment view count: %w", err)
	}
	return nil
}

// IncrementDownloadCount bumps the download counter atomically in the store.
func (r *MaterialRepository) IncrementDownloadCount(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE materials SET download_count = download_count + 1 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("increment download count: %w", err)
	}
	return nil
}
