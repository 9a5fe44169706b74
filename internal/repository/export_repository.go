package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
)

const exportColumns = `id, session_id, requested_by, format, status, file_path, error, created_at, completed_at`

// ExportRepository tracks roster export jobs.
type ExportRepository struct {
	db *sqlx.DB
}

// NewExportRepository constructs the repository.
func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Create persists a new pending export job.
func (r *ExportRepository) Create(ctx context.Context, job *models.RosterExport) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusPending
	}
	const query = `INSERT INTO roster_exports (id, session_id, requested_by, format, status, file_path, error, created_at, completed_at)
        VALUES (:id, :session_id, :requested_by, :format, :status, :file_path, :error, :created_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create roster export: %w", err)
	}
	return nil
}

// FindByID returns an export job by its ID.
func (r *ExportRepository) FindByID(ctx context.Context, id string) (*models.RosterExport, error) {
	query := fmt.Sprintf("SELECT %s FROM roster_exports WHERE id = $1", exportColumns)
	var job models.RosterExport
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkRunning flags the job as picked up by a worker.
func (r *ExportRepository) MarkRunning(ctx context.Context, id string) error {
	const query = `UPDATE roster_exports SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ExportStatusRunning); err != nil {
		return fmt.Errorf("mark export running: %w", err)
	}
	return nil
}

// MarkCompleted records the generated file path.
func (r *ExportRepository) MarkCompleted(ctx context.Context, id, filePath string) error {
	const query = `UPDATE roster_exports SET status = $2, file_path = $3, completed_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ExportStatusCompleted, filePath, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark export completed: %w", err)
	}
	return nil
}

// MarkFailed records the failure reason.
func (r *ExportRepository) MarkFailed(ctx context.Context, id, reason string) error {
	const query = `UPDATE roster_exports SET status = $2, error = $3, completed_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ExportStatusFailed, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark export failed: %w", err)
	}
	return nil
}
