package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
)

// FeedbackRepository persists feedback, session requests and technical reports.
type FeedbackRepository struct {
	db *sqlx.DB
}

// NewFeedbackRepository constructs the repository.
func NewFeedbackRepository(db *sqlx.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// ExistsForEnrollment reports whether feedback was already left for the enrollment.
func (r *FeedbackRepository) ExistsForEnrollment(ctx context.Context, enrollmentID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM feedback WHERE enrollment_id = $1 LIMIT 1", enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check feedback: %w", err)
	}
	return true, nil
}

// CreateFeedback persists a feedback row.
func (r *FeedbackRepository) CreateFeedback(ctx context.Context, fb *models.Feedback) error {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO feedback (id, enrollment_id, rating, comment, created_at)
        VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, fb.ID, fb.EnrollmentID, fb.Rating, fb.Comment, fb.CreatedAt); err != nil {
		return fmt.Errorf("create feedback: %w", err)
	}
	return nil
}

// ListFeedbackBySession returns all feedback rows for a session's enrollments.
func (r *FeedbackRepository) ListFeedbackBySession(ctx context.Context, sessionID string) ([]models.Feedback, error) {
	const query = `SELECT f.id, f.enrollment_id, f.rating, f.comment, f.created_at
        FROM feedback f
        JOIN enrollments e ON e.id = f.enrollment_id
        WHERE e.session_id = $1
        ORDER BY f.created_at DESC`
	var rows []models.Feedback
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session feedback: %w", err)
	}
	return rows, nil
}

// CreateSessionRequest persists a session request.
func (r *FeedbackRepository) CreateSessionRequest(ctx context.Context, req *models.SessionRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	const query = `INSERT INTO session_requests (id, student_id, subject, delivery_mode, date, start_time, end_time, created_at, updated_at)
        VALUES (:id, :student_id, :subject, :delivery_mode, :date, :start_time, :end_time, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create session request: %w", err)
	}
	return nil
}

// ListSessionRequests returns session requests, newest first.
func (r *FeedbackRepository) ListSessionRequests(ctx context.Context) ([]models.SessionRequest, error) {
	const query = `SELECT id, student_id, subject, delivery_mode, date, start_time, end_time, created_at, updated_at
        FROM session_requests ORDER BY created_at DESC`
	var requests []models.SessionRequest
	if err := r.db.SelectContext(ctx, &requests, query); err != nil {
		return nil, fmt.Errorf("list session requests: %w", err)
	}
	return requests, nil
}

// CreateTechnicalReport persists a technical report.
func (r *FeedbackRepository) CreateTechnicalReport(ctx context.Context, report *models.TechnicalReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	report.UpdatedAt = now
	if report.Status == "" {
		report.Status = models.ReportStatusPending
	}
	const query = `INSERT INTO technical_reports (id, reporter_id, title, description, priority, status, created_at, updated_at)
        VALUES (:id, :reporter_id, :title, :description, :priority, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create technical report: %w", err)
	}
	return nil
}

// FindTechnicalReport returns a report by ID.
func (r *FeedbackRepository) FindTechnicalReport(ctx context.Context, id string) (*models.TechnicalReport, error) {
	const query = `SELECT id, reporter_id, title, description, priority, status, created_at, updated_at
        FROM technical_reports WHERE id = $1`
	var report models.TechnicalReport
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		return nil, err
	}
	return &report, nil
}

// UpdateTechnicalReportStatus moves a report to a new handling status.
func (r *FeedbackRepository) UpdateTechnicalReportStatus(ctx context.Context, id string, status models.ReportStatus) error {
	const query = `UPDATE technical_reports SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	return nil
}
