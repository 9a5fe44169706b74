package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
	"github.com/hcmut-ssps/tutoring-api/internal/repository"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
	"github.com/hcmut-ssps/tutoring-api/pkg/export"
	"github.com/hcmut-ssps/tutoring-api/pkg/jobs"
	"github.com/hcmut-ssps/tutoring-api/pkg/storage"
)

type exportRepository interface {
	Create(ctx context.Context, job *models.RosterExport) error
	FindByID(ctx context.Context, id string) (*models.RosterExport, error)
	MarkRunning(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, filePath string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type exportRosterRepository interface {
	ListRosterBySession(ctx context.Context, sessionID string) ([]repository.RosterRow, error)
}

// ExportService generates session roster files asynchronously: a request
// creates a pending job row and enqueues work; a queue worker renders the
// roster and stores the file for signed download.
type ExportService struct {
	repo     exportRepository
	rosters  exportRosterRepository
	sessions enrollmentSessionRepository
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	files    *storage.LocalStorage
	signer   *storage.SignedURLSigner
	queue    *jobs.Queue
	logger   *zap.Logger
}

// NewExportService constructs the service. Call BindQueue before Start.
func NewExportService(repo exportRepository, rosters exportRosterRepository, sessions enrollmentSessionRepository, files *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		repo:     repo,
		rosters:  rosters,
		sessions: sessions,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		files:    files,
		signer:   signer,
		logger:   logger,
	}
}

// BindQueue attaches the job queue used to run export work.
func (s *ExportService) BindQueue(queue *jobs.Queue) {
	s.queue = queue
}

// ExportStatusResponse is the job status plus a download token once done.
type ExportStatusResponse struct {
	Export      *models.RosterExport `json:"export"`
	DownloadURL string               `json:"download_url,omitempty"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"`
}

// Request creates a pending export for a session roster and enqueues it.
func (s *ExportService) Request(ctx context.Context, requestedBy, sessionID string, format models.ExportFormat) (*models.RosterExport, error) {
	if format != models.ExportFormatCSV && format != models.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if _, err := s.sessions.FindByID(ctx, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	job := &models.RosterExport{
		SessionID:   sessionID,
		RequestedBy: requestedBy,
		Format:      format,
		Status:      models.ExportStatusPending,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "roster_export", Payload: job.ID}); err != nil {
		s.logger.Error("failed to enqueue export", zap.String("export_id", job.ID), zap.Error(err))
		if merr := s.repo.MarkFailed(ctx, job.ID, "queue unavailable"); merr != nil {
			s.logger.Error("failed to mark export failed", zap.String("export_id", job.ID), zap.Error(merr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export")
	}
	return job, nil
}

// Status returns the export state and, when completed, a signed download URL.
func (s *ExportService) Status(ctx context.Context, exportID string) (*ExportStatusResponse, error) {
	job, err := s.repo.FindByID(ctx, exportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export")
	}

	resp := &ExportStatusResponse{Export: job}
	if job.Status == models.ExportStatusCompleted && job.FilePath != nil {
		token, expiresAt, serr := s.signer.Generate(job.ID, *job.FilePath)
		if serr != nil {
			return nil, appErrors.Wrap(serr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
		}
		resp.DownloadURL = token
		resp.ExpiresAt = &expiresAt
	}
	return resp, nil
}

// ResolveDownload verifies a signed token and opens the export file.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*models.RosterExport, *os.File, error) {
	exportID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download link")
	}
	job, err := s.repo.FindByID(ctx, exportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export")
	}
	if job.FilePath == nil || *job.FilePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "download link does not match the export")
	}
	file, err := s.files.Open(relPath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return job, file, nil
}

// HandleJob is the queue handler: it renders and stores one pending export.
func (s *ExportService) HandleJob(ctx context.Context, job jobs.Job) error {
	exportID, ok := job.Payload.(string)
	if !ok {
		s.logger.Error("export job carries unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.run(ctx, exportID); err != nil {
		if merr := s.repo.MarkFailed(ctx, exportID, err.Error()); merr != nil {
			s.logger.Error("failed to mark export failed", zap.String("export_id", exportID), zap.Error(merr))
		}
		return err
	}
	return nil
}

func (s *ExportService) run(ctx context.Context, exportID string) error {
	job, err := s.repo.FindByID(ctx, exportID)
	if err != nil {
		return fmt.Errorf("load export: %w", err)
	}
	if err := s.repo.MarkRunning(ctx, exportID); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}

	detail, err := s.sessions.FindDetailByID(ctx, job.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	roster, err := s.rosters.ListRosterBySession(ctx, job.SessionID)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}

	table := export.Table{
		Columns: []string{"Student ID", "Full Name", "Email", "Enrolled At"},
	}
	for _, row := range roster {
		table.Rows = append(table.Rows, []string{
			row.StudentCode,
			row.FullName,
			row.Email,
			row.EnrolledAt.Format(time.RFC3339),
		})
	}

	var payload []byte
	switch job.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(table)
	case models.ExportFormatPDF:
		title := fmt.Sprintf("Roster %s (%s)", detail.ClassCode, detail.SubjectName)
		payload, err = s.pdf.Render(table, title)
	default:
		err = fmt.Errorf("unsupported format %q", job.Format)
	}
	if err != nil {
		return fmt.Errorf("render export: %w", err)
	}

	filename := fmt.Sprintf("roster-%s-%s.%s", detail.ClassCode, job.ID, job.Format)
	relPath, err := s.files.Save(filename, payload)
	if err != nil {
		return fmt.Errorf("store export: %w", err)
	}
	if err := s.repo.MarkCompleted(ctx, exportID, relPath); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	s.logger.Info("roster export completed",
		zap.String("export_id", exportID),
		zap.String("session_id", job.SessionID),
		zap.Int("rows", len(roster)))
	return nil
}
