package models

import "time"

// ExportFormat is the requested roster export encoding.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportStatus tracks asynchronous roster export jobs.
type ExportStatus string

const (
	ExportStatusPending   ExportStatus = "pending"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusCompleted ExportStatus = "completed"
	ExportStatusFailed    ExportStatus = "failed"
)

// RosterExport is a persisted roster export job for one session.
type RosterExport struct {
	ID          string       `db:"id" json:"id"`
	SessionID   string       `db:"session_id" json:"session_id"`
	RequestedBy string       `db:"requested_by" json:"requested_by"`
	Format      ExportFormat `db:"format" json:"format"`
	Status      ExportStatus `db:"status" json:"status"`
	FilePath    *string      `db:"file_path" json:"-"`
	Error       *string      `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	CompletedAt *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
}
