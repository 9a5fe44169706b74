package models

import "time"

// MaterialType categorises library materials.
type MaterialType string

const (
	MaterialTypeBook   MaterialType = "book"
	MaterialTypePaper  MaterialType = "paper"
	MaterialTypeSlides MaterialType = "slides"
	MaterialTypeNotes  MaterialType = "notes"
	MaterialTypeGuide  MaterialType = "guide"
	MaterialTypeOther  MaterialType = "other"
)

// Material is a shared library resource, either an uploaded file (FilePath)
// or a pointer to an external URL.
type Material struct {
	ID            string       `db:"id" json:"id"`
	Title         string       `db:"title" json:"title"`
	SubjectID     string       `db:"subject_id" json:"subject_id"`
	Type          MaterialType `db:"type" json:"type"`
	Description   string       `db:"description" json:"description,omitempty"`
	FilePath      *string      `db:"file_path" json:"-"`
	ExternalURL   *string      `db:"external_url" json:"external_url,omitempty"`
	Language      string       `db:"language" json:"language"`
	IsActive      bool         `db:"is_active" json:"is_active"`
	ViewCount     int          `db:"view_count" json:"view_count"`
	DownloadCount int          `db:"download_count" json:"download_count"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// MaterialFilter provides filters for listing materials.
type MaterialFilter struct {
	SubjectID string
	Type      MaterialType
	Search    string
	Page      int
	PageSize  int
}
