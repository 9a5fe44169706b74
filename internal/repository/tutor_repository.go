package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
)

const tutorColumns = `id, user_id, tutor_code, full_name, email, phone, major, dob, created_at, updated_at`

// TutorRepository handles persistence of tutor profiles.
type TutorRepository struct {
	db *sqlx.DB
}

// NewTutorRepository constructs the repository.
func NewTutorRepository(db *sqlx.DB) *TutorRepository {
	return &TutorRepository{db: db}
}

// FindByID returns a tutor by its ID.
func (r *TutorRepository) FindByID(ctx context.Context, id string) (*models.Tutor, error) {
	query := fmt.Sprintf("SELECT %s FROM tutors WHERE id = $1", tutorColumns)
	var tutor models.Tutor
	if err := r.db.GetContext(ctx, &tutor, query, id); err != nil {
		return nil, err
	}
	return &tutor, nil
}

// FindByUserID returns the tutor profile linked to a user account.
func (r *TutorRepository) FindByUserID(ctx context.Context, userID string) (*models.Tutor, error) {
	query := fmt.Sprintf("SELECT %s FROM tutors WHERE user_id = $1", tutorColumns)
	var tutor models.Tutor
	if err := r.db.GetContext(ctx, &tutor, query, userID); err != nil {
		return nil, err
	}
	return &tutor, nil
}

// List returns all tutors ordered by name.
func (r *TutorRepository) List(ctx context.Context) ([]models.Tutor, error) {
	query := fmt.Sprintf("SELECT %s FROM tutors ORDER BY full_name ASC", tutorColumns)
	var tutors []models.Tutor
	if err := r.db.SelectContext(ctx, &tutors, query); err != nil {
		return nil, fmt.Errorf("list tutors: %w", err)
	}
	return tutors, nil
}

// ListUserIDs returns the user IDs of every tutor, used when fanning a new
// session request out to all tutors.
func (r *TutorRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, "SELECT user_id FROM tutors"); err != nil {
		return nil, fmt.Errorf("list tutor user ids: %w", err)
	}
	return ids, nil
}

// Create persists a new tutor profile.
func (r *TutorRepository) Create(ctx context.Context, tutor *models.Tutor) error {
	if tutor.ID == "" {
		tutor.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tutor.CreatedAt.IsZero() {
		tutor.CreatedAt = now
	}
	tutor.UpdatedAt = now
	const query = `INSERT INTO tutors (id, user_id, tutor_code, full_name, email, phone, major, dob, created_at, updated_at)
        VALUES (:id, :user_id, :tutor_code, :full_name, :email, :phone, :major, :dob, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, tutor); err != nil {
		return fmt.Errorf("create tutor: %w", err)
	}
	return nil
}

// SetExpertise replaces the tutor's subject expertise set.
func (r *TutorRepository) SetExpertise(ctx context.Context, tutorID string, subjectIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin expertise update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM tutor_expertise WHERE tutor_id = $1`, tutorID); err != nil {
		return fmt.Errorf("clear expertise: %w", err)
	}
	for _, subjectID := range subjectIDs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO tutor_expertise (tutor_id, subject_id) VALUES ($1, $2)`, tutorID, subjectID); err != nil {
			return fmt.Errorf("insert expertise: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit expertise update: %w", err)
	}
	return nil
}
