package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
)

// EnrollmentRepository manages canonical enrollments and their progress shadows.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository creates a new repository instance.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, course_id, status, progress_percent, source, created_at, updated_at`

// FindActive returns the active enrollment for the pair or nil when none exists.
func (r *EnrollmentRepository) FindActive(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status = $3`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, courseID, models.EnrollmentStatusActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active enrollment: %w", err)
	}
	return &enrollment, nil
}

// CreateWithShadow inserts the enrollment and its progress shadow in one transaction.
// An existing shadow row for the pair is kept untouched. A concurrent active
// enrollment for the same pair yields ErrActiveEnrollmentExists.
func (r *EnrollmentRepository) CreateWithShadow(ctx context.Context, enrollment *models.Enrollment, shadow *models.ProgressShadow) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertEnrollment = `INSERT INTO enrollments (` + enrollmentColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err = tx.ExecContext(ctx, insertEnrollment,
		enrollment.ID,
		enrollment.StudentID,
		enrollment.CourseID,
		enrollment.Status,
		enrollment.ProgressPercent,
		enrollment.Source,
		enrollment.CreatedAt,
		enrollment.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert enrollment: %w", ErrActiveEnrollmentExists)
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}

	if _, err = insertShadow(ctx, tx, shadow); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment: %w", err)
	}
	return nil
}
