package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
)

// ProgressRepository manages legacy progress shadow rows.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// InsertShadow creates the shadow row unless one already exists; it reports whether a row was written.
func (r *ProgressRepository) InsertShadow(ctx context.Context, shadow *models.ProgressShadow) (bool, error) {
	return insertShadow(ctx, r.db, shadow)
}

func insertShadow(ctx context.Context, exec sqlx.ExecerContext, shadow *models.ProgressShadow) (bool, error) {
	const query = `INSERT INTO student_progress (id, student_id, course_id, total_progress, completed_units, last_accessed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (student_id, course_id) DO NOTHING`
	result, err := exec.ExecContext(ctx, query,
		shadow.ID,
		shadow.StudentID,
		shadow.CourseID,
		shadow.TotalProgress,
		shadow.CompletedUnits,
		shadow.LastAccessedAt,
		shadow.CreatedAt,
		shadow.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert progress shadow: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check progress shadow rows: %w", err)
	}
	return rows > 0, nil
}
