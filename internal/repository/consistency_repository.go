package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
)

// ConsistencyRepository runs the cross-table divergence scans and orphan purges.
// Every query aliases the scanned table as x.
type ConsistencyRepository struct {
	db *sqlx.DB
}

// NewConsistencyRepository constructs the repository.
func NewConsistencyRepository(db *sqlx.DB) *ConsistencyRepository {
	return &ConsistencyRepository{db: db}
}

// orphanCondition matches rows whose student or course is missing or soft-deleted.
const orphanCondition = `(NOT EXISTS (SELECT 1 FROM students s WHERE s.id = x.student_id AND s.deleted_at IS NULL)
	OR NOT EXISTS (SELECT 1 FROM courses c WHERE c.id = x.course_id AND c.deleted_at IS NULL))`

// liveParents restricts a scan to rows whose student and course still exist.
const liveParents = `
JOIN students s ON s.id = x.student_id AND s.deleted_at IS NULL
JOIN courses c ON c.id = x.course_id AND c.deleted_at IS NULL`

const activeEnrollmentForX = `SELECT 1 FROM enrollments e WHERE e.student_id = x.student_id AND e.course_id = x.course_id AND e.status = 'active'`

var scanQueries = map[models.IssueKind]string{
	models.IssueProgressOnly: `SELECT x.id AS record_id, x.student_id, x.course_id FROM student_progress x` + liveParents + `
WHERE NOT EXISTS (` + activeEnrollmentForX + `)`,
	models.IssueEnrollmentOnly: `SELECT x.id AS record_id, x.student_id, x.course_id FROM enrollments x` + liveParents + `
WHERE x.status = 'active'
	AND NOT EXISTS (SELECT 1 FROM student_progress p WHERE p.student_id = x.student_id AND p.course_id = x.course_id)`,
	models.IssueApprovedWithoutEnrollment: `SELECT x.id AS record_id, x.student_id, x.course_id FROM access_requests x` + liveParents + `
WHERE x.status = 'approved' AND NOT EXISTS (` + activeEnrollmentForX + `)`,
	models.IssuePendingWhileEnrolled: `SELECT x.id AS record_id, x.student_id, x.course_id FROM access_requests x` + liveParents + `
WHERE x.status = 'pending' AND EXISTS (` + activeEnrollmentForX + `)`,
	models.IssueOrphanEnrollment: `SELECT x.id AS record_id, x.student_id, x.course_id FROM enrollments x
WHERE ` + orphanCondition,
	models.IssueOrphanProgress: `SELECT x.id AS record_id, x.student_id, x.course_id FROM student_progress x
WHERE ` + orphanCondition,
	models.IssueOrphanAccessRequest: `SELECT x.id AS record_id, x.student_id, x.course_id FROM access_requests x
WHERE ` + orphanCondition,
}

var orphanTables = map[models.IssueKind]string{
	models.IssueOrphanEnrollment:    "enrollments",
	models.IssueOrphanProgress:      "student_progress",
	models.IssueOrphanAccessRequest: "access_requests",
}

// Scan returns the issues of one kind, optionally limited to a single pair.
func (r *ConsistencyRepository) Scan(ctx context.Context, kind models.IssueKind, scope *models.EnrollmentKey) ([]models.Issue, error) {
	base, ok := scanQueries[kind]
	if !ok {
		return nil, fmt.Errorf("unknown issue kind %q", kind)
	}

	query := strings.Builder{}
	query.WriteString(base)
	args := []interface{}{}
	if scope != nil {
		args = append(args, scope.StudentID, scope.CourseID)
		query.WriteString("\n\tAND x.student_id = $1 AND x.course_id = $2")
	}
	query.WriteString("\nORDER BY x.student_id, x.course_id, x.id")

	var issues []models.Issue
	if err := r.db.SelectContext(ctx, &issues, query.String(), args...); err != nil {
		return nil, fmt.Errorf("scan %s: %w", kind, err)
	}
	for i := range issues {
		issues[i].Kind = kind
	}
	return issues, nil
}

// DeleteOrphan hard-deletes one orphan row, re-checking that it is still orphaned.
func (r *ConsistencyRepository) DeleteOrphan(ctx context.Context, kind models.IssueKind, id string) (int64, error) {
	table, ok := orphanTables[kind]
	if !ok {
		return 0, fmt.Errorf("issue kind %q is not an orphan kind", kind)
	}
	query := fmt.Sprintf("DELETE FROM %s x WHERE x.id = $1 AND %s", table, orphanCondition)
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("delete orphan %s: %w", table, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check orphan delete rows: %w", err)
	}
	return rows, nil
}

// DeleteAllOrphans purges orphan rows across the three child tables in one transaction.
func (r *ConsistencyRepository) DeleteAllOrphans(ctx context.Context) (deleted int64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin orphan cleanup: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"access_requests", "student_progress", "enrollments"} {
		result, execErr := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s x WHERE %s", table, orphanCondition))
		if execErr != nil {
			err = fmt.Errorf("delete orphan %s: %w", table, execErr)
			return 0, err
		}
		rows, rowsErr := result.RowsAffected()
		if rowsErr != nil {
			err = fmt.Errorf("check orphan %s rows: %w", table, rowsErr)
			return 0, err
		}
		deleted += rows
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit orphan cleanup: %w", err)
	}
	return deleted, nil
}
