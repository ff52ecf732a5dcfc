package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
)

// AccessRequestRepository persists the admin-approval workflow.
type AccessRequestRepository struct {
	db *sqlx.DB
}

// NewAccessRequestRepository constructs the repository.
func NewAccessRequestRepository(db *sqlx.DB) *AccessRequestRepository {
	return &AccessRequestRepository{db: db}
}

const accessRequestColumns = `id, student_id, course_id, status, reason, reviewed_by, reviewed_at, rejection_reason, requested_at, updated_at`

// Create inserts a pending request. A concurrent pending request for the pair yields ErrPendingRequestExists.
func (r *AccessRequestRepository) Create(ctx context.Context, req *models.AccessRequest) error {
	const query = `INSERT INTO access_requests (` + accessRequestColumns + `)
VALUES (:id, :student_id, :course_id, :status, :reason, :reviewed_by, :reviewed_at, :rejection_reason, :requested_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert access request: %w", ErrPendingRequestExists)
		}
		return fmt.Errorf("insert access request: %w", err)
	}
	return nil
}

// GetByID returns the request; sql.ErrNoRows when absent.
func (r *AccessRequestRepository) GetByID(ctx context.Context, id string) (*models.AccessRequest, error) {
	const query = `SELECT ` + accessRequestColumns + ` FROM access_requests WHERE id = $1`
	var req models.AccessRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// FindPending returns the pending request for the pair or nil.
func (r *AccessRequestRepository) FindPending(ctx context.Context, studentID, courseID string) (*models.AccessRequest, error) {
	const query = `SELECT ` + accessRequestColumns + ` FROM access_requests WHERE student_id = $1 AND course_id = $2 AND status = $3`
	var req models.AccessRequest
	if err := r.db.GetContext(ctx, &req, query, studentID, courseID, models.AccessRequestPending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find pending access request: %w", err)
	}
	return &req, nil
}

// List returns requests matching filter ordered by newest first, with the total count.
func (r *AccessRequestRepository) List(ctx context.Context, filter models.AccessRequestFilter) ([]models.AccessRequest, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM access_requests WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count access requests: %w", err)
	}

	page, size := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	query := fmt.Sprintf("SELECT %s FROM access_requests WHERE %s ORDER BY requested_at DESC, id ASC LIMIT %d OFFSET %d",
		accessRequestColumns, where, size, (page-1)*size)

	var items []models.AccessRequest
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list access requests: %w", err)
	}
	return items, total, nil
}

// ReviewAccessRequestParams records a review decision.
type ReviewAccessRequestParams struct {
	ID              string
	Status          models.AccessRequestStatus
	ReviewedBy      string
	ReviewedAt      time.Time
	RejectionReason *string
}

// MarkReviewed moves a pending request to its decided status. It returns
// sql.ErrNoRows when the request is no longer pending.
func (r *AccessRequestRepository) MarkReviewed(ctx context.Context, params ReviewAccessRequestParams) error {
	const query = `UPDATE access_requests
SET status = $2, reviewed_by = $3, reviewed_at = $4, rejection_reason = $5, updated_at = $4
WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, params.ID, params.Status, params.ReviewedBy, params.ReviewedAt, params.RejectionReason)
	if err != nil {
		return fmt.Errorf("update access request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check access request update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const deletePendingEnrolledQuery = `DELETE FROM access_requests
WHERE id = $1 AND status = 'pending'
AND EXISTS (
	SELECT 1 FROM enrollments e
	WHERE e.student_id = access_requests.student_id AND e.course_id = access_requests.course_id AND e.status = 'active'
)`

// DeletePending removes a request only while it is still pending and its
// pair already holds an active enrollment. Zero rows means there was nothing
// safe to close.
func (r *AccessRequestRepository) DeletePending(ctx context.Context, id string) (int64, error) {
	result, err := r.db.ExecContext(ctx, deletePendingEnrolledQuery, id)
	if err != nil {
		return 0, fmt.Errorf("delete pending access request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check access request delete rows: %w", err)
	}
	return rows, nil
}
