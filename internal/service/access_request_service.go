package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	"github.com/24Tech-io/nursepor-stable-sub008/internal/repository"
	appErrors "github.com/24Tech-io/nursepor-stable-sub008/pkg/errors"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/events"
)

type accessRequestStore interface {
	Create(ctx context.Context, req *models.AccessRequest) error
	GetByID(ctx context.Context, id string) (*models.AccessRequest, error)
	FindPending(ctx context.Context, studentID, courseID string) (*models.AccessRequest, error)
	List(ctx context.Context, filter models.AccessRequestFilter) ([]models.AccessRequest, int, error)
	MarkReviewed(ctx context.Context, params repository.ReviewAccessRequestParams) error
}

type activeEnrollmentReader interface {
	FindActive(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
}

type enroller interface {
	Enroll(ctx context.Context, req EnrollRequest) (*EnrollResult, error)
}

// CreateAccessRequestInput is a student's request for access to a gated course.
type CreateAccessRequestInput struct {
	StudentID string `json:"student_id" validate:"required,max=64"`
	CourseID  string `json:"course_id" validate:"required,max=64"`
	Reason    string `json:"reason" validate:"max=2000"`
}

// ReviewInput identifies the admin reviewing a request.
type ReviewInput struct {
	ReviewerID string `validate:"required,max=64"`
	Reason     string `validate:"max=2000"`
}

// ApprovalResult pairs an approved request with the enrollment it produced.
type ApprovalResult struct {
	Request    *models.AccessRequest `json:"request"`
	Enrollment *models.Enrollment    `json:"enrollment"`
}

// AccessRequestService drives the pending -> approved|rejected workflow.
// Approval goes through the coordinator, never writes enrollments itself.
type AccessRequestService struct {
	requests    accessRequestStore
	enrollments activeEnrollmentReader
	courses     courseReader
	coordinator enroller
	notifier    eventNotifier
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAccessRequestService wires the workflow.
func NewAccessRequestService(requests accessRequestStore, enrollments activeEnrollmentReader, courses courseReader, coordinator enroller, notifier eventNotifier, validate *validator.Validate, logger *zap.Logger) *AccessRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AccessRequestService{
		requests:    requests,
		enrollments: enrollments,
		courses:     courses,
		coordinator: coordinator,
		notifier:    notifier,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a pending request, or returns the existing pending one. The
// boolean reports whether a new request was stored.
func (s *AccessRequestService) Create(ctx context.Context, input CreateAccessRequestInput) (*models.AccessRequest, bool, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid access request payload")
	}

	course, err := s.courses.FindByID(ctx, input.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, false, appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to load course")
	}
	if course.DeletedAt != nil {
		return nil, false, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	if !course.Enrollable() {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "course is not open for enrollment")
	}

	enrolled, err := s.enrollments.FindActive(ctx, input.StudentID, input.CourseID)
	if err != nil {
		return nil, false, appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to load enrollment")
	}
	if enrolled != nil {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "student is already enrolled in this course")
	}

	if existing, err := s.requests.FindPending(ctx, input.StudentID, input.CourseID); err != nil {
		return nil, false, appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to load access request")
	} else if existing != nil {
		return existing, false, nil
	}

	now := s.now()
	req := &models.AccessRequest{
		ID:          uuid.NewString(),
		StudentID:   input.StudentID,
		CourseID:    input.CourseID,
		Status:      models.AccessRequestPending,
		RequestedAt: now,
		UpdatedAt:   now,
	}
	if reason := strings.TrimSpace(input.Reason); reason != "" {
		req.Reason = &reason
	}

	if err := s.requests.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrPendingRequestExists) {
			existing, findErr := s.requests.FindPending(ctx, input.StudentID, input.CourseID)
			if findErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to create access request")
	}
	return req, true, nil
}

// Get returns a request by id.
func (s *AccessRequestService) Get(ctx context.Context, id string) (*models.AccessRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "access request not found")
		}
		return nil, appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to load access request")
	}
	return req, nil
}

// List returns requests for the admin dashboard.
func (s *AccessRequestService) List(ctx context.Context, filter models.AccessRequestFilter) ([]models.AccessRequest, *models.Pagination, error) {
	switch filter.Status {
	case "", models.AccessRequestPending, models.AccessRequestApproved, models.AccessRequestRejected:
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = 50
	}
	items, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to list access requests")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Approve enrolls the student and marks the request approved. Approving an
// approved request again is a no-op that re-drives a missing enrollment.
func (s *AccessRequestService) Approve(ctx context.Context, id string, input ReviewInput) (result *ApprovalResult, err error) {
	ctx, span := tracer.Start(ctx, "AccessRequestService.Approve", trace.WithAttributes(attribute.String("access_request.id", id)))
	defer func() { endSpan(span, err) }()

	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch req.Status {
	case models.AccessRequestRejected:
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "access request was already rejected")
	case models.AccessRequestApproved:
		enrollment, err := s.ensureEnrollment(ctx, req)
		if err != nil {
			return nil, err
		}
		return &ApprovalResult{Request: req, Enrollment: enrollment}, nil
	}

	enrolled, err := s.coordinator.Enroll(ctx, EnrollRequest{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		Source:    models.EnrollmentSourceRequestApproval,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = s.requests.MarkReviewed(ctx, repository.ReviewAccessRequestParams{
		ID:         req.ID,
		Status:     models.AccessRequestApproved,
		ReviewedBy: input.ReviewerID,
		ReviewedAt: now,
	})
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to approve access request")
		}
		// a concurrent review landed first
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if !current.IsApproved() {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "access request was already rejected")
		}
		return &ApprovalResult{Request: current, Enrollment: enrolled.Enrollment}, nil
	}

	req.Status = models.AccessRequestApproved
	req.ReviewedBy = &input.ReviewerID
	req.ReviewedAt = &now
	req.UpdatedAt = now

	s.logger.Info("access request approved", zap.String("request_id", req.ID), zap.String("reviewer_id", input.ReviewerID))
	s.publish(ctx, models.EventAccessRequestApproved, req, map[string]interface{}{
		"reviewer_id":   input.ReviewerID,
		"enrollment_id": enrolled.Enrollment.ID,
	})
	return &ApprovalResult{Request: req, Enrollment: enrolled.Enrollment}, nil
}

// Reject closes a pending request. Rejecting a rejected request again is a no-op.
func (s *AccessRequestService) Reject(ctx context.Context, id string, input ReviewInput) (*models.AccessRequest, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch req.Status {
	case models.AccessRequestRejected:
		return req, nil
	case models.AccessRequestApproved:
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "access request was already approved")
	}

	now := s.now()
	var reason *string
	if trimmed := strings.TrimSpace(input.Reason); trimmed != "" {
		reason = &trimmed
	}
	err = s.requests.MarkReviewed(ctx, repository.ReviewAccessRequestParams{
		ID:              req.ID,
		Status:          models.AccessRequestRejected,
		ReviewedBy:      input.ReviewerID,
		ReviewedAt:      now,
		RejectionReason: reason,
	})
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to reject access request")
		}
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if !current.IsRejected() {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "access request was already approved")
		}
		return current, nil
	}

	req.Status = models.AccessRequestRejected
	req.ReviewedBy = &input.ReviewerID
	req.ReviewedAt = &now
	req.RejectionReason = reason
	req.UpdatedAt = now

	s.publish(ctx, models.EventAccessRequestRejected, req, map[string]interface{}{"reviewer_id": input.ReviewerID})
	return req, nil
}

func (s *AccessRequestService) ensureEnrollment(ctx context.Context, req *models.AccessRequest) (*models.Enrollment, error) {
	existing, err := s.enrollments.FindActive(ctx, req.StudentID, req.CourseID)
	if err != nil {
		return nil, appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to load enrollment")
	}
	if existing != nil {
		return existing, nil
	}
	s.logger.Warn("approved request without enrollment, re-driving enroll", zap.String("request_id", req.ID))
	result, err := s.coordinator.Enroll(ctx, EnrollRequest{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		Source:    models.EnrollmentSourceRequestApproval,
	})
	if err != nil {
		return nil, err
	}
	return result.Enrollment, nil
}

func (s *AccessRequestService) publish(ctx context.Context, eventType string, req *models.AccessRequest, payload map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, events.Event{
		Type:      eventType,
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		RequestID: req.ID,
		Payload:   payload,
	})
}
