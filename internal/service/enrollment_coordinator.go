package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	"github.com/24Tech-io/nursepor-stable-sub008/internal/repository"
	appErrors "github.com/24Tech-io/nursepor-stable-sub008/pkg/errors"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/events"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/lock"
)

type enrollmentStore interface {
	FindActive(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	CreateWithShadow(ctx context.Context, enrollment *models.Enrollment, shadow *models.ProgressShadow) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type eventNotifier interface {
	Notify(ctx context.Context, event events.Event)
}

// EnrollRequest asks for an active enrollment of a student in a course.
// The reconciliation source is not accepted here; see EnrollForRepair.
type EnrollRequest struct {
	StudentID string                  `json:"student_id" validate:"required,max=64"`
	CourseID  string                  `json:"course_id" validate:"required,max=64"`
	Source    models.EnrollmentSource `json:"source" validate:"required,oneof=free payment request-approval public-direct"`
}

// EnrollResult carries the active enrollment and whether this call created it.
type EnrollResult struct {
	Enrollment *models.Enrollment `json:"enrollment"`
	Created    bool               `json:"created"`
}

// EnrollmentCoordinator is the only writer of enrollments. Each pair is
// serialised through the operation lock and written in one transaction
// together with its progress shadow.
type EnrollmentCoordinator struct {
	store     enrollmentStore
	courses   courseReader
	students  studentReader
	locker    lock.Locker
	notifier  eventNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// CoordinatorOption customises an EnrollmentCoordinator.
type CoordinatorOption func(*EnrollmentCoordinator)

// WithCoordinatorNotifier sets the sync notifier.
func WithCoordinatorNotifier(n eventNotifier) CoordinatorOption {
	return func(c *EnrollmentCoordinator) { c.notifier = n }
}

// WithCoordinatorMetrics sets the metrics sink.
func WithCoordinatorMetrics(m *MetricsService) CoordinatorOption {
	return func(c *EnrollmentCoordinator) { c.metrics = m }
}

// WithCoordinatorClock overrides the clock.
func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *EnrollmentCoordinator) { c.now = now }
}

// NewEnrollmentCoordinator constructs the coordinator.
func NewEnrollmentCoordinator(store enrollmentStore, courses courseReader, students studentReader, locker lock.Locker, validate *validator.Validate, logger *zap.Logger, opts ...CoordinatorOption) *EnrollmentCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	c := &EnrollmentCoordinator{
		store:     store,
		courses:   courses,
		students:  students,
		locker:    locker,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enroll guarantees an active enrollment for the pair, creating it at most once.
func (c *EnrollmentCoordinator) Enroll(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	if err := c.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	return c.enroll(ctx, req)
}

// EnrollForRepair enrolls the pair with the reconciliation source, which
// skips the price and visibility gates. Only the reconciliation engine calls it.
func (c *EnrollmentCoordinator) EnrollForRepair(ctx context.Context, studentID, courseID string) (*EnrollResult, error) {
	req := EnrollRequest{StudentID: studentID, CourseID: courseID, Source: models.EnrollmentSourceReconciliation}
	if err := c.validator.StructExcept(req, "Source"); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	return c.enroll(ctx, req)
}

func (c *EnrollmentCoordinator) enroll(ctx context.Context, req EnrollRequest) (result *EnrollResult, err error) {
	ctx, span := tracer.Start(ctx, "EnrollmentCoordinator.Enroll", trace.WithAttributes(
		attribute.String("student.id", req.StudentID),
		attribute.String("course.id", req.CourseID),
		attribute.String("enrollment.source", string(req.Source)),
	))
	defer func() { endSpan(span, err) }()

	if err := c.checkEligibility(ctx, req); err != nil {
		c.metrics.RecordEnrollment(req.Source, "rejected")
		return nil, err
	}

	err = c.locker.WithLock(ctx, lock.EnrollKey(req.StudentID, req.CourseID), func(ctx context.Context) error {
		existing, err := c.store.FindActive(ctx, req.StudentID, req.CourseID)
		if err != nil {
			return appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to load enrollment")
		}
		if existing != nil {
			result = &EnrollResult{Enrollment: existing}
			return nil
		}

		now := c.now()
		enrollment := &models.Enrollment{
			ID:        uuid.NewString(),
			StudentID: req.StudentID,
			CourseID:  req.CourseID,
			Status:    models.EnrollmentStatusActive,
			Source:    req.Source,
			CreatedAt: now,
			UpdatedAt: now,
		}
		shadow := &models.ProgressShadow{
			ID:             uuid.NewString(),
			StudentID:      req.StudentID,
			CourseID:       req.CourseID,
			CompletedUnits: models.UnitSet{},
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		// the commit must not be abandoned halfway by a caller disconnect
		if err := c.store.CreateWithShadow(context.WithoutCancel(ctx), enrollment, shadow); err != nil {
			if errors.Is(err, repository.ErrActiveEnrollmentExists) {
				winner, findErr := c.store.FindActive(ctx, req.StudentID, req.CourseID)
				if findErr == nil && winner != nil {
					result = &EnrollResult{Enrollment: winner}
					return nil
				}
			}
			return appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to create enrollment")
		}
		result = &EnrollResult{Enrollment: enrollment, Created: true}
		return nil
	})
	if err != nil {
		err = c.translateLockError(err)
		c.metrics.RecordEnrollment(req.Source, "failed")
		c.logger.Warn("enroll failed",
			zap.String("student_id", req.StudentID),
			zap.String("course_id", req.CourseID),
			zap.String("source", string(req.Source)),
			zap.Error(err),
		)
		return nil, err
	}

	c.publish(ctx, req, result)
	return result, nil
}

// EnrollWithRetry retries Enroll on retryable failures with exponential backoff bounded by maxElapsed.
func (c *EnrollmentCoordinator) EnrollWithRetry(ctx context.Context, req EnrollRequest, maxElapsed time.Duration) (*EnrollResult, error) {
	if maxElapsed <= 0 {
		maxElapsed = 15 * time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	attempt := 0
	return backoff.Retry(ctx, func() (*EnrollResult, error) {
		attempt++
		result, err := c.Enroll(ctx, req)
		if err == nil {
			return result, nil
		}
		if !appErrors.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		c.logger.Info("retrying enroll", zap.Int("attempt", attempt), zap.String("student_id", req.StudentID), zap.String("course_id", req.CourseID), zap.Error(err))
		return nil, err
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(maxElapsed))
}

func (c *EnrollmentCoordinator) checkEligibility(ctx context.Context, req EnrollRequest) error {
	course, err := c.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to load course")
	}
	if course.DeletedAt != nil {
		return appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	if !course.Enrollable() {
		return appErrors.Clone(appErrors.ErrValidation, "course is not open for enrollment")
	}

	student, err := c.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to load student")
	}
	if student.DeletedAt != nil {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if !student.CanEnroll() {
		return appErrors.Clone(appErrors.ErrValidation, "student account is inactive")
	}

	switch req.Source {
	case models.EnrollmentSourceFree:
		if !course.IsFree() {
			return appErrors.Clone(appErrors.ErrValidation, "course is not free")
		}
		if course.RequiresApproval {
			return appErrors.Clone(appErrors.ErrValidation, "course requires approval")
		}
	case models.EnrollmentSourcePublicDirect:
		if !course.IsPublic {
			return appErrors.Clone(appErrors.ErrValidation, "course is not public")
		}
		if course.RequiresApproval {
			return appErrors.Clone(appErrors.ErrValidation, "course requires approval")
		}
	}
	return nil
}

func (c *EnrollmentCoordinator) translateLockError(err error) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, lock.ErrTimeout):
		return appErrors.WithCause(appErrors.ErrLockTimeout, err, "enrollment is busy, retry shortly")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return appErrors.WithCause(appErrors.ErrLockTimeout, err, "enrollment lock wait aborted")
	default:
		return appErrors.WithCause(appErrors.ErrTransientStorage, err, "operation lock unavailable")
	}
}

func (c *EnrollmentCoordinator) publish(ctx context.Context, req EnrollRequest, result *EnrollResult) {
	eventType := models.EventEnrollmentAlreadyExists
	outcome := "existing"
	if result.Created {
		eventType = models.EventEnrollmentCreated
		outcome = "created"
	}
	c.metrics.RecordEnrollment(req.Source, outcome)
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(ctx, events.Event{
		Type:      eventType,
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		Source:    string(req.Source),
		Payload:   map[string]interface{}{"enrollment_id": result.Enrollment.ID},
	})
}
