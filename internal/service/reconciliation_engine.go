package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	appErrors "github.com/24Tech-io/nursepor-stable-sub008/pkg/errors"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/events"
)

type shadowWriter interface {
	InsertShadow(ctx context.Context, shadow *models.ProgressShadow) (bool, error)
}

type pendingRequestCloser interface {
	DeletePending(ctx context.Context, id string) (int64, error)
}

type orphanPurger interface {
	DeleteOrphan(ctx context.Context, kind models.IssueKind, id string) (int64, error)
	DeleteAllOrphans(ctx context.Context) (int64, error)
}

type repairEnroller interface {
	enroller
	EnrollForRepair(ctx context.Context, studentID, courseID string) (*EnrollResult, error)
}

type auditRunner interface {
	Audit(ctx context.Context) (*models.ConsistencyReport, error)
}

// ReconciliationEngine repairs divergence reported by the auditor. Every issue
// is repaired independently so one failure never blocks the rest.
type ReconciliationEngine struct {
	auditor     auditRunner
	coordinator repairEnroller
	enrollments activeEnrollmentReader
	shadows     shadowWriter
	requests    pendingRequestCloser
	orphans     orphanPurger
	notifier    eventNotifier
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewReconciliationEngine wires the engine.
func NewReconciliationEngine(auditor auditRunner, coordinator repairEnroller, enrollments activeEnrollmentReader, shadows shadowWriter, requests pendingRequestCloser, orphans orphanPurger, notifier eventNotifier, metrics *MetricsService, logger *zap.Logger) *ReconciliationEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationEngine{
		auditor:     auditor,
		coordinator: coordinator,
		enrollments: enrollments,
		shadows:     shadows,
		requests:    requests,
		orphans:     orphans,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Repair fixes the given issues, auditing first when issues is nil.
// Only an audit failure is returned as an error; per-item failures land in the summary.
func (e *ReconciliationEngine) Repair(ctx context.Context, issues []models.Issue) (summary *models.RepairSummary, err error) {
	ctx, span := tracer.Start(ctx, "ReconciliationEngine.Repair")
	defer func() { endSpan(span, err) }()

	if issues == nil {
		report, err := e.auditor.Audit(ctx)
		if err != nil {
			return nil, err
		}
		issues = report.Issues
	}

	summary = &models.RepairSummary{Results: []models.RepairResult{}, Errors: []models.RepairError{}}
	for _, issue := range issues {
		result, created, deleted, itemErr := e.repairOne(ctx, issue)
		summary.Results = append(summary.Results, result)
		summary.Repaired.Created += created
		summary.Repaired.Deleted += deleted
		if itemErr != nil {
			summary.Errors = append(summary.Errors, models.RepairError{
				Issue:     issue,
				Error:     itemErr.Error(),
				Retryable: appErrors.IsRetryable(itemErr),
			})
		}
		e.metrics.RecordRepair(issue.Kind, result.Status)
	}
	span.SetAttributes(
		attribute.Int("repair.issues", len(issues)),
		attribute.Int("repair.errors", len(summary.Errors)),
	)

	e.logger.Info("reconciliation completed",
		zap.Int("issues", len(issues)),
		zap.Int("created", summary.Repaired.Created),
		zap.Int("deleted", summary.Repaired.Deleted),
		zap.Int("errors", len(summary.Errors)),
	)
	if summary.Repaired.Created+summary.Repaired.Deleted > 0 && e.notifier != nil {
		e.notifier.Notify(ctx, events.Event{
			Type: models.EventConsistencyRepaired,
			Payload: map[string]interface{}{
				"created": summary.Repaired.Created,
				"deleted": summary.Repaired.Deleted,
				"errors":  len(summary.Errors),
			},
		})
	}
	return summary, nil
}

// CleanupOrphans purges every orphaned row in one pass and returns how many were deleted.
func (e *ReconciliationEngine) CleanupOrphans(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "ReconciliationEngine.CleanupOrphans")
	deleted, err := e.orphans.DeleteAllOrphans(ctx)
	if err != nil {
		err = appErrors.WithCause(appErrors.ErrTransientStorage, err, "orphan cleanup failed")
		endSpan(span, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int64("orphans.deleted", deleted))
	endSpan(span, nil)

	e.metrics.RecordOrphansDeleted(int(deleted))
	e.logger.Info("orphan cleanup completed", zap.Int64("deleted", deleted))
	if deleted > 0 && e.notifier != nil {
		e.notifier.Notify(ctx, events.Event{
			Type:    models.EventOrphansCleaned,
			Payload: map[string]interface{}{"deleted": deleted},
		})
	}
	return int(deleted), nil
}

func (e *ReconciliationEngine) repairOne(ctx context.Context, issue models.Issue) (result models.RepairResult, created, deleted int, err error) {
	result = models.RepairResult{Issue: issue, Action: models.RepairActionNone}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("repair panicked: %v", r)
			created, deleted = 0, 0
		}
		switch {
		case err != nil:
			result.Status = models.RepairStatusErrored
			result.Error = err.Error()
			e.logger.Warn("repair failed", zap.String("kind", string(issue.Kind)), zap.String("record_id", issue.RecordID), zap.Error(err))
		case result.Status == "":
			result.Status = models.RepairStatusRepaired
		}
	}()

	switch issue.Kind {
	case models.IssueProgressOnly:
		enrolled, err := e.coordinator.EnrollForRepair(ctx, issue.StudentID, issue.CourseID)
		return enrollmentResult(result, enrolled, err)
	case models.IssueApprovedWithoutEnrollment:
		enrolled, err := e.coordinator.Enroll(ctx, EnrollRequest{StudentID: issue.StudentID, CourseID: issue.CourseID, Source: models.EnrollmentSourceRequestApproval})
		return enrollmentResult(result, enrolled, err)
	case models.IssueEnrollmentOnly:
		return e.repairMissingShadow(ctx, result, issue)
	case models.IssuePendingWhileEnrolled:
		n, err := e.requests.DeletePending(ctx, issue.RecordID)
		if err != nil {
			return result, 0, 0, appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to close pending request")
		}
		return deletionResult(result, models.RepairActionRequestClosed, n), 0, int(n), nil
	case models.IssueOrphanEnrollment, models.IssueOrphanProgress, models.IssueOrphanAccessRequest:
		n, err := e.orphans.DeleteOrphan(ctx, issue.Kind, issue.RecordID)
		if err != nil {
			return result, 0, 0, appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to delete orphan")
		}
		return deletionResult(result, models.RepairActionRowDeleted, n), 0, int(n), nil
	default:
		return result, 0, 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported issue kind %q", issue.Kind))
	}
}

func enrollmentResult(result models.RepairResult, enrolled *EnrollResult, err error) (models.RepairResult, int, int, error) {
	if err != nil {
		return result, 0, 0, err
	}
	if !enrolled.Created {
		result.Action = models.RepairActionEnrollmentExisted
		return result, 0, 0, nil
	}
	result.Action = models.RepairActionEnrollmentCreated
	return result, 1, 0, nil
}

func (e *ReconciliationEngine) repairMissingShadow(ctx context.Context, result models.RepairResult, issue models.Issue) (models.RepairResult, int, int, error) {
	enrollment, err := e.enrollments.FindActive(ctx, issue.StudentID, issue.CourseID)
	if err != nil {
		return result, 0, 0, appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to load enrollment")
	}
	if enrollment == nil {
		result.Status = models.RepairStatusSkipped
		return result, 0, 0, nil
	}
	now := e.now()
	written, err := e.shadows.InsertShadow(ctx, &models.ProgressShadow{
		ID:             uuid.NewString(),
		StudentID:      enrollment.StudentID,
		CourseID:       enrollment.CourseID,
		TotalProgress:  enrollment.ProgressPercent,
		CompletedUnits: models.UnitSet{},
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return result, 0, 0, appErrors.WithCause(appErrors.ErrTransientStorage, err, "failed to insert progress shadow")
	}
	if !written {
		result.Status = models.RepairStatusSkipped
		return result, 0, 0, nil
	}
	result.Action = models.RepairActionShadowCreated
	return result, 1, 0, nil
}

func deletionResult(result models.RepairResult, action models.RepairAction, n int64) models.RepairResult {
	if n == 0 {
		result.Status = models.RepairStatusSkipped
		return result
	}
	result.Action = action
	return result
}
