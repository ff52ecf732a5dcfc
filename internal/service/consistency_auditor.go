package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	appErrors "github.com/24Tech-io/nursepor-stable-sub008/pkg/errors"
)

type consistencyScanner interface {
	Scan(ctx context.Context, kind models.IssueKind, scope *models.EnrollmentKey) ([]models.Issue, error)
}

// ConsistencyAuditor detects divergence across enrollments, progress shadows
// and access requests. It takes no locks and never writes.
type ConsistencyAuditor struct {
	scanner consistencyScanner
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewConsistencyAuditor constructs the auditor.
func NewConsistencyAuditor(scanner consistencyScanner, metrics *MetricsService, logger *zap.Logger) *ConsistencyAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsistencyAuditor{
		scanner: scanner,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Audit scans every pair.
func (a *ConsistencyAuditor) Audit(ctx context.Context) (*models.ConsistencyReport, error) {
	return a.audit(ctx, nil)
}

// AuditPair scans a single (student, course) pair.
func (a *ConsistencyAuditor) AuditPair(ctx context.Context, studentID, courseID string) (*models.ConsistencyReport, error) {
	if studentID == "" || courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id and course_id are required")
	}
	return a.audit(ctx, &models.EnrollmentKey{StudentID: studentID, CourseID: courseID})
}

func (a *ConsistencyAuditor) audit(ctx context.Context, scope *models.EnrollmentKey) (report *models.ConsistencyReport, err error) {
	ctx, span := tracer.Start(ctx, "ConsistencyAuditor.Audit", trace.WithAttributes(attribute.Bool("audit.scoped", scope != nil)))
	defer func() { endSpan(span, err) }()

	start := time.Now()
	results := make([][]models.Issue, len(models.IssueKinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range models.IssueKinds {
		g.Go(func() error {
			issues, err := a.scanner.Scan(gctx, kind, scope)
			if err != nil {
				return fmt.Errorf("scan %s: %w", kind, err)
			}
			results[i] = issues
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.metrics.RecordAudit(nil, err)
		return nil, appErrors.WithCause(appErrors.ErrTransientStorage, err, "consistency scan failed")
	}

	report = models.NewConsistencyReport(a.now())
	for _, issues := range results {
		sortIssues(issues)
		for _, issue := range issues {
			report.Add(issue)
		}
	}
	span.SetAttributes(attribute.Int("audit.issues", report.Total))
	if scope == nil {
		a.metrics.RecordAudit(report, nil)
	}

	a.logger.Info("consistency audit completed",
		zap.Int("issues", report.Total),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("scoped", scope != nil),
	)
	return report, nil
}

func sortIssues(issues []models.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].StudentID != issues[j].StudentID {
			return issues[i].StudentID < issues[j].StudentID
		}
		if issues[i].CourseID != issues[j].CourseID {
			return issues[i].CourseID < issues[j].CourseID
		}
		return issues[i].RecordID < issues[j].RecordID
	})
}
