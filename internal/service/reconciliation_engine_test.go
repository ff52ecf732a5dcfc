package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
	appErrors "github.com/24Tech-io/nursepor-stable-sub008/pkg/errors"
)

// seedDivergence plants one issue of every non-orphan kind plus one orphan of each table.
func seedDivergence(h *harness) {
	h.seedCatalog([]string{"stu-1", "stu-2", "stu-3", "stu-4"}, "course-1", "course-gone")
	h.store.putShadow(models.ProgressShadow{ID: "p-only", StudentID: "stu-1", CourseID: "course-1", TotalProgress: 40})
	h.store.putEnrollment(models.Enrollment{ID: "e-only", StudentID: "stu-2", CourseID: "course-1", ProgressPercent: 25})
	h.store.putRequest(models.AccessRequest{ID: "approved", StudentID: "stu-3", CourseID: "course-1", Status: models.AccessRequestApproved})
	h.store.putEnrollment(models.Enrollment{ID: "e-4", StudentID: "stu-4", CourseID: "course-1"})
	h.store.putShadow(models.ProgressShadow{ID: "p-4", StudentID: "stu-4", CourseID: "course-1"})
	h.store.putRequest(models.AccessRequest{ID: "stale", StudentID: "stu-4", CourseID: "course-1", Status: models.AccessRequestPending})

	h.store.putEnrollment(models.Enrollment{ID: "e-orphan", StudentID: "stu-1", CourseID: "course-gone"})
	h.store.putShadow(models.ProgressShadow{ID: "p-orphan", StudentID: "stu-2", CourseID: "course-gone"})
	h.store.putRequest(models.AccessRequest{ID: "r-orphan", StudentID: "stu-3", CourseID: "course-gone", Status: models.AccessRequestPending})
	h.store.putEnrollment(models.Enrollment{ID: "e-ghost", StudentID: "ghost", CourseID: "course-1"})
	h.store.softDeleteCourse("course-gone")
}

func TestConsistencyAuditorReportsEveryKind(t *testing.T) {
	h := newHarness(t)
	seedDivergence(h)

	report, err := h.auditor.Audit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, report.Total)
	assert.Equal(t, map[models.IssueKind]int{
		models.IssueProgressOnly:              1,
		models.IssueEnrollmentOnly:            1,
		models.IssueApprovedWithoutEnrollment: 1,
		models.IssuePendingWhileEnrolled:      1,
		models.IssueOrphanEnrollment:          2,
		models.IssueOrphanProgress:            1,
		models.IssueOrphanAccessRequest:       1,
	}, report.Counts)

	// orphans never double count as pairing issues
	for _, issue := range report.Issues {
		if issue.CourseID == "course-gone" || issue.StudentID == "ghost" {
			assert.True(t, issue.Kind.IsOrphan(), "issue %+v", issue)
		}
	}
	assert.Equal(t, models.IssueProgressOnly, report.Issues[0].Kind)
	assert.Equal(t, "p-only", report.Issues[0].RecordID)
}

func TestConsistencyAuditorAuditPair(t *testing.T) {
	h := newHarness(t)
	seedDivergence(h)

	report, err := h.auditor.AuditPair(context.Background(), "stu-4", "course-1")
	require.NoError(t, err)
	require.Equal(t, 1, report.Total)
	assert.Equal(t, models.IssuePendingWhileEnrolled, report.Issues[0].Kind)
	assert.Equal(t, "stale", report.Issues[0].RecordID)

	clean, err := h.auditor.AuditPair(context.Background(), "stu-9", "course-1")
	require.NoError(t, err)
	assert.Zero(t, clean.Total)
	assert.Len(t, clean.Counts, len(models.IssueKinds))

	_, err = h.auditor.AuditPair(context.Background(), "", "course-1")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestConsistencyAuditorStorageFailure(t *testing.T) {
	store := newMemStore()
	store.scanErr = errors.New("connection refused")
	metrics := NewMetricsService()
	auditor := NewConsistencyAuditor(store, metrics, zap.NewNop())

	_, err := auditor.Audit(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrTransientStorage))
	assert.True(t, appErrors.IsRetryable(err))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.auditRuns.WithLabelValues("error")))
}

func TestConsistencyAuditorRecordsMetrics(t *testing.T) {
	h := newHarness(t)
	seedDivergence(h)
	metrics := NewMetricsService()
	auditor := NewConsistencyAuditor(h.store, metrics, zap.NewNop())

	_, err := auditor.Audit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.divergence.WithLabelValues(string(models.IssueOrphanEnrollment))))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.auditRuns.WithLabelValues("ok")))
}

func TestReconciliationEngineConverges(t *testing.T) {
	h := newHarness(t)
	seedDivergence(h)
	ctx := context.Background()

	summary, err := h.engine.Repair(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, summary.Errors)
	assert.Len(t, summary.Results, 8)
	// progress-only and approved-without-enrollment enroll, enrollment-only writes a shadow
	assert.Equal(t, 3, summary.Repaired.Created)
	// stale pending request plus four orphans
	assert.Equal(t, 5, summary.Repaired.Deleted)

	report, err := h.auditor.Audit(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Total, "issues: %+v", report.Issues)

	legacy := h.store.shadowFor("stu-1", "course-1")
	require.NotNil(t, legacy)
	assert.Equal(t, "p-only", legacy.ID)
	assert.Equal(t, 40, legacy.TotalProgress)

	backfilled := h.store.shadowFor("stu-2", "course-1")
	require.NotNil(t, backfilled)
	assert.Equal(t, 25, backfilled.TotalProgress)

	assert.Equal(t, 1, h.notifier.count(models.EventConsistencyRepaired))

	again, err := h.engine.Repair(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, again.Results)
	assert.Zero(t, again.Repaired.Created+again.Repaired.Deleted)
}

func TestReconciliationEngineIsolatesItemFailures(t *testing.T) {
	h := newHarness(t)
	h.seedCatalog([]string{"stu-1"}, "course-1")
	h.store.addStudent("stu-inactive", false)
	h.store.putShadow(models.ProgressShadow{ID: "p-bad", StudentID: "stu-inactive", CourseID: "course-1"})
	h.store.putShadow(models.ProgressShadow{ID: "p-good", StudentID: "stu-1", CourseID: "course-1"})

	summary, err := h.engine.Repair(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, summary.Results, 2)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "p-bad", summary.Errors[0].Issue.RecordID)
	assert.False(t, summary.Errors[0].Retryable)
	assert.Equal(t, 1, summary.Repaired.Created)

	statuses := map[string]models.RepairStatus{}
	for _, r := range summary.Results {
		statuses[r.Issue.RecordID] = r.Status
	}
	assert.Equal(t, models.RepairStatusErrored, statuses["p-bad"])
	assert.Equal(t, models.RepairStatusRepaired, statuses["p-good"])
}

func TestReconciliationEngineSkipsResolvedIssues(t *testing.T) {
	h := newHarness(t)
	h.seedCatalog([]string{"stu-1"}, "course-1")
	h.store.putEnrollment(models.Enrollment{ID: "e-1", StudentID: "stu-1", CourseID: "course-1"})
	h.store.putShadow(models.ProgressShadow{ID: "p-1", StudentID: "stu-1", CourseID: "course-1"})

	summary, err := h.engine.Repair(context.Background(), []models.Issue{
		{Kind: models.IssueEnrollmentOnly, StudentID: "stu-1", CourseID: "course-1", RecordID: "e-1"},
		{Kind: models.IssuePendingWhileEnrolled, StudentID: "stu-1", CourseID: "course-1", RecordID: "gone"},
		{Kind: models.IssueOrphanEnrollment, StudentID: "stu-1", CourseID: "course-1", RecordID: "e-1"},
		{Kind: models.IssueProgressOnly, StudentID: "stu-1", CourseID: "course-1", RecordID: "p-1"},
		{Kind: "mystery", StudentID: "stu-1", CourseID: "course-1"},
	})
	require.NoError(t, err)
	require.Len(t, summary.Results, 5)
	assert.Equal(t, models.RepairStatusSkipped, summary.Results[0].Status)
	assert.Equal(t, models.RepairStatusSkipped, summary.Results[1].Status)
	assert.Equal(t, models.RepairStatusSkipped, summary.Results[2].Status)
	assert.Equal(t, models.RepairStatusRepaired, summary.Results[3].Status)
	assert.Equal(t, models.RepairActionEnrollmentExisted, summary.Results[3].Action)
	assert.Equal(t, models.RepairStatusErrored, summary.Results[4].Status)
	assert.Zero(t, summary.Repaired.Created+summary.Repaired.Deleted)

	enrollments, shadows, _ := h.store.counts()
	assert.Equal(t, 1, enrollments)
	assert.Equal(t, 1, shadows)
	assert.Zero(t, h.notifier.count(models.EventConsistencyRepaired))
}

func TestReconciliationEngineKeepsPendingRequestWithoutEnrollment(t *testing.T) {
	h := newHarness(t)
	h.seedCatalog([]string{"stu-1"}, "course-1")
	h.store.putRequest(models.AccessRequest{ID: "r-1", StudentID: "stu-1", CourseID: "course-1", Status: models.AccessRequestPending})

	summary, err := h.engine.Repair(context.Background(), []models.Issue{
		{Kind: models.IssuePendingWhileEnrolled, StudentID: "stu-1", CourseID: "course-1", RecordID: "r-1"},
	})
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, models.RepairStatusSkipped, summary.Results[0].Status)
	assert.Equal(t, models.RepairActionNone, summary.Results[0].Action)
	assert.Zero(t, summary.Repaired.Deleted)

	_, _, requests := h.store.counts()
	assert.Equal(t, 1, requests)
}

func TestReconciliationEngineCleanupOrphans(t *testing.T) {
	h := newHarness(t)
	h.seedCatalog([]string{"stu-1", "stu-2", "stu-3"}, "course-doomed", "course-kept")
	ctx := context.Background()

	const n, m, k = 3, 2, 2
	students := []string{"stu-1", "stu-2", "stu-3"}
	for i := 0; i < n; i++ {
		h.store.putEnrollment(models.Enrollment{ID: "doomed-e-" + students[i], StudentID: students[i], CourseID: "course-doomed"})
	}
	for i := 0; i < m; i++ {
		h.store.putShadow(models.ProgressShadow{ID: "doomed-p-" + students[i], StudentID: students[i], CourseID: "course-doomed"})
	}
	for i := 0; i < k; i++ {
		h.store.putRequest(models.AccessRequest{ID: "doomed-r-" + students[i], StudentID: students[i], CourseID: "course-doomed", Status: models.AccessRequestApproved})
	}
	_, err := h.coordinator.Enroll(ctx, EnrollRequest{StudentID: "stu-1", CourseID: "course-kept", Source: models.EnrollmentSourceFree})
	require.NoError(t, err)
	h.store.putRequest(models.AccessRequest{ID: "kept-r", StudentID: "stu-2", CourseID: "course-kept", Status: models.AccessRequestRejected})

	h.store.softDeleteCourse("course-doomed")

	deleted, err := h.engine.CleanupOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, n+m+k, deleted)

	enrollments, shadows, requests := h.store.counts()
	assert.Equal(t, 1, enrollments)
	assert.Equal(t, 1, shadows)
	assert.Equal(t, 1, requests)

	report, err := h.auditor.Audit(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.Equal(t, 1, h.notifier.count(models.EventOrphansCleaned))

	deleted, err = h.engine.CleanupOrphans(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestReconciliationEngineAuditFailure(t *testing.T) {
	h := newHarness(t)
	h.store.scanErr = errors.New("connection refused")

	_, err := h.engine.Repair(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, appErrors.IsRetryable(err))
}

func TestLostEnrollmentWriteIsRecovered(t *testing.T) {
	h := newGatedHarness(t)
	ctx := context.Background()

	req, _, err := h.requests.Create(ctx, CreateAccessRequestInput{StudentID: "stu-1", CourseID: "course-1"})
	require.NoError(t, err)
	approved, err := h.requests.Approve(ctx, req.ID, ReviewInput{ReviewerID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, approved.Enrollment.Status)
	assert.Equal(t, 0, approved.Enrollment.ProgressPercent)

	report, err := h.auditor.Audit(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Total)

	h.store.deleteEnrollment("stu-1", "course-1")

	report, err = h.auditor.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Counts[models.IssueApprovedWithoutEnrollment])
	assert.Equal(t, 1, report.Counts[models.IssueProgressOnly])
	for _, issue := range report.Issues {
		assert.Equal(t, "stu-1", issue.StudentID)
		assert.Equal(t, "course-1", issue.CourseID)
	}

	summary, err := h.engine.Repair(ctx, report.Issues)
	require.NoError(t, err)
	assert.Empty(t, summary.Errors)
	assert.Equal(t, 1, summary.Repaired.Created)

	enrollment, err := h.store.FindActive(ctx, "stu-1", "course-1")
	require.NoError(t, err)
	require.NotNil(t, enrollment)

	report, err = h.auditor.Audit(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Total)
}

func TestAuditSchedulerRunOnce(t *testing.T) {
	h := newHarness(t)
	seedDivergence(h)
	scheduler := NewAuditScheduler(h.auditor, h.engine, time.Hour, zap.NewNop(), WithAutoRepair(true))
	assert.Nil(t, scheduler.LastReport())

	report, summary, err := scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, report.Total)
	require.NotNil(t, summary)
	assert.Empty(t, summary.Errors)
	assert.Same(t, report, scheduler.LastReport())

	report, summary, err = scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.Nil(t, summary)
}

func TestAuditSchedulerStartStop(t *testing.T) {
	h := newHarness(t)
	scheduler := NewAuditScheduler(h.auditor, nil, 10*time.Millisecond, zap.NewNop())

	scheduler.Start(context.Background())
	require.Eventually(t, func() bool { return scheduler.LastReport() != nil }, time.Second, 5*time.Millisecond)
	scheduler.Stop()
	scheduler.Stop()
}
