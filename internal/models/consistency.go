package models

import "time"

// IssueKind classifies a divergence between the stored representations.
type IssueKind string

const (
	IssueProgressOnly              IssueKind = "progress-only"
	IssueEnrollmentOnly            IssueKind = "enrollment-only"
	IssueApprovedWithoutEnrollment IssueKind = "approved-without-enrollment"
	IssuePendingWhileEnrolled      IssueKind = "pending-while-enrolled"
	IssueOrphanEnrollment          IssueKind = "orphan-enrollment"
	IssueOrphanProgress            IssueKind = "orphan-progress"
	IssueOrphanAccessRequest       IssueKind = "orphan-access-request"
)

// IssueKinds lists every kind in report order.
var IssueKinds = []IssueKind{
	IssueProgressOnly,
	IssueEnrollmentOnly,
	IssueApprovedWithoutEnrollment,
	IssuePendingWhileEnrolled,
	IssueOrphanEnrollment,
	IssueOrphanProgress,
	IssueOrphanAccessRequest,
}

// Valid reports whether k is a known kind.
func (k IssueKind) Valid() bool {
	for _, known := range IssueKinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsOrphan reports whether the kind refers to a row whose parent is gone.
func (k IssueKind) IsOrphan() bool {
	return k == IssueOrphanEnrollment || k == IssueOrphanProgress || k == IssueOrphanAccessRequest
}

// Issue is one detected divergence. RecordID points at the offending row.
type Issue struct {
	Kind      IssueKind `db:"-" json:"kind" validate:"required"`
	StudentID string    `db:"student_id" json:"student_id" validate:"required"`
	CourseID  string    `db:"course_id" json:"course_id" validate:"required"`
	RecordID  string    `db:"record_id" json:"record_id"`
}

// ConsistencyReport is the result of one audit pass.
type ConsistencyReport struct {
	Counts      map[IssueKind]int `json:"counts"`
	Total       int               `json:"total"`
	Issues      []Issue           `json:"issues"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// NewConsistencyReport returns a report with zero counts for every kind.
func NewConsistencyReport(generatedAt time.Time) *ConsistencyReport {
	counts := make(map[IssueKind]int, len(IssueKinds))
	for _, kind := range IssueKinds {
		counts[kind] = 0
	}
	return &ConsistencyReport{Counts: counts, Issues: []Issue{}, GeneratedAt: generatedAt}
}

// Add appends an issue and updates counts.
func (r *ConsistencyReport) Add(issue Issue) {
	r.Issues = append(r.Issues, issue)
	r.Counts[issue.Kind]++
	r.Total++
}

// RepairStatus is the outcome of a single repair.
type RepairStatus string

const (
	RepairStatusRepaired RepairStatus = "repaired"
	RepairStatusSkipped  RepairStatus = "skipped"
	RepairStatusErrored  RepairStatus = "errored"
)

// RepairAction names what a repair did.
type RepairAction string

const (
	RepairActionEnrollmentCreated RepairAction = "enrollment-created"
	RepairActionEnrollmentExisted RepairAction = "enrollment-existed"
	RepairActionShadowCreated     RepairAction = "shadow-created"
	RepairActionRequestClosed     RepairAction = "request-closed"
	RepairActionRowDeleted        RepairAction = "row-deleted"
	RepairActionNone              RepairAction = "none"
)

// RepairResult reports the outcome for one issue.
type RepairResult struct {
	Issue  Issue        `json:"issue"`
	Action RepairAction `json:"action"`
	Status RepairStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// RepairError is a failed repair.
type RepairError struct {
	Issue     Issue  `json:"issue"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// RepairCounts aggregates rows written by a repair run.
type RepairCounts struct {
	Created int `json:"created"`
	Deleted int `json:"deleted"`
}

// RepairSummary is the result of a repair run. Partial failure is reported in Errors.
type RepairSummary struct {
	Repaired RepairCounts   `json:"repaired"`
	Results  []RepairResult `json:"results"`
	Errors   []RepairError  `json:"errors"`
}
