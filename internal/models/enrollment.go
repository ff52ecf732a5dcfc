package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// EnrollmentStatusActive is the only status this service writes.
const EnrollmentStatusActive EnrollmentStatus = "active"

// EnrollmentSource records which path created an enrollment.
type EnrollmentSource string

const (
	EnrollmentSourceFree            EnrollmentSource = "free"
	EnrollmentSourcePayment         EnrollmentSource = "payment"
	EnrollmentSourceRequestApproval EnrollmentSource = "request-approval"
	EnrollmentSourcePublicDirect    EnrollmentSource = "public-direct"
	// EnrollmentSourceReconciliation is reserved for repairs and skips the price and visibility gates.
	EnrollmentSourceReconciliation EnrollmentSource = "reconciliation"
)

// Enrollment is the canonical record granting a student access to a course.
type Enrollment struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	CourseID        string           `db:"course_id" json:"course_id"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	ProgressPercent int              `db:"progress_percent" json:"progress_percent"`
	Source          EnrollmentSource `db:"source" json:"source"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentKey identifies a (student, course) pair.
type EnrollmentKey struct {
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`
}
