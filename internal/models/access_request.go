package models

import "time"

// AccessRequestStatus is the review state of an access request.
type AccessRequestStatus string

const (
	AccessRequestPending  AccessRequestStatus = "pending"
	AccessRequestApproved AccessRequestStatus = "approved"
	AccessRequestRejected AccessRequestStatus = "rejected"
)

// AccessRequest is a student's request for admin-approved access to a course.
type AccessRequest struct {
	ID              string              `db:"id" json:"id"`
	StudentID       string              `db:"student_id" json:"student_id"`
	CourseID        string              `db:"course_id" json:"course_id"`
	Status          AccessRequestStatus `db:"status" json:"status"`
	Reason          *string             `db:"reason" json:"reason,omitempty"`
	ReviewedBy      *string             `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time          `db:"reviewed_at" json:"reviewed_at,omitempty"`
	RejectionReason *string             `db:"rejection_reason" json:"rejection_reason,omitempty"`
	RequestedAt     time.Time           `db:"requested_at" json:"requested_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// IsPending reports whether the request still awaits review.
func (r *AccessRequest) IsPending() bool { return r.Status == AccessRequestPending }

// IsApproved reports whether the request was approved.
func (r *AccessRequest) IsApproved() bool { return r.Status == AccessRequestApproved }

// IsRejected reports whether the request was rejected.
func (r *AccessRequest) IsRejected() bool { return r.Status == AccessRequestRejected }

// AccessRequestFilter narrows access request listings.
type AccessRequestFilter struct {
	Status    AccessRequestStatus
	StudentID string
	CourseID  string
	Page      int
	PageSize  int
}
