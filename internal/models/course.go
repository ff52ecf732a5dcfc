package models

import "time"

// CourseStatus is the publication state of a course.
type CourseStatus string

const (
	CourseStatusDraft     CourseStatus = "draft"
	CourseStatusPublished CourseStatus = "published"
	CourseStatusActive    CourseStatus = "active"
	CourseStatusArchived  CourseStatus = "archived"
)

// Course is owned by the catalog; this service only reads it.
type Course struct {
	ID               string       `db:"id" json:"id"`
	Title            string       `db:"title" json:"title"`
	Status           CourseStatus `db:"status" json:"status"`
	IsPublic         bool         `db:"is_public" json:"is_public"`
	RequiresApproval bool         `db:"requires_approval" json:"requires_approval"`
	PriceCents       int64        `db:"price_cents" json:"price_cents"`
	DeletedAt        *time.Time   `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Enrollable reports whether new enrollments may be created for the course.
func (c *Course) Enrollable() bool {
	if c == nil || c.DeletedAt != nil {
		return false
	}
	return c.Status == CourseStatusPublished || c.Status == CourseStatusActive
}

// IsFree reports whether the course has no price.
func (c *Course) IsFree() bool {
	return c != nil && c.PriceCents == 0
}
