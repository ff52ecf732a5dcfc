package models

import "time"

// Student is owned by the identity service; this service only reads it.
type Student struct {
	ID        string     `db:"id" json:"id"`
	FullName  string     `db:"full_name" json:"full_name"`
	Email     string     `db:"email" json:"email"`
	Active    bool       `db:"active" json:"active"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// CanEnroll reports whether the student may receive new enrollments.
func (s *Student) CanEnroll() bool {
	return s != nil && s.DeletedAt == nil && s.Active
}
