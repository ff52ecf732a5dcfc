package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// UnitSet is a JSON array of completed unit ids.
type UnitSet []string

// Value implements driver.Valuer.
func (u UnitSet) Value() (driver.Value, error) {
	if u == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]string(u))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (u *UnitSet) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*u = UnitSet{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported completed_units type %T", src)
	}
	if len(raw) == 0 {
		*u = UnitSet{}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return fmt.Errorf("decode completed_units: %w", err)
	}
	*u = ids
	return nil
}

// ProgressShadow is the legacy per-pair progress record kept in step with enrollments.
type ProgressShadow struct {
	ID             string     `db:"id" json:"id"`
	StudentID      string     `db:"student_id" json:"student_id"`
	CourseID       string     `db:"course_id" json:"course_id"`
	TotalProgress  int        `db:"total_progress" json:"total_progress"`
	CompletedUnits UnitSet    `db:"completed_units" json:"completed_units"`
	LastAccessedAt *time.Time `db:"last_accessed_at" json:"last_accessed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
