//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import "time"

// Student is the subset of the student record reconciliation reads and writes.
type Student struct {
	StudentID       string        `json:"student_id"                 db:"student_id"`
	FirstName       string        `json:"first_name"                 db:"first_name"`
	LastName        string        `json:"last_name"                  db:"last_name"`
	ScreenName      string        `json:"screen_name"                db:"screen_name"`
	PacingStructure *string       `json:"pacing_structure,omitempty" db:"pacing_structure"`
	HoldSeverity    *HoldSeverity `json:"hold_severity,omitempty"    db:"hold_severity"`
	UpdatedAt       time.Time     `json:"updated_at"                 db:"updated_at"`
}

// SameSeverity reports whether two nullable severities are equal.
func SameSeverity(a, b *HoldSeverity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
