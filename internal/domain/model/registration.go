//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"strings"
	"time"
)

// OpenStatus is the mirror-side lifecycle of a registration row.
type OpenStatus string

const (
	OpenStatusActive       OpenStatus = "Y"
	OpenStatusDropped      OpenStatus = "D"
	OpenStatusGradePending OpenStatus = "G"
)

// Valid reports whether the open status is supported.
func (s OpenStatus) Valid() bool {
	switch s {
	case OpenStatusActive, OpenStatusDropped, OpenStatusGradePending:
		return true
	default:
		return false
	}
}

// RegistrationKey identifies a registration within one student's term.
type RegistrationKey struct {
	CourseID  string
	SectionID string
}

// String renders the key as "COURSE/SECTION" for reports.
func (k RegistrationKey) String() string { return k.CourseID + "/" + k.SectionID }

// ExternalRegistration is one row of the live registration snapshot as
// reported by the system of record. A fresh fetch replaces the previous
// snapshot for the student entirely.
type ExternalRegistration struct {
	StudentID          string `json:"student_id"`
	TermID             string `json:"term_id"`
	CourseID           string `json:"course_id"`
	SectionID          string `json:"section_id"`
	RegistrationStatus string `json:"registration_status,omitempty"`
	GradingOption      string `json:"grading_option,omitempty"`
	InstructionType    string `json:"instruction_type,omitempty"`
	Withdrawn          bool   `json:"withdrawn"`
}

// Key returns the course/section key of the row.
func (r ExternalRegistration) Key() RegistrationKey {
	return RegistrationKey{CourseID: r.CourseID, SectionID: r.SectionID}
}

// Normalize trims identifiers so catalog lookups are exact.
func (r ExternalRegistration) Normalize() ExternalRegistration {
	r.StudentID = strings.TrimSpace(r.StudentID)
	r.TermID = strings.TrimSpace(r.TermID)
	r.CourseID = strings.TrimSpace(r.CourseID)
	r.SectionID = strings.TrimSpace(r.SectionID)
	r.RegistrationStatus = strings.TrimSpace(r.RegistrationStatus)
	r.GradingOption = strings.TrimSpace(r.GradingOption)
	r.InstructionType = strings.TrimSpace(r.InstructionType)
	return r
}

// LocalRegistration is the mirrored counterpart of an external registration.
// Rows are never deleted; a drop flips OpenStatus to Dropped.
type LocalRegistration struct {
	StudentID            string     `json:"student_id"             db:"student_id"`
	TermID               string     `json:"term_id"                db:"term_id"`
	CourseID             string     `json:"course_id"              db:"course_id"`
	SectionID            string     `json:"section_id"             db:"section_id"`
	OpenStatus           OpenStatus `json:"open_status"            db:"open_status"`
	Completed            bool       `json:"completed"              db:"completed"`
	InProgressIncomplete bool       `json:"in_progress_incomplete" db:"in_progress_incomplete"`
	GradingOption        string     `json:"grading_option"         db:"grading_option"`
	InstructionType      string     `json:"instruction_type"       db:"instruction_type"`
	RegistrationStatus   string     `json:"registration_status"    db:"registration_status"`
	ExamPlaced           string     `json:"exam_placed"            db:"exam_placed"`
	FinalClassRoll       bool       `json:"final_class_roll"       db:"final_class_roll"`
	LastSyncDate         *time.Time `json:"last_sync_date"         db:"last_sync_date"`
	CreatedAt            time.Time  `json:"created_at"             db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"             db:"updated_at"`
}

// Key returns the course/section key of the row.
func (r *LocalRegistration) Key() RegistrationKey {
	return RegistrationKey{CourseID: r.CourseID, SectionID: r.SectionID}
}

// IsDropped reports whether the row has been soft-deleted.
func (r *LocalRegistration) IsDropped() bool { return r.OpenStatus == OpenStatusDropped }

// RegistrationChanges lists the columns a reconciliation pass may rewrite on
// an existing mirror row. Nil fields are left untouched.
type RegistrationChanges struct {
	GradingOption      *string
	InstructionType    *string
	RegistrationStatus *string
	OpenStatus         *OpenStatus
	FinalClassRoll     *bool
	LastSyncDate       *time.Time
}

// Empty reports whether no column would change.
func (c RegistrationChanges) Empty() bool {
	return c.GradingOption == nil && c.InstructionType == nil && c.RegistrationStatus == nil &&
		c.OpenStatus == nil && c.FinalClassRoll == nil
}
