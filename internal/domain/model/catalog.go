//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"strings"
	"time"
)

// Rule-set identifiers, which double as pacing structure ids.
const (
	RuleSetStrict   = "S"
	RuleSetModerate = "M"
	RuleSetOpen     = "O"
)

// ScheduleSourcePace marks pacing structures whose deadlines come from the
// pacing engine. Other schedule sources are ignored by rule-set checks.
const ScheduleSourcePace = "pace"

// InstructionTypeOther marks sections that are not paced.
const InstructionTypeOther = "OT"

// Term is an academic term. Exactly one term is active at a time.
type Term struct {
	TermID    string     `json:"term_id"              db:"term_id"`
	Active    bool       `json:"active"               db:"active"`
	StartDate *time.Time `json:"start_date,omitempty" db:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"   db:"end_date"`
}

// CourseSection is a catalog entry for one section in one term.
type CourseSection struct {
	TermID          string `json:"term_id"          db:"term_id"`
	CourseID        string `json:"course_id"        db:"course_id"`
	SectionID       string `json:"section_id"       db:"section_id"`
	InstructionType string `json:"instruction_type" db:"instruction_type"`
	PacingStructure string `json:"pacing_structure" db:"pacing_structure"`
}

// PacingStructure is a rule-set profile referenced by course sections. Its id
// is the rule-set identifier (RuleSetStrict and friends).
type PacingStructure struct {
	TermID            string `json:"term_id"             db:"term_id"`
	PacingStructureID string `json:"pacing_structure_id" db:"pacing_structure_id"`
	ScheduleSource    string `json:"schedule_source"     db:"schedule_source"`
}

// Paced reports whether the structure participates in rule-set checks.
func (p *PacingStructure) Paced() bool {
	return strings.EqualFold(p.ScheduleSource, ScheduleSourcePace)
}

// PlacementCredit records a placement-exam outcome for a course.
type PlacementCredit struct {
	StudentID   string     `json:"student_id"             db:"student_id"`
	CourseID    string     `json:"course_id"              db:"course_id"`
	ExamPlaced  string     `json:"exam_placed"            db:"exam_placed"`
	DateRefused *time.Time `json:"date_refused,omitempty" db:"date_refused"`
}

// ExamPlacedCredit is the exam-placed code for credit earned by placement.
const ExamPlacedCredit = "C"

// ExamPlacedMirror is the exam-placed code written on mirror rows backed by
// a placement credit.
const ExamPlacedMirror = "M"

// Grants reports whether the credit corroborates a registration in course.
func (c *PlacementCredit) Grants(courseID string) bool {
	return c.CourseID == courseID && c.ExamPlaced == ExamPlacedCredit && c.DateRefused == nil
}
