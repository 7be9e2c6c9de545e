package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/srbenoit/mathops-sub032/internal/domain/model"
)

// Seeder inserts catalog and mirror fixtures. Every method fails the test
// on error.
type Seeder struct {
	t  testing.TB
	db *sql.DB
}

// NewSeeder creates a Seeder bound to db.
func NewSeeder(t testing.TB, db *sql.DB) *Seeder {
	return &Seeder{t: t, db: db}
}

func (s *Seeder) exec(query string, args ...any) {
	s.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.t.Fatalf("seed failed: %v\nquery: %s", err, query)
	}
}

// Term inserts a term. Only one term may be active.
func (s *Seeder) Term(termID string, active bool) *Seeder {
	s.t.Helper()
	s.exec(`INSERT INTO terms (term_id, active) VALUES ($1, $2)`, termID, active)
	return s
}

// PacingStructure inserts a pacing structure for the term.
func (s *Seeder) PacingStructure(termID, id, scheduleSource string) *Seeder {
	s.t.Helper()
	s.exec(`INSERT INTO pacing_structures (term_id, pacing_structure_id, schedule_source) VALUES ($1, $2, $3)`,
		termID, id, scheduleSource)
	return s
}

// Section inserts a catalog section.
func (s *Seeder) Section(cs model.CourseSection) *Seeder {
	s.t.Helper()
	s.exec(`INSERT INTO course_sections (term_id, course_id, section_id, instruction_type, pacing_structure)
		VALUES ($1, $2, $3, $4, $5)`,
		cs.TermID, cs.CourseID, cs.SectionID, cs.InstructionType, cs.PacingStructure)
	return s
}

// Student inserts a student row with no pacing structure and no holds.
func (s *Seeder) Student(studentID, firstName, lastName string) *Seeder {
	s.t.Helper()
	s.exec(`INSERT INTO students (student_id, first_name, last_name) VALUES ($1, $2, $3)`,
		studentID, firstName, lastName)
	return s
}

// Registration inserts a mirror row. Zero OpenStatus means active.
func (s *Seeder) Registration(reg model.LocalRegistration) *Seeder {
	s.t.Helper()
	if reg.OpenStatus == "" {
		reg.OpenStatus = model.OpenStatusActive
	}
	s.exec(`INSERT INTO registrations (student_id, term_id, course_id, section_id, open_status,
			completed, in_progress_incomplete, grading_option, instruction_type, registration_status,
			exam_placed, final_class_roll)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		reg.StudentID, reg.TermID, reg.CourseID, reg.SectionID, reg.OpenStatus,
		reg.Completed, reg.InProgressIncomplete, reg.GradingOption, reg.InstructionType,
		reg.RegistrationStatus, reg.ExamPlaced, reg.FinalClassRoll)
	return s
}

// Credit inserts a placement credit.
func (s *Seeder) Credit(c model.PlacementCredit) *Seeder {
	s.t.Helper()
	s.exec(`INSERT INTO placement_credits (student_id, course_id, exam_placed, date_refused) VALUES ($1, $2, $3, $4)`,
		c.StudentID, c.CourseID, c.ExamPlaced, c.DateRefused)
	return s
}

// Hold inserts a hold without touching the student's severity flag.
func (s *Seeder) Hold(studentID, holdID string, severity model.HoldSeverity) *Seeder {
	s.t.Helper()
	s.exec(`INSERT INTO holds (student_id, hold_id, severity) VALUES ($1, $2, $3)`,
		studentID, holdID, string(severity))
	return s
}

// StandardCatalog seeds an active term with one strict and one open pacing
// structure and a section for each.
func (s *Seeder) StandardCatalog(termID string) *Seeder {
	s.t.Helper()
	return s.Term(termID, true).
		PacingStructure(termID, model.RuleSetStrict, model.ScheduleSourcePace).
		PacingStructure(termID, model.RuleSetOpen, model.ScheduleSourcePace).
		Section(model.CourseSection{
			TermID: termID, CourseID: "M 117", SectionID: "001",
			InstructionType: "RI", PacingStructure: model.RuleSetStrict,
		}).
		Section(model.CourseSection{
			TermID: termID, CourseID: "M 118", SectionID: "801",
			InstructionType: "DE", PacingStructure: model.RuleSetOpen,
		})
}
