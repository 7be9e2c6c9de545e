//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import "time"

// HoldSeverity is both the severity of a single hold and the student-level
// summary flag derived from all of a student's holds.
type HoldSeverity string

const (
	HoldSeverityNotice HoldSeverity = "N"
	HoldSeverityFatal  HoldSeverity = "F"
)

// Hold ids issued by reconciliation. Advising tools key off these values, so
// a new anomaly always gets a new id and an id is never reassigned.
const (
	HoldLegacyMixedRuleSets = "07"
	HoldDuplicateSection    = "14"
	HoldMixedRuleSets       = "23"
	HoldIncompleteConflict  = "25"
	HoldUngroundedPlacement = "27"
)

// Hold is an administrative hold on a student. At most one row exists per
// (student, hold id).
type Hold struct {
	StudentID    string       `json:"student_id"    db:"student_id"`
	HoldID       string       `json:"hold_id"       db:"hold_id"`
	Severity     HoldSeverity `json:"severity"      db:"severity"`
	TimesApplied int          `json:"times_applied" db:"times_applied"`
	DateApplied  time.Time    `json:"date_applied"  db:"date_applied"`
}

// SummarizeHoldSeverity derives the student flag from a set of holds: Fatal
// if any hold is fatal, Notice if any hold remains, otherwise nil.
func SummarizeHoldSeverity(holds []*Hold) *HoldSeverity {
	if len(holds) == 0 {
		return nil
	}
	sev := HoldSeverityNotice
	for _, h := range holds {
		if h.Severity == HoldSeverityFatal {
			sev = HoldSeverityFatal
			break
		}
	}
	return &sev
}
