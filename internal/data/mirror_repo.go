package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/srbenoit/mathops-sub032/internal/core"
	"github.com/srbenoit/mathops-sub032/internal/data/pgxutil"
	"github.com/srbenoit/mathops-sub032/internal/domain/model"
	apperrors "github.com/srbenoit/mathops-sub032/internal/errors"
)

const registrationColumns = `student_id, term_id, course_id, section_id, open_status, completed,
	in_progress_incomplete, grading_option, instruction_type, registration_status, exam_placed,
	final_class_roll, last_sync_date, created_at, updated_at`

const holdColumns = `student_id, hold_id, severity, times_applied, date_applied`

const studentColumns = `student_id, first_name, last_name, screen_name, pacing_structure, hold_severity, updated_at`

// MirrorStore runs reconciliation units of work in one pgx transaction.
type MirrorStore struct {
	DB *sql.DB
}

var _ core.MirrorStore = (*MirrorStore)(nil)

// NewMirrorStore creates a new MirrorStore.
func NewMirrorStore(db *sql.DB) *MirrorStore {
	return &MirrorStore{DB: db}
}

// WithTx implements core.MirrorStore. Every repository handed to fn shares
// the transaction; a non-nil return rolls all of it back.
func (s *MirrorStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx core.MirrorTx) error) error {
	err := pgxutil.WithTx(ctx, s.DB, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &mirrorTx{tx: tx})
	})
	return apperrors.MapDBError(err)
}

type mirrorTx struct {
	tx pgx.Tx
}

// LockStudent takes a transaction-scoped advisory lock keyed on the student id.
func (m *mirrorTx) LockStudent(ctx context.Context, studentID string) error {
	if _, err := m.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('reconcile:' || $1))`, studentID); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}

func (m *mirrorTx) Registrations() core.RegistrationRepository { return registrationRepo{m.tx} }
func (m *mirrorTx) Holds() core.HoldRepository                 { return holdRepo{m.tx} }
func (m *mirrorTx) Students() core.StudentRepository           { return studentRepo{m.tx} }
func (m *mirrorTx) PlacementCredits() core.PlacementCreditRepository {
	return placementCreditRepo{m.tx}
}

type registrationRepo struct{ tx pgx.Tx }

func (r registrationRepo) ListByStudent(ctx context.Context, studentID string) ([]*model.LocalRegistration, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+registrationColumns+`
		FROM registrations WHERE student_id = $1
		ORDER BY term_id, course_id, section_id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.LocalRegistration])
	if err != nil {
		return nil, fmt.Errorf("scan registrations: %w", err)
	}
	return out, nil
}

func (r registrationRepo) Insert(ctx context.Context, reg *model.LocalRegistration) error {
	if reg == nil {
		return errors.New("registration is required")
	}
	_, err := r.tx.Exec(ctx, `
		INSERT INTO registrations (
			student_id, term_id, course_id, section_id, open_status, completed,
			in_progress_incomplete, grading_option, instruction_type, registration_status,
			exam_placed, final_class_roll, last_sync_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		reg.StudentID, reg.TermID, reg.CourseID, reg.SectionID, reg.OpenStatus, reg.Completed,
		reg.InProgressIncomplete, reg.GradingOption, reg.InstructionType, reg.RegistrationStatus,
		reg.ExamPlaced, reg.FinalClassRoll, reg.LastSyncDate,
	)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

func (r registrationRepo) Update(ctx context.Context, params core.UpdateRegistrationParams) error {
	setClause, args := buildRegistrationUpdate(params.Changes)
	if setClause == "" {
		return nil
	}
	n := len(args)
	args = append(args, params.StudentID, params.TermID, params.Key.CourseID, params.Key.SectionID)
	query := fmt.Sprintf(`UPDATE registrations SET %s, updated_at = now()
		WHERE student_id = $%d AND term_id = $%d AND course_id = $%d AND section_id = $%d`,
		setClause, n+1, n+2, n+3, n+4)

	tag, err := r.tx.Exec(ctx, query, args...)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFoundf("registration %s %s %s not found", params.StudentID, params.TermID, params.Key)
	}
	return nil
}

// buildRegistrationUpdate builds the SET clause for the non-nil changes.
func buildRegistrationUpdate(c model.RegistrationChanges) (string, []any) {
	setParts := make([]string, 0, 6)
	args := make([]any, 0, 6)
	add := func(col string, v any) {
		args = append(args, v)
		setParts = append(setParts, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if c.GradingOption != nil {
		add("grading_option", *c.GradingOption)
	}
	if c.InstructionType != nil {
		add("instruction_type", *c.InstructionType)
	}
	if c.RegistrationStatus != nil {
		add("registration_status", *c.RegistrationStatus)
	}
	if c.OpenStatus != nil {
		add("open_status", *c.OpenStatus)
	}
	if c.FinalClassRoll != nil {
		add("final_class_roll", *c.FinalClassRoll)
	}
	if c.LastSyncDate != nil {
		add("last_sync_date", *c.LastSyncDate)
	}
	return strings.Join(setParts, ", "), args
}

type holdRepo struct{ tx pgx.Tx }

func (r holdRepo) ListByStudent(ctx context.Context, studentID string) ([]*model.Hold, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+holdColumns+` FROM holds WHERE student_id = $1 ORDER BY hold_id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list holds: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Hold])
	if err != nil {
		return nil, fmt.Errorf("scan holds: %w", err)
	}
	return out, nil
}

// Insert adds the hold unless the pair already exists.
func (r holdRepo) Insert(ctx context.Context, hold *model.Hold) (bool, error) {
	if hold == nil {
		return false, errors.New("hold is required")
	}
	tag, err := r.tx.Exec(ctx, `
		INSERT INTO holds (student_id, hold_id, severity, times_applied, date_applied)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id, hold_id) DO NOTHING`,
		hold.StudentID, hold.HoldID, hold.Severity, hold.TimesApplied, hold.DateApplied,
	)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r holdRepo) Delete(ctx context.Context, studentID, holdID string) (bool, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM holds WHERE student_id = $1 AND hold_id = $2`, studentID, holdID)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return tag.RowsAffected() > 0, nil
}

type studentRepo struct{ tx pgx.Tx }

// GetByID returns (nil, nil) when the student row does not exist.
func (r studentRepo) GetByID(ctx context.Context, studentID string) (*model.Student, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+studentColumns+` FROM students WHERE student_id = $1`, studentID)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	st, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.Student])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return st, nil
}

func (r studentRepo) UpdateHoldSeverity(ctx context.Context, studentID string, severity *model.HoldSeverity) error {
	return r.update(ctx, `UPDATE students SET hold_severity = $2, updated_at = now() WHERE student_id = $1`, studentID, severity)
}

func (r studentRepo) UpdatePacingStructure(ctx context.Context, studentID, pacingStructure string) error {
	return r.update(ctx, `UPDATE students SET pacing_structure = $2, updated_at = now() WHERE student_id = $1`, studentID, pacingStructure)
}

func (r studentRepo) update(ctx context.Context, query, studentID string, value any) error {
	tag, err := r.tx.Exec(ctx, query, studentID, value)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFoundf("student %s not found", studentID)
	}
	return nil
}

type placementCreditRepo struct{ tx pgx.Tx }

func (r placementCreditRepo) ListByStudent(ctx context.Context, studentID string) ([]*model.PlacementCredit, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT student_id, course_id, exam_placed, date_refused
		FROM placement_credits WHERE student_id = $1
		ORDER BY course_id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list placement credits: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.PlacementCredit])
	if err != nil {
		return nil, fmt.Errorf("scan placement credits: %w", err)
	}
	return out, nil
}
