package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/srbenoit/mathops-sub032/internal/core"
	"github.com/srbenoit/mathops-sub032/internal/data/pgxutil"
	"github.com/srbenoit/mathops-sub032/internal/domain/model"
	apperrors "github.com/srbenoit/mathops-sub032/internal/errors"
)

// CatalogRepo reads terms, course sections and pacing structures.
type CatalogRepo struct {
	DB *sql.DB
}

var _ core.CatalogRepository = (*CatalogRepo)(nil)

// NewCatalogRepo creates a new CatalogRepo.
func NewCatalogRepo(db *sql.DB) *CatalogRepo {
	return &CatalogRepo{DB: db}
}

// ActiveTerm returns the single active term, or (nil, nil) when none is active.
func (r *CatalogRepo) ActiveTerm(ctx context.Context) (*model.Term, error) {
	var out *model.Term
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT term_id, active, start_date, end_date
			FROM terms WHERE active
			LIMIT 1`)
		if err != nil {
			return err
		}
		term, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.Term])
		if err != nil {
			return err
		}
		out = term
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active term: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// GetCourseSection returns (nil, nil) when the section is not in the catalog.
func (r *CatalogRepo) GetCourseSection(
	ctx context.Context,
	termID string,
	key model.RegistrationKey,
) (*model.CourseSection, error) {
	var out *model.CourseSection
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT term_id, course_id, section_id, instruction_type, pacing_structure
			FROM course_sections
			WHERE term_id = $1 AND course_id = $2 AND section_id = $3`,
			termID, key.CourseID, key.SectionID)
		if err != nil {
			return err
		}
		cs, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.CourseSection])
		if err != nil {
			return err
		}
		out = cs
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query course section: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// GetPacingStructure returns (nil, nil) when the pacing structure is unknown.
func (r *CatalogRepo) GetPacingStructure(
	ctx context.Context,
	termID, pacingStructureID string,
) (*model.PacingStructure, error) {
	var out *model.PacingStructure
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT term_id, pacing_structure_id, schedule_source
			FROM pacing_structures
			WHERE term_id = $1 AND pacing_structure_id = $2`,
			termID, pacingStructureID)
		if err != nil {
			return err
		}
		ps, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.PacingStructure])
		if err != nil {
			return err
		}
		out = ps
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query pacing structure: %w", apperrors.MapDBError(err))
	}
	return out, nil
}
