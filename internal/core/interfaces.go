package core

import (
	"context"
	"time"

	"github.com/srbenoit/mathops-sub032/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// RegistrationRepository reads and writes a student's mirrored registrations.
type RegistrationRepository interface {
	// ListByStudent returns every mirror row for the student across all terms.
	ListByStudent(ctx context.Context, studentID string) ([]*model.LocalRegistration, error)
	Insert(ctx context.Context, reg *model.LocalRegistration) error
	Update(ctx context.Context, params UpdateRegistrationParams) error
}

// UpdateRegistrationParams groups parameters for RegistrationRepository.Update to keep param count ≤3.
type UpdateRegistrationParams struct {
	StudentID string
	TermID    string
	Key       model.RegistrationKey
	Changes   model.RegistrationChanges
}

// HoldRepository manages administrative holds.
type HoldRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]*model.Hold, error)
	// Insert creates the hold; it reports false when the (student, hold id) pair already exists.
	Insert(ctx context.Context, hold *model.Hold) (bool, error)
	// Delete removes the hold and reports whether a row was removed.
	Delete(ctx context.Context, studentID, holdID string) (bool, error)
}

// StudentRepository reads and updates the reconciliation-owned student columns.
type StudentRepository interface {
	// GetByID returns (nil, nil) when the student is not mirrored.
	GetByID(ctx context.Context, studentID string) (*model.Student, error)
	UpdateHoldSeverity(ctx context.Context, studentID string, severity *model.HoldSeverity) error
	UpdatePacingStructure(ctx context.Context, studentID, pacingStructure string) error
}

// PlacementCreditRepository lists placement-exam credits.
type PlacementCreditRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]*model.PlacementCredit, error)
}

// CatalogRepository exposes the read-only course catalog.
type CatalogRepository interface {
	// ActiveTerm returns (nil, nil) when no term is active.
	ActiveTerm(ctx context.Context) (*model.Term, error)
	// GetCourseSection returns (nil, nil) when the section is not in the catalog.
	GetCourseSection(ctx context.Context, termID string, key model.RegistrationKey) (*model.CourseSection, error)
	// GetPacingStructure returns (nil, nil) when the pacing structure is unknown.
	GetPacingStructure(ctx context.Context, termID, pacingStructureID string) (*model.PacingStructure, error)
}

// MirrorTx exposes the mirror repositories bound to a single transaction.
type MirrorTx interface {
	// LockStudent serializes writers of one student's rows until the transaction ends.
	LockStudent(ctx context.Context, studentID string) error
	Registrations() RegistrationRepository
	Holds() HoldRepository
	Students() StudentRepository
	PlacementCredits() PlacementCreditRepository
}

// MirrorStore runs units of work against the mirror. The callback's writes
// commit together when it returns nil and roll back otherwise.
type MirrorStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx MirrorTx) error) error
}

// UserLoginRepository looks up local credentials.
type UserLoginRepository interface {
	GetByUsername(ctx context.Context, username string) (*model.UserLogin, error)
	Upsert(ctx context.Context, login *model.UserLogin) error
}

// StudentLocker serializes reconciliation of one student across processes.
type StudentLocker interface {
	// TryLock returns a release func when the lock was acquired, or ok=false when another holder owns it.
	TryLock(ctx context.Context, studentID string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}
