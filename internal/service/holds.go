package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/srbenoit/mathops-sub032/internal/core"
	"github.com/srbenoit/mathops-sub032/internal/domain/model"
	"github.com/srbenoit/mathops-sub032/internal/observability/metrics"
	"github.com/srbenoit/mathops-sub032/internal/observability/statsd"
)

// HoldServiceOptions groups dependencies for HoldService.
type HoldServiceOptions struct {
	Store   core.MirrorStore // Required for the standalone entry points
	Clock   core.Clock       // Optional: defaults to the system clock
	Logger  *slog.Logger     // Optional: structured logger
	Metrics statsd.Sink      // Optional: metrics sink
}

// HoldService issues and clears administrative holds and keeps the
// student-level severity flag in step with them. The tx-scoped methods are
// called from inside a reconciliation unit of work.
type HoldService struct {
	store   core.MirrorStore
	clock   core.Clock
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewHoldService constructs a HoldService.
func NewHoldService(opts HoldServiceOptions) *HoldService {
	clock := opts.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HoldService{
		store:   opts.Store,
		clock:   clock,
		logger:  logger.With("component", "hold_service"),
		metrics: opts.Metrics,
	}
}

// AddFatalHold places a fatal hold unless the student already carries that
// hold id. It reports whether a hold was added.
func (s *HoldService) AddFatalHold(ctx context.Context, tx core.MirrorTx, studentID, holdID string) (bool, error) {
	if studentID == "" || holdID == "" {
		return false, errors.New("student id and hold id are required")
	}

	added, err := tx.Holds().Insert(ctx, &model.Hold{
		StudentID:    studentID,
		HoldID:       holdID,
		Severity:     model.HoldSeverityFatal,
		TimesApplied: 1,
		DateApplied:  s.clock.Now(),
	})
	if err != nil {
		return false, fmt.Errorf("insert hold %s: %w", holdID, err)
	}
	if !added {
		return false, nil
	}

	stu, err := tx.Students().GetByID(ctx, studentID)
	if err != nil {
		return false, fmt.Errorf("get student: %w", err)
	}
	if stu != nil && (stu.HoldSeverity == nil || *stu.HoldSeverity != model.HoldSeverityFatal) {
		fatal := model.HoldSeverityFatal
		if err := tx.Students().UpdateHoldSeverity(ctx, studentID, &fatal); err != nil {
			return false, fmt.Errorf("raise hold severity: %w", err)
		}
	}

	metrics.EmitHoldChange(s.metrics, holdID, "added")
	return true, nil
}

// RemoveHolds deletes the listed holds and returns the ids that existed.
// When anything was removed the severity flag is recomputed from the
// remaining holds and written only if it changed.
func (s *HoldService) RemoveHolds(ctx context.Context, tx core.MirrorTx, studentID string, holdIDs ...string) ([]string, error) {
	if studentID == "" {
		return nil, errors.New("student id is required")
	}

	var removed []string
	for _, id := range holdIDs {
		ok, err := tx.Holds().Delete(ctx, studentID, id)
		if err != nil {
			return nil, fmt.Errorf("delete hold %s: %w", id, err)
		}
		if ok {
			removed = append(removed, id)
			metrics.EmitHoldChange(s.metrics, id, "removed")
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}

	if err := s.syncSeverity(ctx, tx, studentID); err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *HoldService) syncSeverity(ctx context.Context, tx core.MirrorTx, studentID string) error {
	remaining, err := tx.Holds().ListByStudent(ctx, studentID)
	if err != nil {
		return fmt.Errorf("list holds: %w", err)
	}
	stu, err := tx.Students().GetByID(ctx, studentID)
	if err != nil {
		return fmt.Errorf("get student: %w", err)
	}
	if stu == nil {
		return nil
	}

	want := model.SummarizeHoldSeverity(remaining)
	if model.SameSeverity(stu.HoldSeverity, want) {
		return nil
	}
	if err := tx.Students().UpdateHoldSeverity(ctx, studentID, want); err != nil {
		return fmt.Errorf("update hold severity: %w", err)
	}
	return nil
}

// ListHolds returns the student's holds.
func (s *HoldService) ListHolds(ctx context.Context, studentID string) ([]*model.Hold, error) {
	if s.store == nil {
		return nil, errors.New("hold service has no store")
	}
	var holds []*model.Hold
	err := s.store.WithTx(ctx, func(ctx context.Context, tx core.MirrorTx) error {
		var err error
		holds, err = tx.Holds().ListByStudent(ctx, studentID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list holds: %w", err)
	}
	return holds, nil
}

// ClearHolds removes holds in a unit of work of its own, for operators
// resolving an anomaly by hand.
func (s *HoldService) ClearHolds(ctx context.Context, studentID string, holdIDs ...string) ([]string, error) {
	if s.store == nil {
		return nil, errors.New("hold service has no store")
	}
	var removed []string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx core.MirrorTx) error {
		if err := tx.LockStudent(ctx, studentID); err != nil {
			return fmt.Errorf("lock student rows: %w", err)
		}
		var err error
		removed, err = s.RemoveHolds(ctx, tx, studentID, holdIDs...)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		s.logger.InfoContext(ctx, "holds cleared by operator", "student_id", studentID, "holds", removed)
	}
	return removed, nil
}
