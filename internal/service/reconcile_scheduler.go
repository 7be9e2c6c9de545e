package service

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/srbenoit/mathops-sub032/config"
	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
)

// ReconcileSchedulerOptions groups dependencies for ReconcileScheduler.
type ReconcileSchedulerOptions struct {
	Reconciler *ReconcileService       // Required
	Sessions   *SessionStore           // Required: source of signed-in students
	Config     config.ReconcilerConfig // Required: loop configuration
	Logger     *slog.Logger            // Optional: structured logger
}

// ReconcileScheduler periodically reconciles every student who currently
// holds a session, a bounded number at a time.
type ReconcileScheduler struct {
	reconciler *ReconcileService
	sessions   *SessionStore
	config     config.ReconcilerConfig
	logger     *slog.Logger
}

// BatchResult tallies one scheduled pass.
type BatchResult struct {
	Students int
	Applied  int
	Skipped  int
	Failed   int
}

// NewReconcileScheduler constructs a ReconcileScheduler.
func NewReconcileScheduler(opts ReconcileSchedulerOptions) (*ReconcileScheduler, error) {
	if opts.Reconciler == nil {
		return nil, errors.New("ReconcileService is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("SessionStore is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &ReconcileScheduler{
		reconciler: opts.Reconciler,
		sessions:   opts.Sessions,
		config:     cfg,
		logger:     logger.With("component", "reconcile_scheduler"),
	}, nil
}

// Run executes a pass every interval until ctx is cancelled.
func (s *ReconcileScheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reconcile scheduler",
		"interval", s.config.Interval, "concurrency", s.config.Concurrency)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reconcile scheduler stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !isContextCancellation(err) {
				s.logger.ErrorContext(ctx, "scheduled reconciliation failed", "error", err)
			}
		}
	}
}

// RunOnce reconciles each signed-in student once. A failure for one student
// never stops the others. The pass stops early when the source gate closes.
func (s *ReconcileScheduler) RunOnce(ctx context.Context) (BatchResult, error) {
	ids := s.sessions.ActiveUserIDs(domainauth.RoleStudent)

	var applied, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	students := 0
	for _, id := range ids {
		if !s.reconciler.Eligible(id) {
			continue
		}
		if !s.reconciler.Gate().IsUp() {
			s.logger.WarnContext(ctx, "live registration source down; ending pass early")
			break
		}
		if gctx.Err() != nil {
			break
		}
		students++
		g.Go(func() error {
			report, err := s.reconciler.Reconcile(gctx, ReconcileRequest{StudentID: id})
			switch {
			case err != nil:
				failed.Add(1)
			case report.Outcome == ReconcileApplied:
				applied.Add(1)
			case report.Outcome == ReconcileSourceFailed:
				failed.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := BatchResult{
		Students: students,
		Applied:  int(applied.Load()),
		Skipped:  int(skipped.Load()),
		Failed:   int(failed.Load()),
	}
	if students > 0 {
		s.logger.InfoContext(ctx, "scheduled reconciliation pass complete",
			"students", res.Students, "applied", res.Applied, "skipped", res.Skipped, "failed", res.Failed)
	}
	return res, ctx.Err()
}
