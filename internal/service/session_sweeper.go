package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/srbenoit/mathops-sub032/config"
	"github.com/srbenoit/mathops-sub032/internal/core"
	obserrors "github.com/srbenoit/mathops-sub032/internal/observability/errors"
	"github.com/srbenoit/mathops-sub032/internal/observability/metrics"
	"github.com/srbenoit/mathops-sub032/internal/observability/statsd"
)

// SessionSweeperOptions groups dependencies for SessionSweeper.
type SessionSweeperOptions struct {
	Store       *SessionStore        // Required: live session table
	Persistence *SessionPersistence  // Optional: enables periodic checkpoints
	Config      config.SweeperConfig // Required: loop configuration
	Logger      *slog.Logger         // Optional: structured logger
	Metrics     statsd.Sink          // Optional: metrics sink (StatsD-compatible)
}

// SessionSweeper periodically evicts timed-out sessions and checkpoints the
// live ones so an unclean exit loses at most one checkpoint interval.
type SessionSweeper struct {
	store       *SessionStore
	persistence *SessionPersistence
	config      config.SweeperConfig
	clock       core.Clock
	logger      *slog.Logger
	metrics     statsd.Sink

	lastCheckpoint time.Time
}

// NewSessionSweeper constructs a new SessionSweeper.
func NewSessionSweeper(opts SessionSweeperOptions) (*SessionSweeper, error) {
	if opts.Store == nil {
		return nil, errors.New("SessionStore is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session_sweeper")
	logger.Debug("SessionSweeper initialized",
		"interval", opts.Config.Interval,
		"checkpoint_interval", opts.Config.CheckpointInterval,
		"checkpoints", opts.Persistence != nil,
	)

	return &SessionSweeper{
		store:       opts.Store,
		persistence: opts.Persistence,
		config:      opts.Config,
		clock:       opts.Store.clock,
		logger:      logger,
		metrics:     opts.Metrics,
	}, nil
}

// Run starts the sweep loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *SessionSweeper) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting session sweeper", "interval", s.config.Interval)

	// Spread instances that start together.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.lastCheckpoint = s.clock.Now()
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "session sweeper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logTickError(err)
			}
		}
	}
}

// Tick sweeps once and checkpoints when the checkpoint interval has passed.
func (s *SessionSweeper) Tick(ctx context.Context) error {
	start := s.clock.Now()
	removed := s.store.SweepTimedOut()
	metrics.EmitSessionGauge(s.metrics, s.store.Len())

	var (
		saved int
		err   error
	)
	if s.checkpointDue(start) {
		saved, err = s.persistence.Persist(ctx)
		if err == nil {
			s.lastCheckpoint = start
		}
	}

	s.emitTickMetrics(removed, saved, err, s.clock.Now().Sub(start))
	if err != nil {
		return fmt.Errorf("checkpoint sessions: %w", err)
	}
	return nil
}

func (s *SessionSweeper) checkpointDue(now time.Time) bool {
	if s.persistence == nil || s.config.CheckpointInterval <= 0 {
		return false
	}
	return !now.Before(s.lastCheckpoint.Add(s.config.CheckpointInterval))
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *SessionSweeper) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *SessionSweeper) emitTickMetrics(removed, saved int, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if removed == 0 && saved == 0 {
		result = metrics.ResultNoop
	}
	tags := map[string]string{"result": result}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("sessions.sweep", 1, tags)
	if removed > 0 {
		s.metrics.Count("sessions.swept", int64(removed), metrics.CloneTags(tags))
	}
	if saved > 0 {
		s.metrics.Count("sessions.checkpointed", int64(saved), metrics.CloneTags(tags))
	}
	if elapsed > 0 {
		s.metrics.Timing("sessions.sweep_duration", elapsed, metrics.CloneTags(tags))
	}
}

func (s *SessionSweeper) logTickError(err error) {
	if isContextCancellation(err) {
		s.logger.Debug("session sweep cancelled by context", "error", err)
		return
	}
	s.logger.Error("session sweep failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
