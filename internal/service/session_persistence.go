package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/srbenoit/mathops-sub032/internal/ports"
)

// SessionPersistenceOptions groups dependencies for SessionPersistence.
type SessionPersistenceOptions struct {
	Store   *SessionStore            // Required: live session table
	Backend ports.SessionSnapshotter // Required: where snapshots go
	Logger  *slog.Logger             // Optional: structured logger
}

// SessionPersistence saves the live session table at shutdown and restores
// it at startup.
type SessionPersistence struct {
	store   *SessionStore
	backend ports.SessionSnapshotter
	logger  *slog.Logger
}

// NewSessionPersistence constructs a SessionPersistence.
func NewSessionPersistence(opts SessionPersistenceOptions) (*SessionPersistence, error) {
	if opts.Store == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("session snapshot backend is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionPersistence{
		store:   opts.Store,
		backend: opts.Backend,
		logger:  logger.With("component", "session_persistence"),
	}, nil
}

// Persist writes every live, non-reserved session to the backend and
// returns how many were written.
func (p *SessionPersistence) Persist(ctx context.Context) (int, error) {
	sessions := p.store.Snapshot()
	if err := p.backend.Save(ctx, sessions); err != nil {
		return 0, fmt.Errorf("persist sessions: %w", err)
	}
	p.logger.InfoContext(ctx, "persisted sessions", "count", len(sessions))
	return len(sessions), nil
}

// Load restores previously persisted sessions into the store and returns
// how many were re-inserted.
func (p *SessionPersistence) Load(ctx context.Context) (int, error) {
	sessions, err := p.backend.Restore(ctx)
	if err != nil && len(sessions) == 0 {
		return 0, fmt.Errorf("load sessions: %w", err)
	}
	if err != nil {
		p.logger.WarnContext(ctx, "session restore finished with error", "error", err)
	}
	restored := p.store.Restore(sessions)
	p.logger.InfoContext(ctx, "restored sessions",
		"read", len(sessions),
		"restored", restored,
		"skipped", len(sessions)-restored,
	)
	return restored, nil
}
