package redis

// Package redis provides Redis-based adapters for the mathops session service.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	"github.com/srbenoit/mathops-sub032/internal/ports"
)

const defaultSessionPrefix = "mathops:session:"

var _ ports.SessionSnapshotter = (*SessionSnapshotStore)(nil)

// SessionSnapshotStore keeps a restart snapshot of live sessions in Redis, one
// key per session. Keys expire with the session, so a snapshot that is never
// restored cleans itself up.
type SessionSnapshotStore struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// SessionSnapshotOptions configures SessionSnapshotStore.
type SessionSnapshotOptions struct {
	Client redis.UniversalClient
	Prefix string       // Optional: defaults to "mathops:session:"
	Logger *slog.Logger // Optional
}

// NewSessionSnapshotStore creates a Redis-backed session snapshotter.
func NewSessionSnapshotStore(opts SessionSnapshotOptions) *SessionSnapshotStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultSessionPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionSnapshotStore{
		client: opts.Client,
		prefix: prefix,
		logger: logger.With("component", "redis_session_snapshot"),
	}
}

// Save writes every session that has not yet expired.
func (s *SessionSnapshotStore) Save(ctx context.Context, sessions []domainauth.Session) error {
	if len(sessions) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	queued := 0
	for i := range sessions {
		sess := sessions[i]
		if sess.ID == "" {
			continue
		}
		ttl := time.Until(sess.TimeoutAt)
		if ttl <= 0 {
			continue
		}
		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		pipe.Set(ctx, s.prefix+sess.ID, data, ttl)
		queued++
	}
	if queued == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save sessions: %w", err)
	}
	return nil
}

// Restore reads and deletes every stored session. Unreadable entries are
// logged and skipped.
func (s *SessionSnapshotStore) Restore(ctx context.Context) ([]domainauth.Session, error) {
	var (
		sessions []domainauth.Session
		cursor   uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 200).Result()
		if err != nil {
			return sessions, fmt.Errorf("redis scan sessions: %w", err)
		}
		for _, key := range keys {
			sess, ok, getErr := s.take(ctx, key)
			if getErr != nil {
				return sessions, getErr
			}
			if ok {
				sessions = append(sessions, sess)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return sessions, nil
}

func (s *SessionSnapshotStore) take(ctx context.Context, key string) (domainauth.Session, bool, error) {
	data, err := s.client.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domainauth.Session{}, false, nil
	}
	if err != nil {
		return domainauth.Session{}, false, fmt.Errorf("redis getdel %s: %w", key, err)
	}

	var sess domainauth.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.logger.Warn("skipping unreadable session snapshot", "key", key, "error", err)
		return domainauth.Session{}, false, nil
	}
	if !sess.Role.Valid() {
		s.logger.Warn("skipping session snapshot with unknown role", "key", key, "role", sess.Role)
		return domainauth.Session{}, false, nil
	}
	return sess, true, nil
}
