package service

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/srbenoit/mathops-sub032/internal/core"
	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
)

// DefaultSessionTimeout is how long a session survives without activity.
const DefaultSessionTimeout = 2 * time.Hour

// DefaultLoggedOutRetention is how long a logged-out session id is remembered.
const DefaultLoggedOutRetention = 5 * time.Hour

// SessionStoreConfig tunes SessionStore. Zero values pick the defaults.
type SessionStoreConfig struct {
	Timeout            time.Duration
	LoggedOutRetention time.Duration
	// ReservedUserIDs are service identities no session may delegate to.
	ReservedUserIDs []string
	// TestIdentity is installed on the reserved test-station session.
	TestIdentity domainauth.Identity
}

// SessionStoreOptions groups dependencies for SessionStore.
type SessionStoreOptions struct {
	Config SessionStoreConfig
	Clock  core.Clock   // Optional: defaults to the system clock
	Logger *slog.Logger // Optional: structured logger
}

// SessionStore is the process-wide table of live sessions. Every read and
// write goes through one mutex and no I/O happens while it is held. Callers
// only ever receive value copies of the records.
type SessionStore struct {
	mu        sync.Mutex
	sessions  map[string]*domainauth.Session
	loggedOut map[string]time.Time
	lastTag   int64

	timeout   time.Duration
	retention time.Duration
	reserved  map[string]struct{}
	clock     core.Clock
	logger    *slog.Logger
}

// NewSessionStore constructs a store seeded with the reserved anonymous and
// test-station sessions.
func NewSessionStore(opts SessionStoreOptions) *SessionStore {
	cfg := opts.Config
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSessionTimeout
	}
	if cfg.LoggedOutRetention <= 0 {
		cfg.LoggedOutRetention = DefaultLoggedOutRetention
	}
	clock := opts.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reserved := make(map[string]struct{}, len(cfg.ReservedUserIDs))
	for _, id := range cfg.ReservedUserIDs {
		if id = strings.TrimSpace(id); id != "" {
			reserved[id] = struct{}{}
		}
	}

	s := &SessionStore{
		sessions:  make(map[string]*domainauth.Session),
		loggedOut: make(map[string]time.Time),
		timeout:   cfg.Timeout,
		retention: cfg.LoggedOutRetention,
		reserved:  reserved,
		clock:     clock,
		logger:    logger.With("component", "session_store"),
	}
	s.seedReserved(cfg.TestIdentity)
	return s
}

func (s *SessionStore) seedReserved(test domainauth.Identity) {
	now := s.clock.Now()

	anon := &domainauth.Session{
		ID:           domainauth.AnonymousSessionID,
		AuthType:     domainauth.MethodSystem,
		Established:  now,
		LastActivity: now,
		Role:         domainauth.RoleGuest,
	}
	anon.Tag = s.nextTag(now)
	s.sessions[anon.ID] = anon

	role := test.Role
	if role == "" {
		role = domainauth.RoleGuest
	}
	station := &domainauth.Session{
		ID:           domainauth.TestSessionID,
		AuthType:     domainauth.MethodTest,
		Established:  now,
		LastActivity: now,
		UserID:       test.UserID,
		FirstName:    test.FirstName,
		LastName:     test.LastName,
		ScreenName:   test.DisplayName(),
		Role:         role,
	}
	station.Tag = s.nextTag(now)
	s.sessions[station.ID] = station
}

// Timeout returns the inactivity window applied on create and validate.
func (s *SessionStore) Timeout() time.Duration { return s.timeout }

// nextTag returns a time-derived tag strictly greater than any issued so far.
// Callers must hold s.mu (or be the constructor).
func (s *SessionStore) nextTag(now time.Time) int64 {
	tag := now.UnixMilli() * 1000
	if tag <= s.lastTag {
		tag = s.lastTag + 1
	}
	s.lastTag = tag
	return tag
}

// Create inserts a new session and returns its snapshot. Established,
// LastActivity, TimeoutAt and Tag are assigned by the store.
func (s *SessionStore) Create(rec domainauth.Session) (domainauth.Session, error) {
	if rec.ID == "" {
		return domainauth.Session{}, errors.New("session id is required")
	}
	if rec.Role == "" {
		rec.Role = domainauth.RoleGuest
	}
	if !rec.Role.Valid() {
		return domainauth.Session{}, fmt.Errorf("%w: %q", domainauth.ErrUnknownRole, rec.Role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[rec.ID]; exists || domainauth.IsReservedSessionID(rec.ID) {
		return domainauth.Session{}, domainauth.ErrDuplicateSession
	}

	now := s.clock.Now()
	rec.Tag = s.nextTag(now)
	rec.Established = now
	rec.LastActivity = now
	rec.TimeoutAt = now.Add(s.timeout)

	stored := rec
	s.sessions[rec.ID] = &stored
	delete(s.loggedOut, rec.ID)
	return stored, nil
}

// Validate looks up a session and extends its timeout. A session past its
// timeout fails with ErrSessionTimedOut and is left for the sweeper.
func (s *SessionStore) Validate(id string) (domainauth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		if _, out := s.loggedOut[id]; out {
			return domainauth.Session{}, fmt.Errorf("%w: %w", domainauth.ErrSessionNotFound, domainauth.ErrSessionLoggedOut)
		}
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}

	now := s.clock.Now()
	rec.LastActivity = now
	if rec.IsReserved() {
		return *rec, nil
	}
	if rec.TimedOut(now) {
		return domainauth.Session{}, domainauth.ErrSessionTimedOut
	}
	rec.TimeoutAt = now.Add(s.timeout)
	return *rec, nil
}

// Get returns a snapshot without touching the session.
func (s *SessionStore) Get(id string) (domainauth.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return domainauth.Session{}, false
	}
	return *rec, true
}

// Remove deletes a session and reports whether it existed. Reserved
// sessions are never removed.
func (s *SessionStore) Remove(id string) bool {
	if domainauth.IsReservedSessionID(id) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	s.loggedOut[id] = s.clock.Now()
	return true
}

// SweepTimedOut removes every non-reserved session whose timeout has passed
// and forgets logged-out ids older than the retention window.
func (s *SessionStore) SweepTimedOut() int {
	s.mu.Lock()
	removed := s.sweepLocked()
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Info("swept timed out sessions", "removed", removed)
	}
	return removed
}

func (s *SessionStore) sweepLocked() int {
	now := s.clock.Now()
	removed := 0
	for id, rec := range s.sessions {
		if rec.TimedOut(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	cutoff := now.Add(-s.retention)
	for id, at := range s.loggedOut {
		if at.Before(cutoff) {
			delete(s.loggedOut, id)
		}
	}
	return removed
}

// List returns every live session. The requester's effective role must
// reach administrator.
func (s *SessionStore) List(requesterID string) ([]domainauth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	req, ok := s.sessions[requesterID]
	if !ok {
		return nil, domainauth.ErrSessionNotFound
	}
	if !req.EffectiveRole().AtLeast(domainauth.RoleAdministrator) {
		return nil, domainauth.ErrNotAuthorized
	}

	out := make([]domainauth.Session, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, *rec)
	}
	sortSessions(out)
	return out, nil
}

// Len returns the number of sessions, reserved ones included.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ActiveUserIDs returns the distinct base user ids of live, non-reserved
// sessions holding role.
func (s *SessionStore) ActiveUserIDs(role domainauth.Role) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	seen := make(map[string]struct{})
	var ids []string
	for _, rec := range s.sessions {
		if rec.IsReserved() || rec.TimedOut(now) || rec.Role != role || rec.UserID == "" {
			continue
		}
		if _, dup := seen[rec.UserID]; dup {
			continue
		}
		seen[rec.UserID] = struct{}{}
		ids = append(ids, rec.UserID)
	}
	slices.Sort(ids)
	return ids
}

// Snapshot sweeps and returns copies of every persistable session.
func (s *SessionStore) Snapshot() []domainauth.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	out := make([]domainauth.Session, 0, len(s.sessions))
	for _, rec := range s.sessions {
		if rec.IsReserved() {
			continue
		}
		out = append(out, *rec)
	}
	sortSessions(out)
	return out
}

// Restore re-inserts previously persisted sessions, keeping their tags and
// timestamps. Reserved, duplicate and timed-out entries are skipped.
func (s *SessionStore) Restore(records []domainauth.Session) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	restored := 0
	for _, rec := range records {
		switch {
		case rec.ID == "" || domainauth.IsReservedSessionID(rec.ID):
			continue
		case rec.TimedOut(now):
			continue
		}
		if _, exists := s.sessions[rec.ID]; exists {
			continue
		}
		if rec.Tag == 0 {
			rec.Tag = s.nextTag(now)
		} else if rec.Tag > s.lastTag {
			s.lastTag = rec.Tag
		}
		stored := rec
		s.sessions[rec.ID] = &stored
		restored++
	}
	return restored
}

// mutate applies fn to a live session under the lock and returns the
// updated snapshot. Reserved sessions are shared and cannot be mutated.
func (s *SessionStore) mutate(id string, fn func(rec *domainauth.Session) error) (domainauth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	if rec.IsReserved() {
		return domainauth.Session{}, domainauth.ErrNotAuthorized
	}
	if rec.TimedOut(s.clock.Now()) {
		return domainauth.Session{}, domainauth.ErrSessionTimedOut
	}

	working := *rec
	if err := fn(&working); err != nil {
		return domainauth.Session{}, err
	}
	*rec = working
	return working, nil
}

// SetTimeOffset sets the simulated clock offset of a session, in milliseconds.
func (s *SessionStore) SetTimeOffset(id string, offsetMillis int64) (domainauth.Session, error) {
	return s.mutate(id, func(rec *domainauth.Session) error {
		rec.TimeOffset = offsetMillis
		return nil
	})
}

func sortSessions(list []domainauth.Session) {
	slices.SortFunc(list, func(a, b domainauth.Session) int {
		if c := a.Established.Compare(b.Established); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
