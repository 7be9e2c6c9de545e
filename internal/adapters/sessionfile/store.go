package sessionfile

// Package sessionfile persists live sessions to a versioned JSON Lines file
// so a restarted process can pick up where the previous one stopped.

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	"github.com/srbenoit/mathops-sub032/internal/ports"
)

// FileName is the recovery file written inside the configured directory.
const FileName = "live_sessions.jsonl"

const (
	formatName    = "mathops-sessions"
	formatVersion = 1
	maxLineBytes  = 1 << 20
)

var _ ports.SessionSnapshotter = (*Store)(nil)

// ErrUnsupportedVersion is returned when the file was written by a newer format.
var ErrUnsupportedVersion = errors.New("unsupported session file version")

// Options configures the file store.
type Options struct {
	Dir    string
	Logger *slog.Logger
}

// Store implements ports.SessionSnapshotter over a single file.
type Store struct {
	path   string
	logger *slog.Logger
}

// New constructs a Store rooted at opts.Dir.
func New(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("session file: directory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   filepath.Join(opts.Dir, FileName),
		logger: logger.With("component", "session_file"),
	}, nil
}

// Path returns the full path of the recovery file.
func (s *Store) Path() string { return s.path }

type header struct {
	Format  string `json:"format"`
	Version int    `json:"version"`
}

// entry is the on-disk shape of one session. Timestamps are RFC 3339 with
// nanoseconds; role fields hold role abbreviations.
type entry struct {
	ID              string `json:"id"`
	Tag             *int64 `json:"tag,omitempty"`
	AuthType        string `json:"auth_type"`
	Established     string `json:"established"`
	UserID          string `json:"user_id,omitempty"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	ScreenName      string `json:"screen_name,omitempty"`
	LastActivity    string `json:"last_activity"`
	Timeout         string `json:"timeout"`
	Role            string `json:"role"`
	TimeOffset      *int64 `json:"time_offset,omitempty"`
	ActAsUser       string `json:"act_as_user,omitempty"`
	ActAsFirstName  string `json:"act_as_first_name,omitempty"`
	ActAsLastName   string `json:"act_as_last_name,omitempty"`
	ActAsScreenName string `json:"act_as_screen_name,omitempty"`
	ActAsRole       string `json:"act_as_role,omitempty"`
}

// Save overwrites the recovery file with the given sessions.
func (s *Store) Save(_ context.Context, sessions []domainauth.Session) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(header{Format: formatName, Version: formatVersion}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for i := range sessions {
		if err := enc.Encode(toEntry(sessions[i])); err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	if err := writeFileAtomic(s.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Restore reads the recovery file and deletes it. A missing file yields no
// sessions. Entries that fail to parse are logged and skipped.
func (s *Store) Restore(_ context.Context) ([]domainauth.Session, error) {
	// #nosec G304 -- path is built from the configured persistence directory.
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}

	sessions, err := s.decode(f)
	if cerr := f.Close(); cerr != nil {
		s.logger.Warn("close session file", "error", cerr)
	}
	if err != nil {
		return nil, err
	}

	if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return sessions, fmt.Errorf("remove session file: %w", rmErr)
	}
	return sessions, nil
}

func (s *Store) decode(f *os.File) ([]domainauth.Session, error) {
	r := bufio.NewReaderSize(f, 64*1024)

	var sessions []domainauth.Session
	line := 0
	sawHeader := false
	for {
		buf, oversized, readErr := readLine(r)
		if len(buf) > 0 || oversized {
			line++
		}
		raw := bytes.TrimSpace(buf)

		switch {
		case oversized:
			s.logger.Warn("skipping oversized session entry", "line", line, "limit", maxLineBytes)
			sawHeader = true
		case len(raw) == 0:
		case !sawHeader:
			sawHeader = true
			var h header
			if err := json.Unmarshal(raw, &h); err == nil && h.Format != "" {
				if h.Format != formatName || h.Version > formatVersion {
					return nil, fmt.Errorf("%w: %s v%d", ErrUnsupportedVersion, h.Format, h.Version)
				}
				break
			}
			s.logger.Warn("session file has no header, reading entries anyway")
			sessions = s.appendEntry(sessions, raw, line)
		default:
			sessions = s.appendEntry(sessions, raw, line)
		}

		if errors.Is(readErr, io.EOF) {
			return sessions, nil
		}
		if readErr != nil {
			// A truncated tail still yields the entries read so far.
			s.logger.Warn("session file read stopped early", "line", line, "error", readErr)
			return sessions, nil
		}
	}
}

func (s *Store) appendEntry(sessions []domainauth.Session, raw []byte, line int) []domainauth.Session {
	sess, err := parseEntry(raw)
	if err != nil {
		s.logger.Warn("skipping unreadable session entry", "line", line, "error", err)
		return sessions
	}
	return append(sessions, sess)
}

// readLine returns the next newline-terminated line. A line longer than
// maxLineBytes is consumed but not returned, and oversized is set.
func readLine(r *bufio.Reader) (line []byte, oversized bool, err error) {
	for {
		chunk, rerr := r.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > maxLineBytes {
				oversized, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if !errors.Is(rerr, bufio.ErrBufferFull) {
			return line, oversized, rerr
		}
	}
}

func toEntry(sess domainauth.Session) entry {
	tag := sess.Tag
	offset := sess.TimeOffset
	e := entry{
		ID:              sess.ID,
		Tag:             &tag,
		AuthType:        string(sess.AuthType),
		Established:     formatTime(sess.Established),
		UserID:          sess.UserID,
		FirstName:       sess.FirstName,
		LastName:        sess.LastName,
		ScreenName:      sess.ScreenName,
		LastActivity:    formatTime(sess.LastActivity),
		Timeout:         formatTime(sess.TimeoutAt),
		Role:            sess.Role.Abbrev(),
		TimeOffset:      &offset,
		ActAsUser:       sess.ActAsUserID,
		ActAsFirstName:  sess.ActAsFirstName,
		ActAsLastName:   sess.ActAsLastName,
		ActAsScreenName: sess.ActAsScreenName,
	}
	if sess.ActAsRole != "" {
		e.ActAsRole = sess.ActAsRole.Abbrev()
	}
	return e
}

func parseEntry(raw []byte) (domainauth.Session, error) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return domainauth.Session{}, fmt.Errorf("decode entry: %w", err)
	}
	if e.ID == "" {
		return domainauth.Session{}, errors.New("entry has no id")
	}

	established, err := parseTime("established", e.Established)
	if err != nil {
		return domainauth.Session{}, err
	}
	lastActivity, err := parseTime("last_activity", e.LastActivity)
	if err != nil {
		return domainauth.Session{}, err
	}
	timeout, err := parseTime("timeout", e.Timeout)
	if err != nil {
		return domainauth.Session{}, err
	}
	role, err := domainauth.ParseRole(e.Role)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("role %q: %w", e.Role, err)
	}

	sess := domainauth.Session{
		ID:              e.ID,
		AuthType:        domainauth.Method(e.AuthType),
		Established:     established,
		LastActivity:    lastActivity,
		TimeoutAt:       timeout,
		UserID:          e.UserID,
		FirstName:       e.FirstName,
		LastName:        e.LastName,
		ScreenName:      e.ScreenName,
		Role:            role,
		ActAsUserID:     e.ActAsUser,
		ActAsFirstName:  e.ActAsFirstName,
		ActAsLastName:   e.ActAsLastName,
		ActAsScreenName: e.ActAsScreenName,
	}
	if e.Tag != nil {
		sess.Tag = *e.Tag
	}
	if e.TimeOffset != nil {
		sess.TimeOffset = *e.TimeOffset
	}
	if e.ActAsRole != "" {
		actAs, roleErr := domainauth.ParseRole(e.ActAsRole)
		if roleErr != nil {
			return domainauth.Session{}, fmt.Errorf("act-as role %q: %w", e.ActAsRole, roleErr)
		}
		sess.ActAsRole = actAs
	}
	return sess, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("%s is missing", field)
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}
