package config

import (
	"fmt"
	"strings"
	"time"
)

// PersistBackend selects where live sessions are saved across restarts.
type PersistBackend string

const (
	PersistBackendFile  PersistBackend = "file"
	PersistBackendRedis PersistBackend = "redis"
	PersistBackendNone  PersistBackend = "none"
)

// UnmarshalText implements encoding.TextUnmarshaler for PersistBackend.
func (p *PersistBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch PersistBackend(v) {
	case PersistBackendFile, PersistBackendRedis, PersistBackendNone:
		*p = PersistBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid PersistBackend: %q (valid options: file, redis, none)", v)
	}
}

// SessionConfig configures the session store and its persistence.
type SessionConfig struct {
	Timeout            time.Duration `env:"SESSION_TIMEOUT"              envDefault:"2h"`
	LoggedOutRetention time.Duration `env:"SESSION_LOGGED_OUT_RETENTION" envDefault:"5h"`

	PersistBackend PersistBackend `env:"SESSION_PERSIST_BACKEND" envDefault:"file"`
	// PersistDir holds the session file when the file backend is used.
	PersistDir string `env:"SESSION_PERSIST_DIR" envDefault:"."`
	// RedisPrefix namespaces session keys when the redis backend is used.
	RedisPrefix string `env:"SESSION_REDIS_PREFIX" envDefault:"mathops:session:"`

	CookieName   string `env:"SESSION_COOKIE_NAME"   envDefault:"mathops_session"`
	CookieSecure bool   `env:"SESSION_COOKIE_SECURE" envDefault:"true"`

	// ReservedUserIDs are service identities nobody may act as.
	ReservedUserIDs []string `env:"SESSION_RESERVED_USER_IDS" envDefault:"SYSTEM,GUEST" envSeparator:","`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.Timeout < time.Minute {
		s.Timeout = time.Minute
	}
	if s.LoggedOutRetention < s.Timeout {
		s.LoggedOutRetention = s.Timeout
	}
	if s.PersistBackend == "" {
		s.PersistBackend = PersistBackendFile
	}
	if strings.TrimSpace(s.PersistDir) == "" {
		s.PersistDir = "."
	}
	if s.CookieName = strings.TrimSpace(s.CookieName); s.CookieName == "" {
		s.CookieName = "mathops_session"
	}
}
