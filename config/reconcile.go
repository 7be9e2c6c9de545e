package config

import (
	"strings"
	"time"
)

// ReconcileConfig tunes the reconciliation engine.
type ReconcileConfig struct {
	// StudentIDPrefix marks ids of enrolled students; other ids are skipped.
	StudentIDPrefix string `env:"RECONCILE_STUDENT_ID_PREFIX" envDefault:"8"`
	// TestStudentID is never reconciled.
	TestStudentID string `env:"RECONCILE_TEST_STUDENT_ID" envDefault:"888888888"`
	// LockTTL bounds the cross-instance per-student lock held in Redis.
	LockTTL time.Duration `env:"RECONCILE_LOCK_TTL" envDefault:"2m"`
	// OnLogin reconciles students as they sign in.
	OnLogin bool `env:"RECONCILE_ON_LOGIN" envDefault:"true"`
	// LoginTimeout bounds the reconciliation run inline with a login.
	LoginTimeout time.Duration `env:"RECONCILE_LOGIN_TIMEOUT" envDefault:"15s"`
}

// Sanitize applies guardrails to reconcile configuration values.
func (r *ReconcileConfig) Sanitize() {
	r.StudentIDPrefix = strings.TrimSpace(r.StudentIDPrefix)
	if r.LockTTL < 10*time.Second {
		r.LockTTL = 10 * time.Second
	}
	if r.LoginTimeout <= 0 {
		r.LoginTimeout = 15 * time.Second
	}
}

// LiveRegConfig points at the registrar's live registration API.
type LiveRegConfig struct {
	// BaseURL of the registrar API. Empty disables live reconciliation.
	BaseURL string `env:"LIVEREG_BASE_URL"`
	// PathTemplate is expanded with {student} and {term}.
	PathTemplate string `env:"LIVEREG_PATH" envDefault:"/students/{student}/terms/{term}/registrations"`
	// PingPath is requested by gate probes.
	PingPath string `env:"LIVEREG_PING_PATH" envDefault:"/health"`
	// RowsExpression is a JMESPath expression selecting the registration rows
	// from the response body.
	RowsExpression string `env:"LIVEREG_ROWS_EXPRESSION" envDefault:"registrations"`
	// Token is sent as a bearer token when set.
	Token   string        `env:"LIVEREG_TOKEN"`
	Timeout time.Duration `env:"LIVEREG_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to live registration configuration values.
func (l *LiveRegConfig) Sanitize() {
	l.BaseURL = strings.TrimRight(strings.TrimSpace(l.BaseURL), "/")
	if l.Timeout <= 0 {
		l.Timeout = 10 * time.Second
	}
	if strings.TrimSpace(l.RowsExpression) == "" {
		l.RowsExpression = "registrations"
	}
}

// Enabled reports whether a live registration source is configured.
func (l *LiveRegConfig) Enabled() bool { return l.BaseURL != "" }
