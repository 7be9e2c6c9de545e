package testutil

import (
	"net/url"
	"testing"
	"time"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults to the local test profile", func(t *testing.T) {
		for _, k := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME"} {
			t.Setenv(k, "")
		}
		cfg := DefaultTestDBConfig()
		want := TestDBConfig{Host: "localhost", Port: "55432", User: "mathops", Password: "mathops", DBName: "mathops"}
		if cfg != want {
			t.Fatalf("DefaultTestDBConfig() = %+v, want %+v", cfg, want)
		}
	})

	t.Run("respects TEST_DB_* overrides", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "postgres")
		t.Setenv("TEST_DB_PORT", "5432")
		cfg := DefaultTestDBConfig()
		if cfg.Host != "postgres" || cfg.Port != "5432" {
			t.Fatalf("DefaultTestDBConfig() = %+v", cfg)
		}
	})
}

func TestTestDBConfigDSN(t *testing.T) {
	t.Setenv("DB_SSL_MODE", "")
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p@ss", DBName: "mathops"}

	u, err := url.Parse(cfg.DSN("t_abc"))
	if err != nil {
		t.Fatalf("parse DSN: %v", err)
	}
	if pw, _ := u.User.Password(); pw != "p@ss" {
		t.Errorf("password = %q", pw)
	}
	if got := u.Query().Get("search_path"); got != "t_abc,public" {
		t.Errorf("search_path = %q", got)
	}
	if got := u.Query().Get("sslmode"); got != "disable" {
		t.Errorf("sslmode = %q", got)
	}
	if u2, _ := url.Parse(cfg.DSN("")); u2.Query().Has("search_path") {
		t.Error("empty schema should not set search_path")
	}
}

func TestTestClock(t *testing.T) {
	start := TestTime()
	c := NewTestClock(start)
	c.Advance(90 * time.Minute)
	if got := c.Now().Sub(start); got != 90*time.Minute {
		t.Fatalf("elapsed = %v, want 90m", got)
	}
	c.Set(start)
	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}
}

func TestConcurrentTestRunnerKeepsOrder(t *testing.T) {
	r := NewConcurrentTestRunner(t)
	errs := r.RunConcurrent(
		func() error { return nil },
		func() error { return errSentinel },
	)
	if errs[0] != nil || errs[1] != errSentinel {
		t.Fatalf("RunConcurrent() = %v", errs)
	}
}

var errSentinel = &sentinelError{}

type sentinelError struct{}

func (*sentinelError) Error() string { return "sentinel" }
