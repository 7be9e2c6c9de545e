package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - http",
			input:    "http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:     "single service - reconciler",
			input:    "reconciler",
			expected: map[ServiceMode]bool{ServiceModeReconciler: true},
		},
		{
			name:  "all services with spaces",
			input: " http , sweeper , reconciler ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:       true,
				ServiceModeSweeper:    true,
				ServiceModeReconciler: true,
			},
		},
		{
			name:  "duplicate services",
			input: "http,http,sweeper",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:    true,
				ServiceModeSweeper: true,
			},
		},
		{name: "empty string", input: "", expectError: true},
		{name: "only spaces and commas", input: " , , ", expectError: true},
		{name: "invalid service name", input: "http,rules-engine", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	tests := []struct {
		name           string
		services       string
		wantHTTP       bool
		wantSweeper    bool
		wantReconciler bool
	}{
		{name: "default", services: "http,sweeper", wantHTTP: true, wantSweeper: true},
		{name: "reconciler only", services: "reconciler", wantReconciler: true},
		{name: "invalid disables everything", services: "http,bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Services: tt.services}
			if got := cfg.IsHTTPServerEnabled(); got != tt.wantHTTP {
				t.Errorf("IsHTTPServerEnabled(): expected %v, got %v", tt.wantHTTP, got)
			}
			if got := cfg.IsSweeperEnabled(); got != tt.wantSweeper {
				t.Errorf("IsSweeperEnabled(): expected %v, got %v", tt.wantSweeper, got)
			}
			if got := cfg.IsReconcilerEnabled(); got != tt.wantReconciler {
				t.Errorf("IsReconcilerEnabled(): expected %v, got %v", tt.wantReconciler, got)
			}
		})
	}
}

func TestAppConfig_ParseAuthEnv(t *testing.T) {
	t.Setenv("AUTH_METHODS", "local,SSO,local")
	t.Setenv("LOCAL_AUTH_MAX_ROLE", "staff")
	t.Setenv("OIDC_CLIENT_ID", "app-client")
	t.Setenv("OIDC_CLIENT_SECRET", "super-secret")
	t.Setenv("OIDC_REDIRECT_URL", "https://app.example.com/auth/sso/callback")
	t.Setenv("OIDC_DISCOVERY_URL", "https://login.example.com")
	t.Setenv("OIDC_SCOPE", "openid profile")
	t.Setenv("OIDC_GROUP_ROLES", "math-staff|staff;math-tutors|tutor")
	t.Setenv("TEST_AUTH_USER_ID", "811111111")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	expected := AuthConfig{
		Methods: []AuthMethod{AuthMethodLocal, AuthMethodSSO},
		Local:   LocalAuthConfig{MaxRole: "staff"},
		OIDC: OIDCConfig{
			ClientID:     "app-client",
			ClientSecret: "super-secret",
			RedirectURL:  "https://app.example.com/auth/sso/callback",
			Scope:        "openid profile",
			DiscoveryURL: "https://login.example.com",
			MaxRole:      "administrator",
			GroupRoles:   map[string]string{"math-staff": "staff", "math-tutors": "tutor"},
			DefaultRole:  "student",
		},
		Test: TestHarnessConfig{UserID: "811111111", FirstName: "Test", LastName: "Station", Role: "student"},
	}

	if !reflect.DeepEqual(cfg.Auth, expected) {
		t.Fatalf("unexpected auth configuration:\nexpected: %#v\ngot:      %#v", expected, cfg.Auth)
	}
	if !cfg.Auth.Enabled(AuthMethodSSO) || cfg.Auth.Enabled(AuthMethodTest) {
		t.Fatalf("unexpected enabled methods: %v", cfg.Auth.Methods)
	}
}

func TestAppConfig_ParseRejectsUnknownMethod(t *testing.T) {
	t.Setenv("AUTH_METHODS", "local,kerberos")

	var cfg AppConfig
	if err := env.Parse(&cfg); err == nil {
		t.Fatal("expected an error for an unknown auth method")
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Session.Timeout != 2*time.Hour {
		t.Errorf("session timeout: got %v", cfg.Session.Timeout)
	}
	if cfg.Session.LoggedOutRetention != 5*time.Hour {
		t.Errorf("logged out retention: got %v", cfg.Session.LoggedOutRetention)
	}
	if cfg.Session.PersistBackend != PersistBackendFile {
		t.Errorf("persist backend: got %q", cfg.Session.PersistBackend)
	}
	if !reflect.DeepEqual(cfg.Session.ReservedUserIDs, []string{"SYSTEM", "GUEST"}) {
		t.Errorf("reserved ids: got %v", cfg.Session.ReservedUserIDs)
	}
	if cfg.Reconcile.StudentIDPrefix != "8" || cfg.Reconcile.TestStudentID != "888888888" {
		t.Errorf("reconcile eligibility: got %+v", cfg.Reconcile)
	}
	if cfg.LiveReg.Enabled() {
		t.Error("live registration should be disabled without a base url")
	}
	if !cfg.IsHTTPServerEnabled() || !cfg.IsSweeperEnabled() || cfg.IsReconcilerEnabled() {
		t.Errorf("unexpected default services %q", cfg.Services)
	}
}

func TestSessionConfig_Sanitize(t *testing.T) {
	cfg := SessionConfig{Timeout: time.Second, LoggedOutRetention: 0, PersistDir: " ", CookieName: " "}
	cfg.Sanitize()

	if cfg.Timeout != time.Minute {
		t.Errorf("expected timeout clamped to a minute, got %v", cfg.Timeout)
	}
	if cfg.LoggedOutRetention != time.Minute {
		t.Errorf("expected retention to cover the timeout, got %v", cfg.LoggedOutRetention)
	}
	if cfg.PersistBackend != PersistBackendFile || cfg.PersistDir != "." || cfg.CookieName != "mathops_session" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestPersistBackend_UnmarshalText(t *testing.T) {
	var b PersistBackend
	if err := b.UnmarshalText([]byte(" Redis ")); err != nil || b != PersistBackendRedis {
		t.Fatalf("expected redis, got %q (%v)", b, err)
	}
	if err := b.UnmarshalText([]byte("s3")); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoopConfig_Sanitize(t *testing.T) {
	sw := SweeperConfig{Interval: time.Second, CheckpointInterval: 2 * time.Second}
	sw.Sanitize()
	if sw.Interval != 5*time.Second || sw.CheckpointInterval != 5*time.Second {
		t.Errorf("unexpected sweeper config %+v", sw)
	}

	rc := ReconcilerConfig{Interval: 0, Concurrency: 0}
	rc.Sanitize()
	if rc.Interval != time.Minute || rc.Concurrency != 1 {
		t.Errorf("unexpected reconciler config %+v", rc)
	}
}

func TestLiveRegConfig_Sanitize(t *testing.T) {
	cfg := LiveRegConfig{BaseURL: " https://registrar.example.edu/api/ ", RowsExpression: " "}
	cfg.Sanitize()

	if cfg.BaseURL != "https://registrar.example.edu/api" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.BaseURL)
	}
	if cfg.RowsExpression != "registrations" || cfg.Timeout != 10*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !cfg.Enabled() {
		t.Error("expected live registration enabled")
	}
}

func TestMetricsConfig_Sanitize(t *testing.T) {
	cfg := MetricsConfig{Enabled: true, StatsdAddress: " "}
	cfg.Sanitize()
	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = MetricsConfig{Enabled: true, StatsdAddress: " statsd:1234 ", Prefix: ".mathops."}
	cfg.Sanitize()
	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" || cfg.Prefix != "mathops" {
		t.Fatalf("unexpected sanitised config %+v", cfg)
	}
}

func TestGateAlertsConfig_Sanitize(t *testing.T) {
	cfg := GateAlertsConfig{
		Enabled:    true,
		RetryLimit: -1,
		Slack:      SlackAlertConfig{Enabled: true, WebhookURL: " "},
		PagerDuty:  PagerDutyAlertConfig{Enabled: true, RoutingKey: " key "},
	}
	cfg.Sanitize()
	if cfg.Slack.Enabled {
		t.Error("slack should be disabled without a webhook url")
	}
	if !cfg.PagerDuty.Enabled || cfg.PagerDuty.RoutingKey != "key" {
		t.Errorf("unexpected pagerduty config %+v", cfg.PagerDuty)
	}
	if cfg.RetryLimit != 0 || cfg.Timeout != 5*time.Second {
		t.Errorf("unexpected retry/timeout %d %s", cfg.RetryLimit, cfg.Timeout)
	}
	if cfg.Slack.Username != "mathops" || cfg.PagerDuty.Component != "livereg" {
		t.Errorf("expected defaults, got %q %q", cfg.Slack.Username, cfg.PagerDuty.Component)
	}

	off := GateAlertsConfig{
		Slack: SlackAlertConfig{Enabled: true, WebhookURL: "https://hooks.example"},
	}
	off.Sanitize()
	if off.Slack.Enabled {
		t.Error("sinks must be disabled when gate alerts are off")
	}
}

func TestAppConfig_ParseGateAlertsEnv(t *testing.T) {
	t.Setenv("GATE_ALERTS_ENABLED", "true")
	t.Setenv("GATE_ALERTS_SLACK_ENABLED", "true")
	t.Setenv("GATE_ALERTS_SLACK_WEBHOOK_URL", " https://hooks.example/T1 ")
	t.Setenv("GATE_ALERTS_PAGERDUTY_ENABLED", "true")
	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("METRICS_FLUSH_INTERVAL", "250ms")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	alerts := cfg.Observability.Alerts
	if !alerts.Slack.Enabled || alerts.Slack.WebhookURL != "https://hooks.example/T1" {
		t.Errorf("unexpected slack config %+v", alerts.Slack)
	}
	if alerts.PagerDuty.Enabled {
		t.Error("pagerduty should be disabled without a routing key")
	}
	if alerts.PagerDuty.DedupKey != "mathops:livereg-gate" {
		t.Errorf("dedup key = %q", alerts.PagerDuty.DedupKey)
	}
	if !cfg.Observability.Metrics.IsEnabled() || cfg.Observability.Metrics.FlushInterval != 250*time.Millisecond {
		t.Errorf("unexpected metrics config %+v", cfg.Observability.Metrics)
	}
}
