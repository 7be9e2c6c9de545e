package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Login strategies
//   - database.go: Postgres and Redis
//   - http.go: HTTP server
//   - session.go: Session store and persistence
//   - reconcile.go: Reconciliation engine and live registration source
//   - services.go: Service mode and background loop configuration
type AppConfig struct {
	// IsDev controls development mode behavior (verbose logging, relaxed cookies).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Logging: LOG_LEVEL is debug, info, warn or error; LOG_FORMAT is json or text.
	LogLevel  string    `env:"LOG_LEVEL"`
	LogFormat LogFormat `env:"LOG_FORMAT" envDefault:"json"`

	// Authentication configuration
	Auth AuthConfig

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Session store configuration
	Session SessionConfig

	// Reconciliation configuration
	Reconcile ReconcileConfig
	LiveReg   LiveRegConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,sweeper"`

	// Background loops
	Sweeper    SweeperConfig
	Reconciler ReconcilerConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Auth.Sanitize()
	c.Session.Sanitize()
	c.Reconcile.Sanitize()
	c.LiveReg.Sanitize()
	c.Sweeper.Sanitize()
	c.Reconciler.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
	if c.LogFormat != LogFormatText {
		c.LogFormat = LogFormatJSON
	}
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// LogFormat selects the slog handler.
type LogFormat string

// Supported log formats.
const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool { return c.serviceEnabled(ServiceModeHTTP) }

// IsSweeperEnabled returns true if the session sweeper loop is enabled.
func (c *AppConfig) IsSweeperEnabled() bool { return c.serviceEnabled(ServiceModeSweeper) }

// IsReconcilerEnabled returns true if scheduled reconciliation is enabled.
func (c *AppConfig) IsReconcilerEnabled() bool { return c.serviceEnabled(ServiceModeReconciler) }
