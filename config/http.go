package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is where SSO callbacks land after login.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for session cookies; empty means the request host.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT"     envDefault:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"    envDefault:"30s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT"     envDefault:"2m"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies floors to the server timeouts. A reconcile request makes
// a live registration call, so the write timeout must outlast it.
func (h *HTTPConfig) Sanitize() {
	h.ReadTimeout = max(h.ReadTimeout, time.Second)
	h.WriteTimeout = max(h.WriteTimeout, 5*time.Second)
	h.IdleTimeout = max(h.IdleTimeout, h.ReadTimeout)
	h.ShutdownTimeout = max(h.ShutdownTimeout, time.Second)
}
