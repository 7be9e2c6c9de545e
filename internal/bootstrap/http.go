package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/srbenoit/mathops-sub032/config"
	httpx "github.com/srbenoit/mathops-sub032/internal/http"
)

const defaultHTTPShutdownTimeout = 10 * time.Second

// HTTPServerConfig wires the JSON API onto a listener.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
	// Errors receives a listener failure; nil means log only.
	Errors chan<- error
}

// StartHTTPServer serves the API in the background and returns the server
// for shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	srv := newHTTPServer(appCfg.HTTP, buildHTTPHandler(logger, routerServices(appCfg, cfg.Services, logger)))
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		err := srv.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		logger.Error("http server failed", "addr", srv.Addr, "error", err)
		if cfg.Errors != nil {
			select {
			case cfg.Errors <- fmt.Errorf("http server: %w", err):
			default:
			}
		}
	}()
	return srv
}

func newHTTPServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// routerServices adapts the container to the router. Optional services are
// only set when present so the router sees a nil interface, not a typed nil.
func routerServices(cfg *config.AppConfig, svcs ServiceContainer, logger *slog.Logger) httpx.RouterServices {
	rs := httpx.RouterServices{
		Auth:     svcs.Auth,
		Sessions: svcs.Sessions,
		Cookies: httpx.CookieConfig{
			Name:   cfg.Session.CookieName,
			Domain: cfg.HTTP.CookieDomain,
			Secure: cfg.Session.CookieSecure && !cfg.IsDev,
		},
		Logger: logger,
	}
	if svcs.Reconciler != nil && svcs.Gate != nil {
		rs.Reconciler = svcs.Reconciler
		rs.Gate = svcs.Gate
	}
	if svcs.Holds != nil {
		rs.Holds = svcs.Holds
	}
	return rs
}

// Recover wraps Logging so a panic is still logged with its request id.
func buildHTTPHandler(logger *slog.Logger, services httpx.RouterServices) http.Handler {
	return httpx.Logging(logger)(httpx.Recover(logger)(httpx.NewRouter(services)))
}

// ShutdownConfig bounds the HTTP drain.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Timeout time.Duration
	Logger  *slog.Logger
}

// ShutdownHTTPServer stops accepting connections and waits for in-flight
// requests up to Timeout.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	began := time.Now()
	if err := cfg.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("drain http server: %w", err)
	}
	if cfg.Logger != nil {
		cfg.Logger.Info("http server drained", "elapsed", time.Since(began))
	}
	return nil
}
