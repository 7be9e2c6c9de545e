package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/srbenoit/mathops-sub032/config"
)

func TestNewHTTPServerUsesConfiguredTimeouts(t *testing.T) {
	cfg := config.HTTPConfig{ReadTimeout: 0, WriteTimeout: time.Second, IdleTimeout: 0}
	cfg.Sanitize()

	srv := newHTTPServer(cfg, http.NotFoundHandler())
	if srv.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", srv.Addr)
	}
	if srv.ReadTimeout != time.Second || srv.ReadHeaderTimeout != time.Second {
		t.Errorf("read timeouts = %s/%s", srv.ReadTimeout, srv.ReadHeaderTimeout)
	}
	if srv.WriteTimeout != 5*time.Second {
		t.Errorf("write timeout = %s, want the 5s floor", srv.WriteTimeout)
	}
	if srv.IdleTimeout != time.Second {
		t.Errorf("idle timeout = %s", srv.IdleTimeout)
	}
}

func TestBuildHTTPHandlerRecoversWithRequestID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := buildHTTPHandler(logger, routerServices(&config.AppConfig{}, ServiceContainer{}, logger))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestShutdownHTTPServerNil(t *testing.T) {
	if err := ShutdownHTTPServer(ShutdownConfig{Context: context.Background()}); err != nil {
		t.Fatalf("ShutdownHTTPServer(nil server) = %v", err)
	}
}
