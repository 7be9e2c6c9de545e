package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/srbenoit/mathops-sub032/config"
	"github.com/srbenoit/mathops-sub032/internal/adapters/livereg"
	redisadapter "github.com/srbenoit/mathops-sub032/internal/adapters/redis"
	"github.com/srbenoit/mathops-sub032/internal/adapters/sessionfile"
	"github.com/srbenoit/mathops-sub032/internal/core"
	"github.com/srbenoit/mathops-sub032/internal/data"
	"github.com/srbenoit/mathops-sub032/internal/observability/statsd"
	"github.com/srbenoit/mathops-sub032/internal/ports"
	"github.com/srbenoit/mathops-sub032/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Sessions    *service.SessionStore
	Persistence *service.SessionPersistence // nil when persistence is off
	Auth        *service.AuthService
	Holds       *service.HoldService

	// Nil when no live registration source is configured.
	Gate       *service.SourceGate
	Reconciler *service.ReconcileService
	Scheduler  *service.ReconcileScheduler

	Sweeper       *service.SessionSweeper
	Observability ObservabilityContainer
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // Optional
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Mirror    *data.MirrorStore
	Catalog   *data.CatalogRepo
	Directory *data.StudentDirectory
}

func buildRepositories(db *sql.DB) serviceRepositories {
	return serviceRepositories{
		Mirror:    data.NewMirrorStore(db),
		Catalog:   data.NewCatalogRepo(db),
		Directory: data.NewStudentDirectory(db),
	}
}

// NewServices wires every service from configuration.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service config is required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	obs := buildObservability(logger, cfg.Observability)
	repos := buildRepositories(deps.DB)

	sessions := service.NewSessionStore(service.SessionStoreOptions{
		Config: service.SessionStoreConfig{
			Timeout:            cfg.Session.Timeout,
			LoggedOutRetention: cfg.Session.LoggedOutRetention,
			ReservedUserIDs:    cfg.Session.ReservedUserIDs,
			TestIdentity:       testIdentity(cfg.Auth.Test),
		},
		Logger: logger,
	})

	persistence, err := newSessionPersistence(cfg.Session, sessions, deps.RedisClient, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	holds := service.NewHoldService(service.HoldServiceOptions{
		Store:   repos.Mirror,
		Logger:  logger,
		Metrics: obs.MetricsSink,
	})

	c := ServiceContainer{
		Sessions:      sessions,
		Persistence:   persistence,
		Holds:         holds,
		Observability: obs,
	}

	if cfg.LiveReg.Enabled() {
		if err := wireReconciliation(&c, cfg, repos, deps.RedisClient, logger); err != nil {
			return ServiceContainer{}, err
		}
	} else {
		logger.Warn("live registration source not configured; reconciliation disabled")
	}

	strategies, err := BuildStrategies(ctx, AuthConfig{Auth: cfg.Auth, IsDev: cfg.IsDev, DB: deps.DB, Logger: logger})
	if err != nil {
		return ServiceContainer{}, err
	}
	c.Auth, err = service.NewAuthService(service.AuthServiceOptions{
		Strategies:       strategies,
		Sessions:         sessions,
		Roles:            BuildRoleMapper(cfg.Auth.OIDC, logger),
		Directory:        repos.Directory,
		Reconciler:       c.Reconciler,
		ReconcileOnLogin: cfg.Reconcile.OnLogin,
		LoginTimeout:     cfg.Reconcile.LoginTimeout,
		Logger:           logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("auth service: %w", err)
	}

	c.Sweeper, err = service.NewSessionSweeper(service.SessionSweeperOptions{
		Store:       sessions,
		Persistence: persistence,
		Config:      cfg.Sweeper,
		Logger:      logger,
		Metrics:     obs.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("session sweeper: %w", err)
	}

	return c, nil
}

// NewReconciler builds only the reconciliation engine and its gate, for
// one-shot runs outside the server.
func NewReconciler(deps *ServiceDeps) (*service.ReconcileService, error) {
	if deps == nil || deps.Config == nil || deps.DB == nil {
		return nil, errors.New("config and database are required")
	}
	if !deps.Config.LiveReg.Enabled() {
		return nil, errors.New("live registration source is not configured")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	repos := buildRepositories(deps.DB)
	obs := buildObservability(logger, deps.Config.Observability)
	c := ServiceContainer{
		Sessions:      service.NewSessionStore(service.SessionStoreOptions{Logger: logger}),
		Holds:         service.NewHoldService(service.HoldServiceOptions{Store: repos.Mirror, Logger: logger, Metrics: obs.MetricsSink}),
		Observability: obs,
	}
	if err := wireReconciliation(&c, deps.Config, repos, deps.RedisClient, logger); err != nil {
		return nil, err
	}
	return c.Reconciler, nil
}

// wireReconciliation builds the live source client, the gate and the engine.
func wireReconciliation(
	c *ServiceContainer,
	cfg *config.AppConfig,
	repos serviceRepositories,
	rdb redis.UniversalClient,
	logger *slog.Logger,
) error {
	source, err := livereg.NewClient(livereg.Config{
		BaseURL:        cfg.LiveReg.BaseURL,
		PathTemplate:   cfg.LiveReg.PathTemplate,
		PingPath:       cfg.LiveReg.PingPath,
		RowsExpression: cfg.LiveReg.RowsExpression,
		Token:          cfg.LiveReg.Token,
		Timeout:        cfg.LiveReg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("live registration client: %w", err)
	}

	c.Gate = service.NewSourceGate(service.SourceGateOptions{
		Logger:   logger,
		Metrics:  c.Observability.MetricsSink,
		OnChange: gateAlertHook(c.Observability.GateNotifier),
	})

	var locker core.StudentLocker
	if rdb != nil {
		locker = redisadapter.NewStudentLock(rdb)
	}

	c.Reconciler, err = service.NewReconcileService(service.ReconcileServiceOptions{
		Deps: service.ReconcileDeps{
			Source:  source,
			Gate:    c.Gate,
			Mirror:  repos.Mirror,
			Catalog: repos.Catalog,
			Holds:   c.Holds,
			Locker:  locker,
			Metrics: c.Observability.MetricsSink,
		},
		Config: service.ReconcileConfig{
			StudentIDPrefix: cfg.Reconcile.StudentIDPrefix,
			TestStudentID:   cfg.Reconcile.TestStudentID,
			LockTTL:         cfg.Reconcile.LockTTL,
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("reconcile service: %w", err)
	}

	c.Scheduler, err = service.NewReconcileScheduler(service.ReconcileSchedulerOptions{
		Reconciler: c.Reconciler,
		Sessions:   c.Sessions,
		Config:     cfg.Reconciler,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("reconcile scheduler: %w", err)
	}
	return nil
}

func newSessionPersistence(
	cfg config.SessionConfig,
	store *service.SessionStore,
	rdb redis.UniversalClient,
	logger *slog.Logger,
) (*service.SessionPersistence, error) {
	var backend ports.SessionSnapshotter
	switch cfg.PersistBackend {
	case config.PersistBackendNone:
		return nil, nil
	case config.PersistBackendRedis:
		if rdb == nil {
			return nil, errors.New("redis session persistence requires REDIS_ENABLED")
		}
		backend = redisadapter.NewSessionSnapshotStore(redisadapter.SessionSnapshotOptions{
			Client: rdb,
			Prefix: cfg.RedisPrefix,
			Logger: logger,
		})
	default:
		fileStore, err := sessionfile.New(sessionfile.Options{Dir: cfg.PersistDir, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("session file store: %w", err)
		}
		backend = fileStore
	}
	return service.NewSessionPersistence(service.SessionPersistenceOptions{
		Store:   store,
		Backend: backend,
		Logger:  logger,
	})
}

// ServiceOrchestrationConfig contains everything RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component. A service
// with an empty mode runs whenever the process runs.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
		Errors:   deps.errCh,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || (descriptor.mode != "" && !deps.enabledServices[descriptor.mode]) {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{mode: svc.mode, name: svc.name, done: done})
	}

	return handles
}

func newSweeperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeSweeper,
		name: "session sweeper",
		start: func(ctx context.Context) error {
			if deps.cfg.Services.Sweeper == nil {
				return nil
			}
			return deps.cfg.Services.Sweeper.Run(ctx)
		},
	}
}

func newReconcilerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReconciler,
		name: "reconciler",
		start: func(ctx context.Context) error {
			if deps.cfg.Services.Scheduler == nil {
				deps.logger.WarnContext(ctx, "reconciler enabled without a live registration source; not running")
				return nil
			}
			return deps.cfg.Services.Scheduler.Run(ctx)
		},
	}
}

func newGateNotifierBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		name: "gate notifier",
		start: func(ctx context.Context) error {
			n := deps.cfg.Services.Observability.GateNotifier
			if n == nil || !n.Enabled() {
				return nil
			}
			return n.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newGateNotifierBackgroundService(deps),
		newSweeperBackgroundService(deps),
		newReconcilerBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RestoreSessions loads persisted sessions into the store. Failures are
// logged; the process starts with an empty table.
func RestoreSessions(ctx context.Context, p *service.SessionPersistence, logger *slog.Logger) {
	if p == nil {
		return
	}
	if _, err := p.Load(ctx); err != nil {
		logger.ErrorContext(ctx, "failed to restore sessions", "error", err)
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	RestoreSessions(serviceCtx, cfg.Services.Persistence, logger)

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	return waitForShutdown(shutdownConfig{
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		httpTimeout: cfg.Config.HTTP.ShutdownTimeout,
		persistence: cfg.Services.Persistence,
		metrics:     cfg.Services.Observability.MetricsSink,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

// errorChannelBufferSize leaves room for the always-on gate notifier.
func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	httpTimeout time.Duration
	persistence *service.SessionPersistence
	metrics     statsd.Sink
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop drains HTTP first so no request touches the store while it
// is persisted, then stops the loops and saves the live sessions.
func gracefulStop(cfg shutdownConfig) error {
	var errs []error
	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: context.Background(),
			Server:  cfg.httpServer,
			Timeout: cfg.httpTimeout,
			Logger:  cfg.logger,
		}); err != nil {
			errs = append(errs, err)
		}
	}

	cfg.cancel()
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	if cfg.persistence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()
		if _, err := cfg.persistence.Persist(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	// Flushes any buffered metric lines.
	if closer, ok := cfg.metrics.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close metrics: %w", err))
		}
	}

	return errors.Join(errs...)
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
