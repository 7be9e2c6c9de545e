package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/srbenoit/mathops-sub032/config"
	"github.com/srbenoit/mathops-sub032/internal/adapters/authroles"
	"github.com/srbenoit/mathops-sub032/internal/adapters/devauth"
	"github.com/srbenoit/mathops-sub032/internal/adapters/localauth"
	"github.com/srbenoit/mathops-sub032/internal/adapters/oidc"
	"github.com/srbenoit/mathops-sub032/internal/data"
	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	"github.com/srbenoit/mathops-sub032/internal/service"
)

// AuthConfig contains configuration for the login strategies.
type AuthConfig struct {
	Auth   config.AuthConfig
	IsDev  bool
	DB     *sql.DB
	Logger *slog.Logger
}

// BuildStrategies creates one login strategy per configured method, each
// capped at its configured maximum role.
func BuildStrategies(ctx context.Context, cfg AuthConfig) ([]service.AuthStrategy, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	strategies := make([]service.AuthStrategy, 0, len(cfg.Auth.Methods))
	for _, method := range cfg.Auth.Methods {
		var (
			st  service.AuthStrategy
			err error
		)
		switch method {
		case config.AuthMethodLocal:
			st, err = buildLocalStrategy(cfg, logger)
		case config.AuthMethodSSO:
			st, err = buildSSOStrategy(ctx, cfg, logger)
		case config.AuthMethodTest:
			if !cfg.IsDev {
				logger.Warn("test login method ignored outside development mode")
				continue
			}
			st, err = buildTestStrategy(cfg.Auth.Test)
		default:
			err = fmt.Errorf("unsupported login method %q", method)
		}
		if err != nil {
			return nil, fmt.Errorf("%s login: %w", method, err)
		}
		strategies = append(strategies, st)
	}

	if len(strategies) == 0 {
		return nil, errors.New("no login methods configured")
	}
	return strategies, nil
}

func buildLocalStrategy(cfg AuthConfig, logger *slog.Logger) (service.AuthStrategy, error) {
	if cfg.DB == nil {
		return service.AuthStrategy{}, errors.New("database is required")
	}
	maxRole, err := domainauth.ParseRole(cfg.Auth.Local.MaxRole)
	if err != nil {
		return service.AuthStrategy{}, fmt.Errorf("max role: %w", err)
	}
	strategy, err := localauth.NewStrategy(data.NewUserLoginRepo(cfg.DB), logger)
	if err != nil {
		return service.AuthStrategy{}, err
	}
	return service.AuthStrategy{Strategy: strategy, MaxRole: maxRole}, nil
}

func buildSSOStrategy(ctx context.Context, cfg AuthConfig, logger *slog.Logger) (service.AuthStrategy, error) {
	o := cfg.Auth.OIDC
	if o.DiscoveryURL == "" || o.ClientID == "" || o.ClientSecret == "" {
		logger.Warn("sso selected but required config missing",
			"discovery_url_empty", o.DiscoveryURL == "",
			"client_id_empty", o.ClientID == "",
			"client_secret_empty", o.ClientSecret == "",
		)
		return service.AuthStrategy{}, errors.New("OIDC discovery url, client id and secret are required")
	}
	maxRole, err := domainauth.ParseRole(o.MaxRole)
	if err != nil {
		return service.AuthStrategy{}, fmt.Errorf("max role: %w", err)
	}

	prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		RedirectURL:  o.RedirectURL,
		Scope:        o.Scope,
		DiscoveryURL: o.DiscoveryURL,
		LogoutURL:    o.LogoutURL,
		Logger:       logger,
	})
	if err != nil {
		return service.AuthStrategy{}, err
	}
	return service.AuthStrategy{Strategy: prov, MaxRole: maxRole}, nil
}

func buildTestStrategy(cfg config.TestHarnessConfig) (service.AuthStrategy, error) {
	role, err := domainauth.ParseRole(cfg.Role)
	if err != nil {
		return service.AuthStrategy{}, fmt.Errorf("role: %w", err)
	}
	prov, err := devauth.NewProvider(devauth.Config{
		UserID:    cfg.UserID,
		FirstName: cfg.FirstName,
		LastName:  cfg.LastName,
		Role:      role,
	})
	if err != nil {
		return service.AuthStrategy{}, err
	}
	return service.AuthStrategy{Strategy: prov, MaxRole: role}, nil
}

// BuildRoleMapper maps IdP groups to roles from the OIDC group table.
// Entries naming an unknown role are skipped with a warning.
func BuildRoleMapper(cfg config.OIDCConfig, logger *slog.Logger) authroles.StaticRoleMapper {
	if logger == nil {
		logger = slog.Default()
	}
	groups := make(map[string]domainauth.Role, len(cfg.GroupRoles))
	for group, name := range cfg.GroupRoles {
		role, err := domainauth.ParseRole(name)
		if err != nil {
			logger.Warn("ignoring group role mapping", "group", group, "role", name)
			continue
		}
		groups[group] = role
	}
	def, err := domainauth.ParseRole(cfg.DefaultRole)
	if err != nil {
		def = domainauth.RoleStudent
	}
	return authroles.NewStaticRoleMapper(groups, def)
}

// testIdentity is installed on the reserved test-station session.
func testIdentity(cfg config.TestHarnessConfig) domainauth.Identity {
	role, err := domainauth.ParseRole(cfg.Role)
	if err != nil {
		role = domainauth.RoleStudent
	}
	return domainauth.Identity{
		UserID:    cfg.UserID,
		FirstName: cfg.FirstName,
		LastName:  cfg.LastName,
		Role:      role,
	}
}
