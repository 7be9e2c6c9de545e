package devauth

// Package devauth provides the test-harness login strategy: it signs in a
// fixed, configured identity without any credentials. It exists for test
// stations and local development and should never be enabled in production.

import (
	"context"
	"errors"

	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	"github.com/srbenoit/mathops-sub032/internal/ports"
)

var _ ports.LoginStrategy = (*Provider)(nil)

// Config is the identity handed out by the harness.
type Config struct {
	UserID    string
	FirstName string
	LastName  string
	Role      domainauth.Role // defaults to student
}

// Provider implements ports.LoginStrategy for the test harness.
type Provider struct {
	identity domainauth.Identity
}

// NewProvider validates cfg and returns the harness strategy.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("test harness: UserID is required")
	}
	role := cfg.Role
	if role == "" {
		role = domainauth.RoleStudent
	}
	if !role.Valid() {
		return nil, domainauth.ErrUnknownRole
	}
	return &Provider{identity: domainauth.Identity{
		UserID:    cfg.UserID,
		FirstName: cfg.FirstName,
		LastName:  cfg.LastName,
		Role:      role,
	}}, nil
}

// Method implements ports.LoginStrategy.
func (p *Provider) Method() domainauth.Method { return domainauth.MethodTest }

// Identity returns the configured identity.
func (p *Provider) Identity() domainauth.Identity { return p.identity }

// Authenticate ignores creds and returns the configured identity.
func (p *Provider) Authenticate(_ context.Context, _ ports.Credentials) (domainauth.Identity, error) {
	return p.identity, nil
}
