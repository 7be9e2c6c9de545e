package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
)

// Credentials carries the form fields submitted to a login strategy. Each
// strategy documents the keys it reads.
type Credentials map[string]string

// Get returns the value for key or "".
func (c Credentials) Get(key string) string {
	if c == nil {
		return ""
	}
	return c[key]
}

// LoginStrategy establishes an identity for one login method.
// Implementations return domainauth.ErrAuthenticationFailed (possibly wrapped)
// when the credentials are rejected.
type LoginStrategy interface {
	Method() domainauth.Method
	Authenticate(ctx context.Context, creds Credentials) (domainauth.Identity, error)
}

// BeginInput carries inputs for initiating a redirect-based auth flow.
type BeginInput struct {
	RedirectURL string
}

// RedirectStrategy is implemented by strategies that need a browser redirect
// to an IdP before Authenticate can be called.
type RedirectStrategy interface {
	LoginStrategy
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)
}

// Credential keys read by the built-in strategies.
const (
	CredUsername = "username"
	CredPassword = "password"
	CredCode     = "code"
	CredState    = "state"
	CredNonce    = "nonce"
)

// RoleMapper maps provider groups to application roles.
type RoleMapper interface {
	Map(groups []string) domainauth.Role
}

// UserDirectory resolves a user id to display names for act-as delegation.
type UserDirectory interface {
	LookupUser(ctx context.Context, userID string) (domainauth.Identity, error)
}

// SessionSnapshotter saves and restores session snapshots across restarts.
// Restore consumes what it returns so the same snapshot is never replayed.
type SessionSnapshotter interface {
	Save(ctx context.Context, sessions []domainauth.Session) error
	Restore(ctx context.Context) ([]domainauth.Session, error)
}
