package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"sync"

	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	"github.com/srbenoit/mathops-sub032/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.LoginStrategy    = (*MockStrategy)(nil)
	_ ports.RedirectStrategy = (*MockRedirectStrategy)(nil)
	_ ports.RoleMapper       = (*StaticRoleMapper)(nil)
	_ ports.UserDirectory    = (*MemoryDirectory)(nil)
)

// MockStrategy is a LoginStrategy that accepts one username/password pair
// unless AuthenticateFunc overrides it.
type MockStrategy struct {
	AuthMethod       domainauth.Method
	Username         string
	Password         string
	User             domainauth.Identity
	AuthenticateFunc func(ctx context.Context, creds ports.Credentials) (domainauth.Identity, error)

	mu    sync.Mutex
	calls int
}

// NewMockStrategy returns a local strategy accepting user/pass for identity.
func NewMockStrategy(user, pass string, identity domainauth.Identity) *MockStrategy {
	return &MockStrategy{AuthMethod: domainauth.MethodLocal, Username: user, Password: pass, User: identity}
}

func (m *MockStrategy) Method() domainauth.Method {
	if m.AuthMethod == "" {
		return domainauth.MethodLocal
	}
	return m.AuthMethod
}

func (m *MockStrategy) Authenticate(ctx context.Context, creds ports.Credentials) (domainauth.Identity, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, creds)
	}
	if creds.Get(ports.CredUsername) != m.Username || creds.Get(ports.CredPassword) != m.Password {
		return domainauth.Identity{}, domainauth.ErrAuthenticationFailed
	}
	return m.User, nil
}

// Calls reports how many times Authenticate ran.
func (m *MockStrategy) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockRedirectStrategy simulates an IdP with deterministic state and nonce.
type MockRedirectStrategy struct {
	AuthURL     string
	StatePrefix string
	NoncePrefix string
	User        domainauth.Identity
	BeginFunc   func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)

	mu        sync.Mutex
	callCount int
	issued    map[string]string // state -> nonce
}

// NewMockRedirectStrategy creates an SSO double with sensible defaults.
func NewMockRedirectStrategy(identity domainauth.Identity) *MockRedirectStrategy {
	return &MockRedirectStrategy{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		User:        identity,
	}
}

func (m *MockRedirectStrategy) Method() domainauth.Method { return domainauth.MethodSSO }

func (m *MockRedirectStrategy) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	state := fmt.Sprintf("%s-%d", m.StatePrefix, m.callCount)
	nonce := fmt.Sprintf("%s-%d", m.NoncePrefix, m.callCount)
	if m.issued == nil {
		m.issued = make(map[string]string)
	}
	m.issued[state] = nonce
	return m.AuthURL, state, nonce, nil
}

// Authenticate succeeds only for a state/nonce pair issued by Begin.
func (m *MockRedirectStrategy) Authenticate(_ context.Context, creds ports.Credentials) (domainauth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nonce, ok := m.issued[creds.Get(ports.CredState)]
	if !ok || nonce != creds.Get(ports.CredNonce) || creds.Get(ports.CredCode) == "" {
		return domainauth.Identity{}, domainauth.ErrAuthenticationFailed
	}
	delete(m.issued, creds.Get(ports.CredState))
	return m.User, nil
}

// StaticRoleMapper maps every group in Groups to its role; others map to Default.
type StaticRoleMapper struct {
	Groups  map[string]domainauth.Role
	Default domainauth.Role
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	for _, g := range groups {
		if r, ok := m.Groups[g]; ok {
			return r
		}
	}
	return m.Default
}

// MemoryDirectory resolves users from a map.
type MemoryDirectory struct {
	Users map[string]domainauth.Identity
	Err   error
}

func (d *MemoryDirectory) LookupUser(_ context.Context, userID string) (domainauth.Identity, error) {
	if d.Err != nil {
		return domainauth.Identity{}, d.Err
	}
	id, ok := d.Users[userID]
	if !ok {
		return domainauth.Identity{}, ErrNotFound
	}
	return id, nil
}

// ErrNotFound is returned by mocks when an entity is not present.
type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

var ErrNotFound error = notFoundError{}
