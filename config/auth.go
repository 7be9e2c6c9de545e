package config

import (
	"fmt"
	"slices"
	"strings"
)

// AuthMethod names a login strategy.
type AuthMethod string

const (
	// AuthMethodLocal checks username and password against stored hashes.
	AuthMethodLocal AuthMethod = "local"
	// AuthMethodSSO uses the campus OIDC provider.
	AuthMethodSSO AuthMethod = "sso"
	// AuthMethodTest signs in the fixed test-harness identity (development only).
	AuthMethodTest AuthMethod = "test"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMethod.
func (a *AuthMethod) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch AuthMethod(v) {
	case AuthMethodLocal, AuthMethodSSO, AuthMethodTest:
		*a = AuthMethod(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMethod: %q (valid options: local, sso, test)", v)
	}
}

// LocalAuthConfig controls username/password login.
type LocalAuthConfig struct {
	// MaxRole caps the role a local login may be granted.
	MaxRole string `env:"MAX_ROLE" envDefault:"superuser"`
}

// OIDCConfig contains OAuth/OIDC configuration for SSO login.
type OIDCConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"mathops"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:"mathops"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/sso/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	LogoutURL    string `env:"LOGOUT_URL"`
	// MaxRole caps the role an SSO login may be granted.
	MaxRole string `env:"MAX_ROLE" envDefault:"administrator"`
	// GroupRoles maps IdP group names to roles, e.g. "math-staff|staff;math-tutors|tutor".
	GroupRoles map[string]string `env:"GROUP_ROLES" envSeparator:";" envKeyValSeparator:"|"`
	// DefaultRole applies when no group matches.
	DefaultRole string `env:"DEFAULT_ROLE" envDefault:"student"`
}

// TestHarnessConfig is the identity signed in by the test strategy and
// installed on the reserved test-station session.
type TestHarnessConfig struct {
	UserID    string `env:"USER_ID"    envDefault:"99999999"`
	FirstName string `env:"FIRST_NAME" envDefault:"Test"`
	LastName  string `env:"LAST_NAME"  envDefault:"Station"`
	Role      string `env:"ROLE"       envDefault:"student"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Methods lists the enabled login strategies.
	Methods []AuthMethod `env:"AUTH_METHODS" envDefault:"local" envSeparator:","`

	Local LocalAuthConfig   `envPrefix:"LOCAL_AUTH_"`
	OIDC  OIDCConfig        `envPrefix:"OIDC_"`
	Test  TestHarnessConfig `envPrefix:"TEST_AUTH_"`
}

// Sanitize removes duplicate methods while keeping their order.
func (a *AuthConfig) Sanitize() {
	seen := make(map[AuthMethod]bool, len(a.Methods))
	a.Methods = slices.DeleteFunc(a.Methods, func(m AuthMethod) bool {
		if seen[m] {
			return true
		}
		seen[m] = true
		return false
	})
}

// Enabled reports whether the login strategy m is configured.
func (a *AuthConfig) Enabled(m AuthMethod) bool {
	return slices.Contains(a.Methods, m)
}
