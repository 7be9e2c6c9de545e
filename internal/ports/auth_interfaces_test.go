package ports_test

import (
	"testing"

	mocks "github.com/srbenoit/mathops-sub032/internal/mocks/auth"
	"github.com/srbenoit/mathops-sub032/internal/ports"
)

// This test only verifies that our mocks conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.LoginStrategy = (*mocks.MockStrategy)(nil)
	var _ ports.RedirectStrategy = (*mocks.MockRedirectStrategy)(nil)
	var _ ports.RoleMapper = mocks.StaticRoleMapper{}
	var _ ports.UserDirectory = (*mocks.MemoryDirectory)(nil)
}

func TestCredentials_Get(t *testing.T) {
	var nilCreds ports.Credentials
	if nilCreds.Get(ports.CredUsername) != "" {
		t.Fatal("nil credentials should read as empty")
	}
	c := ports.Credentials{ports.CredUsername: "ada"}
	if c.Get(ports.CredUsername) != "ada" {
		t.Fatalf("unexpected username %q", c.Get(ports.CredUsername))
	}
}
