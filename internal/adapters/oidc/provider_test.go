package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	"github.com/srbenoit/mathops-sub032/internal/ports"
)

// newTestIdP serves discovery and a token endpoint. tokenBody is written as
// the token response; an empty body yields a 400.
func newTestIdP(t *testing.T, tokenBody map[string]any) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(DiscoveryDocument{
			Issuer:                srv.URL,
			AuthorizationEndpoint: srv.URL + "/auth",
			TokenEndpoint:         srv.URL + "/token",
			UserinfoEndpoint:      srv.URL + "/userinfo",
			JwksURI:               srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, _ *http.Request) {
		if tokenBody == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenBody)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, srv *httptest.Server) *Provider {
	t.Helper()
	p, err := NewProvider(context.Background(), ProviderConfig{
		ClientID:     "mathops",
		ClientSecret: "test-secret",
		RedirectURL:  "http://localhost:8080/auth/sso/callback",
		Scope:        "profile email",
		DiscoveryURL: srv.URL + "/.well-known/openid-configuration",
		LogoutURL:    "https://idp.example.edu/logout",
		HTTPClient:   srv.Client(),
	})
	require.NoError(t, err)
	return p
}

func TestNewProvider_DiscoversEndpoints(t *testing.T) {
	srv := newTestIdP(t, nil)
	p := newTestProvider(t, srv)

	assert.Equal(t, srv.URL+"/auth", p.config.Endpoint.AuthURL)
	assert.Equal(t, srv.URL+"/token", p.config.Endpoint.TokenURL)
	assert.Equal(t, []string{"openid", "profile", "email"}, p.config.Scopes)
	assert.Equal(t, domainauth.MethodSSO, p.Method())
	assert.Equal(t, "https://idp.example.edu/logout", p.LogoutURL())
}

func TestNewProvider_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config ProviderConfig
		errMsg string
	}{
		{
			name:   "missing client ID",
			config: ProviderConfig{ClientSecret: "s", RedirectURL: "http://x/cb", DiscoveryURL: "http://x"},
			errMsg: "client ID is required",
		},
		{
			name:   "missing client secret",
			config: ProviderConfig{ClientID: "c", RedirectURL: "http://x/cb", DiscoveryURL: "http://x"},
			errMsg: "client secret is required",
		},
		{
			name:   "missing redirect URL",
			config: ProviderConfig{ClientID: "c", ClientSecret: "s", DiscoveryURL: "http://x"},
			errMsg: "redirect URL is required",
		},
		{
			name:   "missing discovery URL",
			config: ProviderConfig{ClientID: "c", ClientSecret: "s", RedirectURL: "http://x/cb"},
			errMsg: "discovery URL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProvider_Begin(t *testing.T) {
	p := newTestProvider(t, newTestIdP(t, nil))

	authURL, state, nonce, err := p.Begin(context.Background(), ports.BeginInput{RedirectURL: "http://localhost:8080/auth/sso/callback"})
	require.NoError(t, err)
	assert.Len(t, state, 32)
	assert.Len(t, nonce, 32)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "mathops", q.Get("client_id"))
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, nonce, q.Get("nonce"))
	assert.Equal(t, "code", q.Get("response_type"))

	_, _, _, err = p.Begin(context.Background(), ports.BeginInput{})
	require.Error(t, err)
}

func TestProvider_Authenticate_MissingFields(t *testing.T) {
	p := newTestProvider(t, newTestIdP(t, nil))

	for _, creds := range []ports.Credentials{
		{ports.CredState: "s", ports.CredNonce: "n"},
		{ports.CredCode: "c", ports.CredNonce: "n"},
		{ports.CredCode: "c", ports.CredState: "s"},
	} {
		_, err := p.Authenticate(context.Background(), creds)
		require.ErrorIs(t, err, domainauth.ErrAuthenticationFailed)
	}
}

func TestProvider_Authenticate_ExchangeRejected(t *testing.T) {
	p := newTestProvider(t, newTestIdP(t, nil))

	_, err := p.Authenticate(context.Background(), ports.Credentials{
		ports.CredCode: "bad", ports.CredState: "s", ports.CredNonce: "n",
	})
	require.ErrorIs(t, err, domainauth.ErrAuthenticationFailed)
	assert.Contains(t, err.Error(), "exchange code for token")
}

func TestProvider_Authenticate_MissingIDToken(t *testing.T) {
	p := newTestProvider(t, newTestIdP(t, map[string]any{
		"access_token": "at", "token_type": "Bearer", "expires_in": 3600,
	}))

	_, err := p.Authenticate(context.Background(), ports.Credentials{
		ports.CredCode: "ok", ports.CredState: "s", ports.CredNonce: "n",
	})
	require.ErrorIs(t, err, domainauth.ErrAuthenticationFailed)
	assert.Contains(t, err.Error(), "missing id_token")
}

func TestGenerateRandomString(t *testing.T) {
	a, err := generateRandomString(16)
	require.NoError(t, err)
	assert.Len(t, a, 16)

	b, err := generateRandomString(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	empty, err := generateRandomString(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGetIDTokenFromToken(t *testing.T) {
	tok := (&oauth2.Token{}).WithExtra(map[string]any{"id_token": "abc.def.ghi"})
	raw, err := getIDTokenFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", raw)

	_, err = getIDTokenFromToken((&oauth2.Token{}).WithExtra(map[string]any{"not_id": "x"}))
	require.ErrorContains(t, err, "missing id_token")

	_, err = getIDTokenFromToken(nil)
	require.ErrorContains(t, err, "nil token")
}

func TestMapIDTokenClaims(t *testing.T) {
	ad := idTokenClaims{
		Sub:            "sub-123",
		EmployeeID:     "823000001",
		SamAccountName: "ramstudent",
		FirstName:      "Cam",
		LastName:       "Ram",
		Mail:           "cam.ram@example.edu",
		MemberOf:       []string{"CN=MathOps-Staff,OU=Groups,DC=example,DC=edu"},
	}
	f := mapIDTokenClaims(ad)
	assert.Equal(t, "823000001", f.userID)
	assert.Equal(t, "cam.ram@example.edu", f.email)
	assert.Equal(t, "Cam", f.givenName)
	assert.Equal(t, "Ram", f.familyName)
	assert.Equal(t, ad.MemberOf, f.groups)

	std := idTokenClaims{
		Sub: "sub-123", PreferredUsername: "ramstudent",
		GivenName: "Cam", FamilyName: "Ram", Name: "Cam R.",
		Email: "cam@example.edu", Groups: []string{"students"},
	}
	f = mapIDTokenClaims(std)
	assert.Equal(t, "ramstudent", f.userID)
	assert.Equal(t, "Cam R.", f.screenName)
	assert.Equal(t, []string{"students"}, f.groups)
}

func TestFillFromUserInfoClaims(t *testing.T) {
	ui := UserInfo{
		Subject:    "sub-abc",
		EmployeeID: "823000001",
		GivenName:  "Cam",
		FamilyName: "Ram",
		Email:      "cam@example.edu",
		Groups:     []string{"students"},
	}
	var f idFields
	fillFromUserInfoClaims(&f, ui)
	assert.Equal(t, "823000001", f.userID)
	assert.Equal(t, "Cam", f.givenName)
	assert.Equal(t, "Ram", f.familyName)
	assert.Equal(t, []string{"students"}, f.groups)

	kept := idFields{userID: "keep", email: "keep@example.edu", givenName: "Keep", familyName: "Keep", groups: []string{"x"}}
	fillFromUserInfoClaims(&kept, ui)
	assert.Equal(t, "keep", kept.userID)
	assert.Equal(t, "keep@example.edu", kept.email)
	assert.Equal(t, []string{"x"}, kept.groups)
}
