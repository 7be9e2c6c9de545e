package oidc

// Package oidc implements the single sign-on login strategy on top of an
// OpenID Connect identity provider.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	"github.com/srbenoit/mathops-sub032/internal/ports"
)

var _ ports.RedirectStrategy = (*Provider)(nil)

// Provider is the SSO login strategy. Begin builds the IdP redirect and
// Authenticate exchanges the returned code for a verified identity.
type Provider struct {
	config    *oauth2.Config
	logoutURL string
	client    *http.Client
	logger    *slog.Logger

	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	LogoutURL    string
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout
	Logger       *slog.Logger
}

// DiscoveryDocument is the subset of the discovery document go-oidc reads.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// NewProvider performs discovery and returns a ready strategy.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider{
		logoutURL: config.LogoutURL,
		client:    client,
		logger:    logger.With("component", "oidc"),
	}

	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(p.clientContext(ctx), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	p.oidcProvider = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: config.ClientID})

	scopes := strings.Fields(config.Scope)
	if !slices.Contains(scopes, gooidc.ScopeOpenID) {
		scopes = append([]string{gooidc.ScopeOpenID}, scopes...)
	}
	p.config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Scopes:       scopes,
		Endpoint:     op.Endpoint(),
	}
	return p, nil
}

// Method implements ports.LoginStrategy.
func (p *Provider) Method() domainauth.Method { return domainauth.MethodSSO }

// LogoutURL is where the browser goes to end the IdP session, if configured.
func (p *Provider) LogoutURL() string { return p.logoutURL }

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

// Begin returns the IdP authorization URL with a fresh state and nonce. The
// caller keeps both and hands them back to Authenticate.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	state, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	// redirect_uri stays the configured one; IdPs match it exactly.
	authURL := p.config.AuthCodeURL(state,
		gooidc.Nonce(nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

// Authenticate reads ports.CredCode and ports.CredNonce. The caller has
// already matched ports.CredState against the value issued by Begin.
func (p *Provider) Authenticate(ctx context.Context, creds ports.Credentials) (domainauth.Identity, error) {
	code := creds.Get(ports.CredCode)
	nonce := creds.Get(ports.CredNonce)
	if code == "" || nonce == "" || creds.Get(ports.CredState) == "" {
		return domainauth.Identity{}, fmt.Errorf("%w: code, state and nonce are required", domainauth.ErrAuthenticationFailed)
	}

	ctx = p.clientContext(ctx)
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		p.logger.WarnContext(ctx, "code exchange failed", "error", err)
		return domainauth.Identity{}, fmt.Errorf("%w: exchange code for token: %w", domainauth.ErrAuthenticationFailed, err)
	}

	fields, err := p.extractFromIDToken(ctx, token, nonce)
	if err != nil {
		p.logger.WarnContext(ctx, "id token rejected", "error", err)
		return domainauth.Identity{}, fmt.Errorf("%w: %w", domainauth.ErrAuthenticationFailed, err)
	}

	if fields.userID == "" || fields.givenName == "" {
		if fillErr := p.fillFromUserInfo(ctx, token.AccessToken, &fields); fillErr != nil {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", fillErr)
		}
	}
	if fields.userID == "" {
		return domainauth.Identity{}, fmt.Errorf("%w: no user id claim", domainauth.ErrAuthenticationFailed)
	}

	return domainauth.Identity{
		UserID:     fields.userID,
		FirstName:  fields.givenName,
		LastName:   fields.familyName,
		ScreenName: fields.screenName,
		Email:      fields.email,
		Groups:     fields.groups,
		ExpiresAt:  token.Expiry,
	}, nil
}

// UserInfo is the userinfo payload, in directory (AD) and standard shapes.
type UserInfo struct {
	Subject           string   `json:"sub"`
	EmployeeID        string   `json:"employeeid"`
	SamAccountName    string   `json:"samaccountname"`
	PreferredUsername string   `json:"preferred_username"`
	FirstName         string   `json:"firstname"`
	LastName          string   `json:"lastname"`
	GivenName         string   `json:"given_name"`
	FamilyName        string   `json:"family_name"`
	Name              string   `json:"name"`
	Mail              string   `json:"mail"`
	Email             string   `json:"email"`
	MemberOf          []string `json:"memberof"`
	Groups            []string `json:"groups"`
}

func (p *Provider) fillFromUserInfo(ctx context.Context, accessToken string, f *idFields) error {
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	var info UserInfo
	if claimsErr := ui.Claims(&info); claimsErr != nil {
		return fmt.Errorf("decode user info: %w", claimsErr)
	}
	fillFromUserInfoClaims(f, info)
	return nil
}

type idFields struct {
	userID     string
	email      string
	givenName  string
	familyName string
	screenName string
	groups     []string
}

func (p *Provider) extractFromIDToken(ctx context.Context, tok *oauth2.Token, expectedNonce string) (idFields, error) {
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return idFields{}, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return idFields{}, fmt.Errorf("verify id_token: %w", err)
	}
	if idTok.Nonce != expectedNonce {
		return idFields{}, errors.New("invalid nonce")
	}
	var claims idTokenClaims
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return idFields{}, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	return mapIDTokenClaims(claims), nil
}

// idTokenClaims is a superset of standard OIDC and AD/ADFS claim shapes.
type idTokenClaims struct {
	Sub               string   `json:"sub"`
	EmployeeID        string   `json:"employeeid"`
	SamAccountName    string   `json:"samaccountname"`
	PreferredUsername string   `json:"preferred_username"`
	FirstName         string   `json:"firstname"`
	LastName          string   `json:"lastname"`
	GivenName         string   `json:"given_name"`
	FamilyName        string   `json:"family_name"`
	Name              string   `json:"name"`
	Mail              string   `json:"mail"`
	Email             string   `json:"email"`
	MemberOf          []string `json:"memberof"`
	Groups            []string `json:"groups"`
}

// mapIDTokenClaims prefers the campus employee id over account names and sub.
func mapIDTokenClaims(c idTokenClaims) idFields {
	return idFields{
		userID:     firstNonEmpty(c.EmployeeID, c.SamAccountName, c.PreferredUsername, c.Sub),
		email:      firstNonEmpty(c.Mail, c.Email),
		givenName:  firstNonEmpty(c.FirstName, c.GivenName),
		familyName: firstNonEmpty(c.LastName, c.FamilyName),
		screenName: c.Name,
		groups:     firstNonEmptySlice(c.MemberOf, c.Groups),
	}
}

// fillFromUserInfoClaims fills only the fields the id token left empty.
func fillFromUserInfoClaims(f *idFields, ui UserInfo) {
	if f.userID == "" {
		f.userID = firstNonEmpty(ui.EmployeeID, ui.SamAccountName, ui.PreferredUsername, ui.Subject)
	}
	if f.email == "" {
		f.email = firstNonEmpty(ui.Mail, ui.Email)
	}
	if f.givenName == "" {
		f.givenName = firstNonEmpty(ui.FirstName, ui.GivenName)
	}
	if f.familyName == "" {
		f.familyName = firstNonEmpty(ui.LastName, ui.FamilyName)
	}
	if f.screenName == "" {
		f.screenName = ui.Name
	}
	if len(f.groups) == 0 {
		f.groups = firstNonEmptySlice(ui.MemberOf, ui.Groups)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptySlice(vals ...[]string) []string {
	for _, v := range vals {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}

// generateRandomString returns a URL-safe random string of exactly length chars.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	b := make([]byte, (length*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}

func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
