package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	"github.com/srbenoit/mathops-sub032/internal/ports"
	"github.com/srbenoit/mathops-sub032/internal/service"
)

const (
	cookieOAuthState    = "oauth_state"
	cookieOAuthNonce    = "oauth_nonce"
	cookiePostLoginDest = "post_login_redirect"
)

// AuthServiceInterface defines the auth operations the handlers need.
type AuthServiceInterface interface {
	SessionValidator
	Methods() []domainauth.Method
	BeginLogin(ctx context.Context, method domainauth.Method, redirectURL string) (*service.BeginLoginResult, error)
	Login(ctx context.Context, in service.LoginInput) (*service.LoginResult, error)
	Logout(ctx context.Context, sessionID string) bool
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Domain string
	// Secure forces the Secure attribute even on plain-HTTP requests.
	Secure bool
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc     AuthServiceInterface
	Cookies CookieConfig
	Logger  *slog.Logger
	// Now defaults to time.Now; cookie lifetimes derive from it.
	Now func() time.Time
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// ListMethods returns the configured login methods.
// GET /auth/methods.
func (h *AuthHandlers) ListMethods(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"methods": h.Svc.Methods()})
}

type loginRequest struct {
	Method   domainauth.Method `json:"method"`
	Username string            `json:"username,omitempty"`
	Password string            `json:"password,omitempty"`
}

type loginResponse struct {
	Session   domainauth.Session       `json:"session"`
	Reconcile *service.ReconcileReport `json:"reconcile,omitempty"`
}

// Login authenticates a non-redirect strategy (local or test).
// POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Method == "" {
		req.Method = domainauth.MethodLocal
	}

	creds := ports.Credentials{}
	if req.Username != "" {
		creds[ports.CredUsername] = req.Username
	}
	if req.Password != "" {
		creds[ports.CredPassword] = req.Password
	}

	res, err := h.Svc.Login(r.Context(), service.LoginInput{Method: req.Method, Credentials: creds, LiveCheck: true})
	if err != nil {
		h.writeLoginError(w, r, err)
		return
	}
	h.setSessionCookie(w, r, res.Session)
	WriteJSON(w, http.StatusOK, loginResponse{Session: res.Session, Reconcile: res.Reconcile})
}

// Begin starts a redirect login flow.
// GET /auth/{method}/begin?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) Begin(w http.ResponseWriter, r *http.Request) {
	method := domainauth.Method(r.PathValue("method"))
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	result, err := h.Svc.BeginLogin(r.Context(), method, redirectURI)
	if err != nil {
		if errors.Is(err, domainauth.ErrUnknownMethod) {
			writeServiceError(w, err)
			return
		}
		h.logger().ErrorContext(r.Context(), "begin login failed", "method", method, "error", err)
		WriteError(w, ErrorParams{Code: http.StatusBadGateway, ErrCode: "login_failed", Err: errors.New("could not start login")})
		return
	}

	h.setTempCookie(w, r, cookieOAuthState, result.State)
	h.setTempCookie(w, r, cookieOAuthNonce, result.Nonce)
	h.setTempCookie(w, r, cookiePostLoginDest, redirectURI)
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback completes a redirect login flow.
// GET /auth/{method}/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	method := domainauth.Method(r.PathValue("method"))
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_parameters",
			Err:     errors.New("code and state are required"),
		})
		return
	}

	stateCookie, err := r.Cookie(cookieOAuthState)
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_state",
			Err:     errors.New("invalid or missing state parameter"),
		})
		return
	}
	nonceCookie, err := r.Cookie(cookieOAuthNonce)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_nonce",
			Err:     errors.New("missing nonce"),
		})
		return
	}

	res, err := h.Svc.Login(r.Context(), service.LoginInput{
		Method: method,
		Credentials: ports.Credentials{
			ports.CredCode:  code,
			ports.CredState: state,
			ports.CredNonce: nonceCookie.Value,
		},
		LiveCheck: true,
	})
	if err != nil {
		h.writeLoginError(w, r, err)
		return
	}

	h.setSessionCookie(w, r, res.Session)
	h.clearCookie(w, r, cookieOAuthState)
	h.clearCookie(w, r, cookieOAuthNonce)
	http.Redirect(w, r, h.postLoginRedirect(w, r), http.StatusFound)
}

// Logout ends the caller's session. It succeeds even without one.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	removed := false
	if id := sessionIDFromRequest(r, h.Cookies.Name); id != "" {
		removed = h.Svc.Logout(r.Context(), id)
	}
	h.clearCookie(w, r, h.Cookies.Name)
	WriteJSON(w, http.StatusOK, map[string]any{"status": "logged_out", "removed": removed})
}

func (h *AuthHandlers) writeLoginError(w http.ResponseWriter, r *http.Request, err error) {
	if !errors.Is(err, domainauth.ErrAuthenticationFailed) && !errors.Is(err, domainauth.ErrUnknownMethod) {
		h.logger().ErrorContext(r.Context(), "login failed", "error", err)
	}
	writeServiceError(w, err)
}

func (h *AuthHandlers) secure(r *http.Request) bool {
	return h.Cookies.Secure || r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// setSessionCookie writes the session cookie. Its lifetime follows the
// session timeout; every validated request slides the server-side timeout.
func (h *AuthHandlers) setSessionCookie(w http.ResponseWriter, r *http.Request, s domainauth.Session) {
	maxAge := int(s.TimeoutAt.Sub(h.now()).Seconds())
	if maxAge <= 0 {
		maxAge = 0
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.Cookies.Name,
		Value:    s.ID,
		Path:     "/",
		Domain:   h.Cookies.Domain,
		HttpOnly: true,
		Secure:   h.secure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (h *AuthHandlers) setTempCookie(w http.ResponseWriter, r *http.Request, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.Cookies.Domain,
		HttpOnly: true,
		Secure:   h.secure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600, // 10 minutes
	})
}

// clearCookie mirrors the attributes used when setting cookies so browsers
// match and delete them.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.Cookies.Domain,
		HttpOnly: true,
		Secure:   h.secure(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// postLoginRedirect returns the stored destination and clears its cookie.
func (h *AuthHandlers) postLoginRedirect(w http.ResponseWriter, r *http.Request) string {
	redirectURI := "/"
	if c, err := r.Cookie(cookiePostLoginDest); err == nil {
		redirectURI = safeRedirectPath(c.Value)
		h.clearCookie(w, r, cookiePostLoginDest)
	}
	return redirectURI
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(candidate, "//") {
		return "/"
	}
	return candidate
}
