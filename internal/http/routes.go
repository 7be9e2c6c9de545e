// Package httpx serves the session and reconciliation JSON API.
package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
)

// AuthAPI is everything the router needs from the auth service.
type AuthAPI interface {
	AuthServiceInterface
	SessionAdmin
}

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth     AuthAPI       // Required
	Sessions SessionEditor // Required
	Cookies  CookieConfig

	// Optional: nil when no live registration source is configured.
	Reconciler ReconcileRunner
	Gate       GateController
	// Optional: hold endpoints are not mounted when nil.
	Holds HoldManager

	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if services.Cookies.Name == "" {
		services.Cookies.Name = "mathops_session"
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	authHandlers := &AuthHandlers{Svc: services.Auth, Cookies: services.Cookies, Logger: logger}
	registerAuthRoutes(mux, authHandlers)

	requireSession := RequireSession(services.Auth, services.Cookies.Name)
	sessionHandlers := &SessionHandlers{Admin: services.Auth, Store: services.Sessions}
	registerSessionRoutes(mux, sessionHandlers, requireSession)

	reconcileHandlers := &ReconcileHandlers{
		Reconciler: services.Reconciler,
		Gate:       services.Gate,
		Holds:      services.Holds,
		Logger:     logger,
	}
	registerAdminRoutes(mux, reconcileHandlers, requireSession)

	return mux
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("GET /auth/methods", h.ListMethods)
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.HandleFunc("GET /auth/{method}/begin", h.Begin)
	mux.HandleFunc("GET /auth/{method}/callback", h.Callback)
	mux.HandleFunc("POST /auth/logout", h.Logout)
}

func registerSessionRoutes(mux *http.ServeMux, h *SessionHandlers, requireSession func(http.Handler) http.Handler) {
	mux.Handle("GET /api/session", requireSession(http.HandlerFunc(h.Whoami)))
	mux.Handle("POST /api/session/act-as", requireSession(http.HandlerFunc(h.ActAs)))
	mux.Handle("DELETE /api/session/act-as", requireSession(http.HandlerFunc(h.ClearActAs)))
	mux.Handle("PUT /api/session/role", requireSession(http.HandlerFunc(h.SetRole)))
	mux.Handle("PUT /api/session/user", requireSession(http.HandlerFunc(h.SetUser)))
	mux.Handle("PUT /api/session/time-offset", requireSession(http.HandlerFunc(h.SetTimeOffset)))
	mux.Handle("GET /api/admin/sessions", chain(http.HandlerFunc(h.List),
		requireSession, RequireRole(domainauth.RoleAdministrator)))
}

func registerAdminRoutes(mux *http.ServeMux, h *ReconcileHandlers, requireSession func(http.Handler) http.Handler) {
	admin := func(fn http.HandlerFunc) http.Handler {
		return chain(fn, requireSession, RequireRole(domainauth.RoleAdministrator))
	}
	mux.Handle("POST /api/admin/reconcile/{studentID}", admin(h.Reconcile))
	mux.Handle("GET /api/admin/gate", admin(h.GateStatus))
	mux.Handle("POST /api/admin/gate/probe", admin(h.ProbeGate))
	mux.Handle("POST /api/admin/gate/reset", admin(h.ResetGate))
	if h.Holds != nil {
		mux.Handle("GET /api/admin/students/{studentID}/holds", admin(h.ListHolds))
		mux.Handle("DELETE /api/admin/students/{studentID}/holds/{holdID}", admin(h.ClearHold))
	}
}
