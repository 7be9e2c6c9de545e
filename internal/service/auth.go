package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	"github.com/srbenoit/mathops-sub032/internal/ports"
)

// DefaultLoginReconcileTimeout bounds the live check run during a student login.
const DefaultLoginReconcileTimeout = 10 * time.Second

// AuthStrategy pairs a login strategy with the highest role it may grant.
type AuthStrategy struct {
	Strategy ports.LoginStrategy
	MaxRole  domainauth.Role // empty means no cap
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Strategies []AuthStrategy      // Required: at least one
	Sessions   *SessionStore       // Required
	Roles      ports.RoleMapper    // Optional: maps groups when a strategy asserts no role
	Directory  ports.UserDirectory // Optional: resolves names for act-as
	Reconciler *ReconcileService   // Optional: live check on student login

	// ReconcileOnLogin enables the login live check; LoginTimeout bounds it.
	ReconcileOnLogin bool
	LoginTimeout     time.Duration

	NewSessionID func() string // Optional: defaults to uuid
	Logger       *slog.Logger
}

// AuthService orchestrates login strategies, role mapping and the session store.
type AuthService struct {
	strategies map[domainauth.Method]AuthStrategy
	order      []domainauth.Method
	sessions   *SessionStore
	roles      ports.RoleMapper
	directory  ports.UserDirectory
	reconciler *ReconcileService

	reconcileOnLogin bool
	loginTimeout     time.Duration
	newID            func() string
	logger           *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	if opts.Sessions == nil {
		return nil, errors.New("SessionStore is required")
	}
	if len(opts.Strategies) == 0 {
		return nil, errors.New("at least one login strategy is required")
	}

	s := &AuthService{
		strategies:       make(map[domainauth.Method]AuthStrategy, len(opts.Strategies)),
		sessions:         opts.Sessions,
		roles:            opts.Roles,
		directory:        opts.Directory,
		reconciler:       opts.Reconciler,
		reconcileOnLogin: opts.ReconcileOnLogin,
		loginTimeout:     opts.LoginTimeout,
		newID:            opts.NewSessionID,
		logger:           opts.Logger,
	}
	for _, st := range opts.Strategies {
		if st.Strategy == nil {
			return nil, errors.New("nil login strategy")
		}
		m := st.Strategy.Method()
		if _, dup := s.strategies[m]; dup {
			return nil, fmt.Errorf("duplicate login strategy %q", m)
		}
		if st.MaxRole != "" && !st.MaxRole.Valid() {
			return nil, fmt.Errorf("%w: max role %q", domainauth.ErrUnknownRole, st.MaxRole)
		}
		s.strategies[m] = st
		s.order = append(s.order, m)
	}
	if s.loginTimeout <= 0 {
		s.loginTimeout = DefaultLoginReconcileTimeout
	}
	if s.newID == nil {
		s.newID = generateSessionID
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "auth_service")
	return s, nil
}

// Methods lists the configured login methods in registration order.
func (s *AuthService) Methods() []domainauth.Method { return slices.Clone(s.order) }

// Sessions exposes the underlying session store.
func (s *AuthService) Sessions() *SessionStore { return s.sessions }

// BeginLoginResult contains the result of beginning a redirect login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates a redirect-based login for method.
func (s *AuthService) BeginLogin(ctx context.Context, method domainauth.Method, redirectURL string) (*BeginLoginResult, error) {
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	st, ok := s.strategies[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domainauth.ErrUnknownMethod, method)
	}
	rs, ok := st.Strategy.(ports.RedirectStrategy)
	if !ok {
		return nil, fmt.Errorf("login method %q does not redirect", method)
	}

	authURL, state, nonce, err := rs.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// LoginInput groups parameters for Login.
type LoginInput struct {
	Method      domainauth.Method
	Credentials ports.Credentials
	// LiveCheck asks for a registration reconciliation when a student signs in.
	LiveCheck bool
}

// LoginResult is the created session plus the live-check report, if one ran.
type LoginResult struct {
	Session   domainauth.Session
	Reconcile *ReconcileReport
}

// Login authenticates through the selected strategy and creates a session.
// Credential problems surface only as ErrAuthenticationFailed; the details
// stay in the log.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	st, ok := s.strategies[in.Method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domainauth.ErrUnknownMethod, in.Method)
	}

	identity, err := st.Strategy.Authenticate(ctx, in.Credentials)
	if err != nil {
		if errors.Is(err, domainauth.ErrAuthenticationFailed) {
			s.logger.InfoContext(ctx, "login rejected", "method", in.Method, "error", err)
			return nil, domainauth.ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if identity.UserID == "" || s.sessions.IsReservedUserID(identity.UserID) {
		s.logger.WarnContext(ctx, "login produced unusable identity", "method", in.Method, "user_id", identity.UserID)
		return nil, domainauth.ErrAuthenticationFailed
	}

	role := s.resolveRole(identity, st.MaxRole)
	sess, err := s.sessions.Create(domainauth.Session{
		ID:         s.newID(),
		AuthType:   in.Method,
		UserID:     identity.UserID,
		FirstName:  identity.FirstName,
		LastName:   identity.LastName,
		ScreenName: identity.DisplayName(),
		Role:       role,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.logger.InfoContext(ctx, "session created",
		"method", in.Method, "user_id", sess.UserID, "role", sess.Role, "session_tag", sess.Tag)

	res := &LoginResult{Session: sess}
	if in.LiveCheck && role == domainauth.RoleStudent {
		res.Reconcile = s.liveCheck(ctx, sess.UserID)
	}
	return res, nil
}

// resolveRole picks the asserted role, else the mapped one, else student,
// and then caps it at the strategy's maximum.
func (s *AuthService) resolveRole(identity domainauth.Identity, maxRole domainauth.Role) domainauth.Role {
	role := identity.Role
	if role == "" && s.roles != nil && len(identity.Groups) > 0 {
		role = s.roles.Map(identity.Groups)
	}
	if role == "" || !role.Valid() {
		role = domainauth.RoleStudent
	}
	if maxRole != "" && !maxRole.CanActAs(role) {
		role = maxRole
	}
	return role
}

// liveCheck reconciles a freshly signed-in student. Failures never block the login.
func (s *AuthService) liveCheck(ctx context.Context, studentID string) *ReconcileReport {
	if !s.reconcileOnLogin || s.reconciler == nil || !s.reconciler.Eligible(studentID) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.loginTimeout)
	defer cancel()

	report, err := s.reconciler.Reconcile(ctx, ReconcileRequest{StudentID: studentID})
	if err != nil {
		s.logger.WarnContext(ctx, "login reconciliation failed", "student_id", studentID, "error", err)
	}
	return report
}

// Validate returns the live session for id and extends its timeout.
func (s *AuthService) Validate(sessionID string) (domainauth.Session, error) {
	if sessionID == "" {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	return s.sessions.Validate(sessionID)
}

// Logout removes a session. It reports whether one was removed.
func (s *AuthService) Logout(ctx context.Context, sessionID string) bool {
	if sessionID == "" {
		return false
	}
	removed := s.sessions.Remove(sessionID)
	if removed {
		s.logger.InfoContext(ctx, "session logged out")
	}
	return removed
}

// ActAsUser delegates the session to another user, looking up the display
// names in the user directory when one is configured.
func (s *AuthService) ActAsUser(ctx context.Context, sessionID, userID string, role domainauth.Role) (domainauth.Session, error) {
	target := domainauth.ActAs{UserID: userID, Role: role}
	if userID != "" && s.directory != nil {
		who, err := s.directory.LookupUser(ctx, userID)
		if err != nil {
			return domainauth.Session{}, fmt.Errorf("lookup user %s: %w", userID, err)
		}
		target.FirstName = who.FirstName
		target.LastName = who.LastName
		target.ScreenName = who.DisplayName()
	}

	sess, err := s.sessions.SetActAs(sessionID, target)
	if err != nil {
		return domainauth.Session{}, err
	}
	s.logger.InfoContext(ctx, "act-as updated",
		"user_id", sess.UserID, "act_as_user", sess.ActAsUserID, "act_as_role", sess.ActAsRole)
	return sess, nil
}

// SwitchUser replaces the session's identity outright. The new role must be
// one the current base role may act as.
func (s *AuthService) SwitchUser(ctx context.Context, sessionID, userID string, role domainauth.Role) (domainauth.Session, error) {
	identity := domainauth.Identity{UserID: userID}
	if userID != "" && s.directory != nil {
		who, err := s.directory.LookupUser(ctx, userID)
		if err != nil {
			return domainauth.Session{}, fmt.Errorf("lookup user %s: %w", userID, err)
		}
		identity = who
		identity.UserID = userID
	}
	if role == "" {
		role = domainauth.RoleStudent
	}

	sess, err := s.sessions.SetUser(sessionID, identity, role)
	if err != nil {
		return domainauth.Session{}, err
	}
	s.logger.InfoContext(ctx, "session user switched", "session_tag", sess.Tag, "user_id", sess.UserID, "role", sess.Role)
	return sess, nil
}

// ListSessions returns every live session for an administrator.
func (s *AuthService) ListSessions(requesterID string) ([]domainauth.Session, error) {
	return s.sessions.List(requesterID)
}

func generateSessionID() string {
	return uuid.NewString()
}
