// Package localauth implements the username/password login strategy backed
// by the user_logins table.
package localauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/srbenoit/mathops-sub032/internal/core"
	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	apperrors "github.com/srbenoit/mathops-sub032/internal/errors"
	"github.com/srbenoit/mathops-sub032/internal/ports"
)

var _ ports.LoginStrategy = (*Strategy)(nil)

// Strategy verifies a username and password against stored argon2id hashes.
type Strategy struct {
	logins core.UserLoginRepository
	logger *slog.Logger
}

// NewStrategy constructs a local login strategy.
func NewStrategy(logins core.UserLoginRepository, logger *slog.Logger) (*Strategy, error) {
	if logins == nil {
		return nil, errors.New("user login repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Strategy{logins: logins, logger: logger.With("component", "localauth")}, nil
}

// Method implements ports.LoginStrategy.
func (s *Strategy) Method() domainauth.Method { return domainauth.MethodLocal }

// Authenticate reads ports.CredUsername and ports.CredPassword. Every
// rejection is reported as ErrAuthenticationFailed; the reason is only logged.
func (s *Strategy) Authenticate(ctx context.Context, creds ports.Credentials) (domainauth.Identity, error) {
	username := strings.TrimSpace(creds.Get(ports.CredUsername))
	password := creds.Get(ports.CredPassword)
	if username == "" || password == "" {
		return domainauth.Identity{}, domainauth.ErrAuthenticationFailed
	}

	login, err := s.logins.GetByUsername(ctx, username)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.logger.InfoContext(ctx, "local login rejected", "username", username, "reason", "unknown user")
			return domainauth.Identity{}, domainauth.ErrAuthenticationFailed
		}
		return domainauth.Identity{}, fmt.Errorf("lookup login: %w", err)
	}

	ok, err := VerifyPassword(password, login.PasswordHash)
	if err != nil {
		s.logger.WarnContext(ctx, "stored password hash unusable", "username", username, "error", err)
		return domainauth.Identity{}, domainauth.ErrAuthenticationFailed
	}
	if !ok {
		s.logger.InfoContext(ctx, "local login rejected", "username", username, "reason", "bad password")
		return domainauth.Identity{}, domainauth.ErrAuthenticationFailed
	}

	id := domainauth.Identity{
		UserID:     login.UserID,
		FirstName:  login.FirstName,
		LastName:   login.LastName,
		ScreenName: login.ScreenName,
	}
	if login.Role != "" {
		role, roleErr := domainauth.ParseRole(login.Role)
		if roleErr != nil {
			s.logger.WarnContext(ctx, "login row has unknown role", "username", username, "role", login.Role)
			return domainauth.Identity{}, domainauth.ErrAuthenticationFailed
		}
		id.Role = role
	}
	return id, nil
}
