package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/srbenoit/mathops-sub032/internal/core"
	"github.com/srbenoit/mathops-sub032/internal/data/pgxutil"
	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	"github.com/srbenoit/mathops-sub032/internal/domain/model"
	apperrors "github.com/srbenoit/mathops-sub032/internal/errors"
	"github.com/srbenoit/mathops-sub032/internal/ports"
)

// UserLoginRepo stores local credentials.
type UserLoginRepo struct {
	DB *sql.DB
}

var _ core.UserLoginRepository = (*UserLoginRepo)(nil)

// NewUserLoginRepo creates a new UserLoginRepo.
func NewUserLoginRepo(db *sql.DB) *UserLoginRepo {
	return &UserLoginRepo{DB: db}
}

// GetByUsername returns the login for username. Usernames are matched case-insensitively.
func (r *UserLoginRepo) GetByUsername(ctx context.Context, username string) (*model.UserLogin, error) {
	var out *model.UserLogin
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT username, user_id, password_hash, role, first_name, last_name, screen_name
			FROM user_logins WHERE username = $1`,
			strings.ToLower(username))
		if err != nil {
			return err
		}
		login, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.UserLogin])
		if err != nil {
			return err
		}
		out = login
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("login %q not found", username)
	}
	if err != nil {
		return nil, fmt.Errorf("query login: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// Upsert creates the login or replaces the existing row for the same username.
func (r *UserLoginRepo) Upsert(ctx context.Context, login *model.UserLogin) error {
	if login == nil {
		return errors.New("login is required")
	}
	username := strings.ToLower(strings.TrimSpace(login.Username))
	if username == "" || login.UserID == "" || login.PasswordHash == "" {
		return apperrors.Validation("username, user_id and password_hash are required")
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO user_logins (username, user_id, password_hash, role, first_name, last_name, screen_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (username) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			screen_name = EXCLUDED.screen_name,
			updated_at = now()`,
		username, login.UserID, login.PasswordHash, login.Role,
		login.FirstName, login.LastName, login.ScreenName,
	)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// StudentDirectory resolves user ids against the student table.
type StudentDirectory struct {
	DB *sql.DB
}

var _ ports.UserDirectory = (*StudentDirectory)(nil)

// NewStudentDirectory creates a new StudentDirectory.
func NewStudentDirectory(db *sql.DB) *StudentDirectory {
	return &StudentDirectory{DB: db}
}

// LookupUser implements ports.UserDirectory.
func (d *StudentDirectory) LookupUser(ctx context.Context, userID string) (domainauth.Identity, error) {
	var id domainauth.Identity
	err := d.DB.QueryRowContext(ctx, `
		SELECT student_id, first_name, last_name, screen_name
		FROM students WHERE student_id = $1`, userID,
	).Scan(&id.UserID, &id.FirstName, &id.LastName, &id.ScreenName)
	if errors.Is(err, sql.ErrNoRows) {
		return domainauth.Identity{}, apperrors.NotFoundf("user %s not found", userID)
	}
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("lookup user: %w", apperrors.MapDBError(err))
	}
	return id, nil
}
