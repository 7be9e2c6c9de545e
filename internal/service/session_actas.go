package service

import (
	"fmt"

	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
)

// IsReservedUserID reports whether userID is a service identity that no
// session may delegate to or switch to.
func (s *SessionStore) IsReservedUserID(userID string) bool {
	_, ok := s.reserved[userID]
	return ok
}

// SetActAs installs an act-as override on a session. The base role must be
// able to act as the requested role. A target that matches the base identity
// clears the override. A target with a user id but no role acts as a student.
func (s *SessionStore) SetActAs(id string, target domainauth.ActAs) (domainauth.Session, error) {
	role := target.Role
	if role == "" {
		role = domainauth.RoleStudent
		if target.UserID == "" {
			return s.ClearActAs(id)
		}
	}
	if !role.Valid() {
		return domainauth.Session{}, fmt.Errorf("%w: %q", domainauth.ErrUnknownRole, role)
	}
	if target.UserID != "" && s.IsReservedUserID(target.UserID) {
		return domainauth.Session{}, domainauth.ErrInvalidIdentity
	}

	return s.mutate(id, func(rec *domainauth.Session) error {
		if !rec.Role.CanActAs(role) {
			return domainauth.ErrNotAuthorized
		}

		sameUser := target.UserID == "" || target.UserID == rec.UserID
		if sameUser {
			clearActAsUser(rec)
			rec.ActAsRole = roleOverride(rec.Role, role)
			return nil
		}

		rec.ActAsUserID = target.UserID
		rec.ActAsFirstName = target.FirstName
		rec.ActAsLastName = target.LastName
		rec.ActAsScreenName = target.ScreenName
		rec.ActAsRole = roleOverride(rec.Role, role)
		return nil
	})
}

// SetEffectiveRole changes only the act-as role, keeping any act-as user.
// Setting the base role clears the role override.
func (s *SessionStore) SetEffectiveRole(id string, role domainauth.Role) (domainauth.Session, error) {
	if !role.Valid() {
		return domainauth.Session{}, fmt.Errorf("%w: %q", domainauth.ErrUnknownRole, role)
	}
	return s.mutate(id, func(rec *domainauth.Session) error {
		if !rec.Role.CanActAs(role) {
			return domainauth.ErrNotAuthorized
		}
		rec.ActAsRole = roleOverride(rec.Role, role)
		return nil
	})
}

// ClearActAs drops every act-as override.
func (s *SessionStore) ClearActAs(id string) (domainauth.Session, error) {
	return s.mutate(id, func(rec *domainauth.Session) error {
		clearActAsUser(rec)
		rec.ActAsRole = ""
		return nil
	})
}

// SetUser switches the session to a different identity outright. The time
// offset is reset and any act-as override is cleared because delegation set
// up for the previous identity no longer applies.
func (s *SessionStore) SetUser(id string, identity domainauth.Identity, role domainauth.Role) (domainauth.Session, error) {
	if identity.UserID == "" {
		return domainauth.Session{}, fmt.Errorf("%w: user id is required", domainauth.ErrInvalidIdentity)
	}
	if !role.Valid() {
		return domainauth.Session{}, fmt.Errorf("%w: %q", domainauth.ErrUnknownRole, role)
	}
	if s.IsReservedUserID(identity.UserID) {
		return domainauth.Session{}, domainauth.ErrInvalidIdentity
	}

	return s.mutate(id, func(rec *domainauth.Session) error {
		if !rec.Role.CanActAs(role) {
			return domainauth.ErrNotAuthorized
		}
		rec.UserID = identity.UserID
		rec.FirstName = identity.FirstName
		rec.LastName = identity.LastName
		rec.ScreenName = identity.DisplayName()
		rec.Role = role
		rec.TimeOffset = 0
		clearActAsUser(rec)
		rec.ActAsRole = ""
		return nil
	})
}

func roleOverride(base, requested domainauth.Role) domainauth.Role {
	if requested == base {
		return ""
	}
	return requested
}

func clearActAsUser(rec *domainauth.Session) {
	rec.ActAsUserID = ""
	rec.ActAsFirstName = ""
	rec.ActAsLastName = ""
	rec.ActAsScreenName = ""
}
