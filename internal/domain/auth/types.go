package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"errors"
	"strings"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence and cookies.
// Valid values are defined as constants below.
type Role string

const (
	RoleGuest         Role = "guest"
	RoleStudent       Role = "student"
	RoleTutor         Role = "tutor"
	RoleProctor       Role = "proctor"
	RoleInstructor    Role = "instructor"
	RoleStaff         Role = "staff"
	RoleAdministrator Role = "administrator"
	RoleSuperuser     Role = "superuser"
)

// roleLevels orders roles by authority. Tutor and proctor share a level and
// are therefore incomparable.
var roleLevels = map[Role]int{
	RoleGuest:         0,
	RoleStudent:       1,
	RoleTutor:         2,
	RoleProctor:       2,
	RoleInstructor:    3,
	RoleStaff:         4,
	RoleAdministrator: 5,
	RoleSuperuser:     6,
}

var roleAbbrevs = map[Role]string{
	RoleGuest:         "GST",
	RoleStudent:       "STU",
	RoleTutor:         "TUT",
	RoleProctor:       "PRC",
	RoleInstructor:    "INS",
	RoleStaff:         "STF",
	RoleAdministrator: "ADM",
	RoleSuperuser:     "SYS",
}

// AllRoles lists every role from least to most authority.
func AllRoles() []Role {
	return []Role{
		RoleGuest, RoleStudent, RoleTutor, RoleProctor,
		RoleInstructor, RoleStaff, RoleAdministrator, RoleSuperuser,
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// CanActAs reports whether a session holding r may present itself as other.
// The relation is reflexive; otherwise other must be strictly lower.
func (r Role) CanActAs(other Role) bool {
	lr, ok := roleLevels[r]
	if !ok {
		return false
	}
	lo, ok := roleLevels[other]
	if !ok {
		return false
	}
	return r == other || lr > lo
}

// AtLeast reports whether r carries at least the authority of floor.
func (r Role) AtLeast(floor Role) bool { return r.CanActAs(floor) }

// Abbrev returns the three-letter code used in the session recovery file.
func (r Role) Abbrev() string { return roleAbbrevs[r] }

// ParseRole accepts either a role name or its abbreviation (case-insensitive).
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrUnknownRole
	}
	r := Role(strings.ToLower(s))
	if r.Valid() {
		return r, nil
	}
	upper := strings.ToUpper(s)
	for role, abbrev := range roleAbbrevs {
		if abbrev == upper {
			return role, nil
		}
	}
	return "", ErrUnknownRole
}

// Method identifies the login strategy that created a session.
type Method string

const (
	MethodLocal Method = "local"
	MethodSSO   Method = "sso"
	MethodTest  Method = "test"
	// MethodSystem marks the reserved sessions seeded by the store itself.
	MethodSystem Method = "system"
)

// Reserved session identifiers seeded at store construction.
const (
	AnonymousSessionID = "AnonymousSession"
	TestSessionID      = "TestingStationID"
)

// IsReservedSessionID reports whether id names a process-lifetime session.
func IsReservedSessionID(id string) bool {
	return id == AnonymousSessionID || id == TestSessionID
}

// Sentinel errors shared by the session layer and its callers.
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionTimedOut      = errors.New("session timed out")
	ErrSessionLoggedOut     = errors.New("session logged out")
	ErrDuplicateSession     = errors.New("session id already in use")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrInvalidIdentity      = errors.New("invalid identity")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrUnknownMethod        = errors.New("unknown login method")
	ErrUnknownRole          = errors.New("unknown role")
)

// Identity represents the authenticated principal returned by a login strategy.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID     string // stable user identifier (student id, eid, or sub)
	FirstName  string
	LastName   string
	ScreenName string
	Email      string
	Groups     []string
	Role       Role      // role asserted by the strategy, if any; empty means "map from groups"
	ExpiresAt  time.Time // absolute expiry from IdP token, zero when not applicable
}

// DisplayName picks the screen name, falling back to "First Last".
func (i Identity) DisplayName() string {
	if i.ScreenName != "" {
		return i.ScreenName
	}
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

// ActAs describes a delegated identity/role for a session. An empty UserID
// means a role-only override.
type ActAs struct {
	UserID     string
	FirstName  string
	LastName   string
	ScreenName string
	Role       Role
}

// Session is an immutable snapshot of one live session. The session store
// owns the mutable record and only ever hands out copies of this value.
type Session struct {
	ID           string    `json:"id"`
	Tag          int64     `json:"tag"`
	AuthType     Method    `json:"auth_type"`
	Established  time.Time `json:"established"`
	LastActivity time.Time `json:"last_activity"`
	TimeoutAt    time.Time `json:"timeout"`

	UserID     string `json:"user_id,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	ScreenName string `json:"screen_name,omitempty"`
	Role       Role   `json:"role"`

	ActAsUserID     string `json:"act_as_user,omitempty"`
	ActAsFirstName  string `json:"act_as_first_name,omitempty"`
	ActAsLastName   string `json:"act_as_last_name,omitempty"`
	ActAsScreenName string `json:"act_as_screen_name,omitempty"`
	ActAsRole       Role   `json:"act_as_role,omitempty"`

	// TimeOffset shifts the session's view of "now", in milliseconds.
	TimeOffset int64 `json:"time_offset"`
}

// IsGuest returns true if the effective role is guest.
func (s Session) IsGuest() bool { return s.EffectiveRole() == RoleGuest }

// IsReserved reports whether the session is one of the seeded singletons.
func (s Session) IsReserved() bool { return IsReservedSessionID(s.ID) }

// EffectiveRole returns the act-as role when set, else the base role.
func (s Session) EffectiveRole() Role {
	if s.ActAsRole != "" {
		return s.ActAsRole
	}
	return s.Role
}

// IsActingAs reports whether an identity override is in place.
func (s Session) IsActingAs() bool { return s.ActAsUserID != "" }

// EffectiveUserID returns the act-as user when set, else the base user.
func (s Session) EffectiveUserID() string {
	if s.ActAsUserID != "" {
		return s.ActAsUserID
	}
	return s.UserID
}

// EffectiveScreenName follows the same override rule as EffectiveUserID.
func (s Session) EffectiveScreenName() string {
	if s.ActAsUserID != "" {
		return s.ActAsScreenName
	}
	return s.ScreenName
}

// TimedOut reports whether the session expired before now. Reserved
// sessions never time out.
func (s Session) TimedOut(now time.Time) bool {
	if s.IsReserved() {
		return false
	}
	return now.After(s.TimeoutAt)
}

// Now returns the session's view of the current time with TimeOffset applied.
func (s Session) Now(wall time.Time) time.Time {
	return wall.Add(time.Duration(s.TimeOffset) * time.Millisecond)
}
