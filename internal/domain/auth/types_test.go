package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_IsGuest(t *testing.T) {
	s := Session{Role: RoleGuest}
	if !s.IsGuest() {
		t.Fatalf("expected guest")
	}
	if (Session{Role: RoleStudent}).IsGuest() {
		t.Fatalf("did not expect guest")
	}
	if (Session{Role: RoleAdministrator, ActAsRole: RoleGuest}).IsGuest() == false {
		t.Fatalf("expected act-as guest to be guest")
	}
}

func TestRole_CanActAs_Lattice(t *testing.T) {
	order := map[Role]int{
		RoleGuest: 0, RoleStudent: 1, RoleTutor: 2, RoleProctor: 2,
		RoleInstructor: 3, RoleStaff: 4, RoleAdministrator: 5, RoleSuperuser: 6,
	}
	for _, r1 := range AllRoles() {
		for _, r2 := range AllRoles() {
			want := r1 == r2 || order[r1] > order[r2]
			assert.Equalf(t, want, r1.CanActAs(r2), "%s -> %s", r1, r2)
		}
	}
}

func TestRole_CanActAs_Examples(t *testing.T) {
	assert.False(t, RoleStudent.CanActAs(RoleInstructor))
	assert.False(t, RoleTutor.CanActAs(RoleProctor))
	assert.False(t, RoleProctor.CanActAs(RoleTutor))
	assert.True(t, RoleInstructor.CanActAs(RoleProctor))
	assert.True(t, RoleAdministrator.CanActAs(RoleStaff))
	assert.False(t, RoleAdministrator.CanActAs(RoleSuperuser))
	assert.False(t, Role("bogus").CanActAs(RoleGuest))
	assert.False(t, RoleSuperuser.CanActAs(Role("bogus")))
}

func TestParseRole(t *testing.T) {
	for _, r := range AllRoles() {
		got, err := ParseRole(r.Abbrev())
		require.NoError(t, err)
		assert.Equal(t, r, got)

		got, err = ParseRole(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}

	got, err := ParseRole("adm")
	require.NoError(t, err)
	assert.Equal(t, RoleAdministrator, got)

	_, err = ParseRole("")
	require.ErrorIs(t, err, ErrUnknownRole)
	_, err = ParseRole("XYZ")
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestSession_Effective(t *testing.T) {
	s := Session{UserID: "823000001", ScreenName: "Base", Role: RoleAdministrator}
	assert.Equal(t, "823000001", s.EffectiveUserID())
	assert.Equal(t, RoleAdministrator, s.EffectiveRole())
	assert.False(t, s.IsActingAs())

	s.ActAsUserID = "823000002"
	s.ActAsScreenName = "Other"
	s.ActAsRole = RoleStudent
	assert.Equal(t, "823000002", s.EffectiveUserID())
	assert.Equal(t, "Other", s.EffectiveScreenName())
	assert.Equal(t, RoleStudent, s.EffectiveRole())
	assert.True(t, s.IsActingAs())
}

func TestSession_TimedOut(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	s := Session{ID: "abc", TimeoutAt: now.Add(-time.Second)}
	assert.True(t, s.TimedOut(now))

	s.ID = AnonymousSessionID
	assert.False(t, s.TimedOut(now))
}

func TestSession_Now(t *testing.T) {
	wall := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	s := Session{TimeOffset: int64(time.Hour / time.Millisecond)}
	assert.Equal(t, wall.Add(time.Hour), s.Now(wall))
}

func TestIdentity_DisplayName(t *testing.T) {
	assert.Equal(t, "Ada L", Identity{ScreenName: "Ada L", FirstName: "Ada"}.DisplayName())
	assert.Equal(t, "Ada Lovelace", Identity{FirstName: "Ada", LastName: "Lovelace"}.DisplayName())
}
