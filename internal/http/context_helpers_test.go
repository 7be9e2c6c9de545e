package httpx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
)

func TestGetUserSessionFromContext(t *testing.T) {
	_, ok := GetUserSessionFromContext(context.Background())
	assert.False(t, ok)

	sess := domainauth.Session{ID: "abc", Role: domainauth.RoleStudent}
	ctx := SetSessionInContext(context.Background(), sess)
	s, ok := GetUserSessionFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, sess, s)
}

func TestIsGuestUser(t *testing.T) {
	assert.True(t, IsGuestUser(context.Background()))

	guest := domainauth.Session{ID: "g", Role: domainauth.RoleGuest}
	assert.True(t, IsGuestUser(SetSessionInContext(context.Background(), guest)))

	staff := domainauth.Session{ID: "s", Role: domainauth.RoleStaff}
	assert.False(t, IsGuestUser(SetSessionInContext(context.Background(), staff)))

	actingGuest := domainauth.Session{ID: "a", Role: domainauth.RoleStaff, ActAsRole: domainauth.RoleGuest}
	assert.True(t, IsGuestUser(SetSessionInContext(context.Background(), actingGuest)))
}
