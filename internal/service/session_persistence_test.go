package service

import (
	"context"
	"errors"
	"testing"

	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySnapshotter is an in-memory ports.SessionSnapshotter.
type memorySnapshotter struct {
	saved      []domainauth.Session
	saveErr    error
	restoreErr error
}

func (m *memorySnapshotter) Save(_ context.Context, sessions []domainauth.Session) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append([]domainauth.Session(nil), sessions...)
	return nil
}

func (m *memorySnapshotter) Restore(_ context.Context) ([]domainauth.Session, error) {
	out := m.saved
	m.saved = nil
	return out, m.restoreErr
}

func TestNewSessionPersistence_Validation(t *testing.T) {
	_, err := NewSessionPersistence(SessionPersistenceOptions{Backend: &memorySnapshotter{}})
	require.Error(t, err)
	_, err = NewSessionPersistence(SessionPersistenceOptions{Store: newTestSessionStore(newStepClock())})
	require.Error(t, err)
}

func TestSessionPersistence_RoundTrip(t *testing.T) {
	clock := newStepClock()
	backend := &memorySnapshotter{}

	src := newTestSessionStore(clock)
	createSession(t, src, "s1", domainauth.RoleStudent)
	createSession(t, src, "s2", domainauth.RoleSuperuser)
	_, err := src.SetActAs("s2", domainauth.ActAs{UserID: "823000001", FirstName: "A", LastName: "B", ScreenName: "AB", Role: domainauth.RoleProctor})
	require.NoError(t, err)

	p, err := NewSessionPersistence(SessionPersistenceOptions{Store: src, Backend: backend})
	require.NoError(t, err)
	n, err := p.Persist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	dst := newTestSessionStore(clock)
	p2, err := NewSessionPersistence(SessionPersistenceOptions{Store: dst, Backend: backend})
	require.NoError(t, err)
	restored, err := p2.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, restored)

	for _, id := range []string{"s1", "s2"} {
		want, _ := src.Get(id)
		got, ok := dst.Get(id)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Empty(t, backend.saved, "load consumes the snapshot")
}

func TestSessionPersistence_PersistError(t *testing.T) {
	p, err := NewSessionPersistence(SessionPersistenceOptions{
		Store:   newTestSessionStore(newStepClock()),
		Backend: &memorySnapshotter{saveErr: errors.New("disk full")},
	})
	require.NoError(t, err)

	_, err = p.Persist(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSessionPersistence_LoadKeepsPartialResults(t *testing.T) {
	clock := newStepClock()
	backend := &memorySnapshotter{
		saved: []domainauth.Session{
			{ID: "s1", Role: domainauth.RoleStudent, TimeoutAt: clock.Now().Add(DefaultSessionTimeout)},
		},
		restoreErr: errors.New("remove failed"),
	}
	store := newTestSessionStore(clock)
	p, err := NewSessionPersistence(SessionPersistenceOptions{Store: store, Backend: backend})
	require.NoError(t, err)

	n, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	backend.restoreErr = errors.New("unreadable")
	_, err = p.Load(context.Background())
	require.Error(t, err)
}
