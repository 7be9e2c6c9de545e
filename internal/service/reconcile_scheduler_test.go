package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/srbenoit/mathops-sub032/config"
	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	"github.com/srbenoit/mathops-sub032/internal/domain/model"
)

func newTestScheduler(t *testing.T, f *reconcileFixture, store *SessionStore) *ReconcileScheduler {
	t.Helper()
	s, err := NewReconcileScheduler(ReconcileSchedulerOptions{
		Reconciler: f.svc,
		Sessions:   store,
		Config:     config.ReconcilerConfig{Interval: time.Minute, Concurrency: 2},
	})
	require.NoError(t, err)
	return s
}

func addStudentSession(t *testing.T, store *SessionStore, id, userID string, role domainauth.Role) {
	t.Helper()
	_, err := store.Create(domainauth.Session{ID: id, AuthType: domainauth.MethodLocal, UserID: userID, Role: role})
	require.NoError(t, err)
}

func TestNewReconcileScheduler_Validation(t *testing.T) {
	_, err := NewReconcileScheduler(ReconcileSchedulerOptions{})
	require.Error(t, err)
}

func TestReconcileScheduler_RunOnce(t *testing.T) {
	f := newReconcileFixture(t)
	store := newTestSessionStore(f.clock)
	addStudentSession(t, store, "a", testStudent, domainauth.RoleStudent)
	addStudentSession(t, store, "b", testStudent, domainauth.RoleStudent) // same student twice
	addStudentSession(t, store, "c", "823000002", domainauth.RoleStudent)
	addStudentSession(t, store, "d", "823000003", domainauth.RoleInstructor)
	addStudentSession(t, store, "e", DefaultTestStudentID, domainauth.RoleStudent)
	f.mirror.addStudent("823000002")

	f.source.EXPECT().FetchRegistrations(gomock.Any(), testStudent, testTerm).
		Return([]model.ExternalRegistration{liveRow("MATH117", "001")}, nil)
	f.source.EXPECT().FetchRegistrations(gomock.Any(), "823000002", testTerm).Return(nil, nil)

	res, err := newTestScheduler(t, f, store).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Students: 2, Applied: 2}, res)
	assert.NotNil(t, f.mirror.registration(testStudent, testTerm, "MATH117", "001"))
}

func TestReconcileScheduler_SourceFailureCountsAsFailed(t *testing.T) {
	f := newReconcileFixture(t)
	store := newTestSessionStore(f.clock)
	addStudentSession(t, store, "a", testStudent, domainauth.RoleStudent)

	f.source.EXPECT().FetchRegistrations(gomock.Any(), testStudent, testTerm).Return(nil, errors.New("503"))

	res, err := newTestScheduler(t, f, store).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, f.gate.IsUp())
}

func TestReconcileScheduler_GateDownSkipsPass(t *testing.T) {
	f := newReconcileFixture(t)
	store := newTestSessionStore(f.clock)
	addStudentSession(t, store, "a", testStudent, domainauth.RoleStudent)
	f.gate.MarkDown("maintenance window")

	res, err := newTestScheduler(t, f, store).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Students)
}
