package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srbenoit/mathops-sub032/config"
	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
)

type countingSink struct {
	mu     sync.Mutex
	counts map[string]int64
	gauges map[string]float64
}

func newCountingSink() *countingSink {
	return &countingSink{counts: map[string]int64{}, gauges: map[string]float64{}}
}

func (c *countingSink) Count(name string, value int64, _ map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name] += value
}

func (c *countingSink) Gauge(name string, value float64, _ map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[name] = value
}

func (c *countingSink) Timing(string, time.Duration, map[string]string) {}

func TestNewSessionSweeper_RequiresStore(t *testing.T) {
	_, err := NewSessionSweeper(SessionSweeperOptions{})
	require.Error(t, err)
}

func TestSessionSweeper_TickSweepsAndCheckpoints(t *testing.T) {
	clock := newStepClock()
	store := newTestSessionStore(clock)
	createSession(t, store, "stale", domainauth.RoleStudent)
	clock.Advance(DefaultSessionTimeout + time.Minute)
	createSession(t, store, "fresh", domainauth.RoleStudent)

	backend := &memorySnapshotter{}
	persistence, err := NewSessionPersistence(SessionPersistenceOptions{Store: store, Backend: backend})
	require.NoError(t, err)

	sink := newCountingSink()
	sweeper, err := NewSessionSweeper(SessionSweeperOptions{
		Store:       store,
		Persistence: persistence,
		Config:      config.SweeperConfig{Interval: time.Minute, CheckpointInterval: 5 * time.Minute},
		Metrics:     sink,
	})
	require.NoError(t, err)

	// First tick: last checkpoint is the zero time, so a checkpoint is due.
	require.NoError(t, sweeper.Tick(context.Background()))
	_, ok := store.Get("stale")
	assert.False(t, ok)
	require.Len(t, backend.saved, 1)
	assert.Equal(t, "fresh", backend.saved[0].ID)
	assert.Equal(t, int64(1), sink.counts["sessions.swept"])
	assert.InDelta(t, 3, sink.gauges["sessions.live"], 0, "two reserved sessions plus one live")

	// Second tick inside the checkpoint interval does not persist.
	backend.saved = nil
	clock.Advance(time.Minute)
	require.NoError(t, sweeper.Tick(context.Background()))
	assert.Nil(t, backend.saved)

	clock.Advance(5 * time.Minute)
	require.NoError(t, sweeper.Tick(context.Background()))
	assert.NotNil(t, backend.saved)
}

func TestSessionSweeper_CheckpointFailure(t *testing.T) {
	clock := newStepClock()
	store := newTestSessionStore(clock)
	backend := &memorySnapshotter{saveErr: errors.New("disk full")}
	persistence, err := NewSessionPersistence(SessionPersistenceOptions{Store: store, Backend: backend})
	require.NoError(t, err)

	sweeper, err := NewSessionSweeper(SessionSweeperOptions{
		Store:       store,
		Persistence: persistence,
		Config:      config.SweeperConfig{Interval: time.Minute, CheckpointInterval: time.Minute},
	})
	require.NoError(t, err)

	err = sweeper.Tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSessionSweeper_RunStopsOnCancel(t *testing.T) {
	store := newTestSessionStore(newStepClock())
	sweeper, err := NewSessionSweeper(SessionSweeperOptions{
		Store:  store,
		Config: config.SweeperConfig{Interval: 10 * time.Millisecond},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
