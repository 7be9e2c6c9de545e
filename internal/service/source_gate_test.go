package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestSourceGate_StartsUp(t *testing.T) {
	g := NewSourceGate(SourceGateOptions{Clock: newStepClock()})
	assert.True(t, g.IsUp())
	assert.True(t, g.Status().Up)
}

func TestSourceGate_DownUntilExplicitlyReset(t *testing.T) {
	clock := newStepClock()
	g := NewSourceGate(SourceGateOptions{Clock: clock})

	g.MarkDown("timeout")
	assert.False(t, g.IsUp())
	assert.Equal(t, "timeout", g.Status().Reason)
	assert.Equal(t, clock.Now(), g.Status().ChangedAt)

	// A second failure keeps the first reason.
	g.MarkDown("connection refused")
	assert.Equal(t, "timeout", g.Status().Reason)

	g.MarkUp()
	assert.True(t, g.IsUp())
	assert.Empty(t, g.Status().Reason)
}

// hookClock runs hook once, from inside the first Now call.
type hookClock struct {
	*stepClock
	hook func()
	ran  bool
}

func (c *hookClock) Now() time.Time {
	if !c.ran && c.hook != nil {
		c.ran = true
		c.hook()
	}
	return c.stepClock.Now()
}

func TestSourceGate_MarkDownSurvivesInterleavedFlip(t *testing.T) {
	clock := &hookClock{stepClock: newStepClock()}
	g := NewSourceGate(SourceGateOptions{Clock: clock})

	// Another caller goes down and back up between MarkDown's load and swap.
	clock.hook = func() {
		g.MarkDown("other")
		g.MarkUp()
	}
	g.MarkDown("real failure")

	assert.False(t, g.IsUp())
	assert.Equal(t, "real failure", g.Status().Reason)
}

func TestSourceGate_Probe(t *testing.T) {
	g := NewSourceGate(SourceGateOptions{})
	g.MarkDown("boom")

	err := g.Probe(context.Background(), pingFunc(func(context.Context) error { return errors.New("still down") }))
	require.ErrorIs(t, err, ErrSourceUnavailable)
	assert.False(t, g.IsUp())

	err = g.Probe(context.Background(), pingFunc(func(context.Context) error { return nil }))
	require.NoError(t, err)
	assert.True(t, g.IsUp())

	require.Error(t, g.Probe(context.Background(), nil))
}

func TestSourceGate_ConcurrentFlips(t *testing.T) {
	g := NewSourceGate(SourceGateOptions{})
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				g.MarkDown("x")
			} else {
				g.MarkUp()
			}
			_ = g.IsUp()
		}(i)
	}
	wg.Wait()
	g.MarkUp()
	assert.True(t, g.IsUp())
}

func TestSourceGate_OnChangeOncePerTransition(t *testing.T) {
	var changes []GateStatus
	g := NewSourceGate(SourceGateOptions{
		Clock:    newStepClock(),
		OnChange: func(st GateStatus) { changes = append(changes, st) },
	})

	g.MarkUp()
	g.MarkDown("refused")
	g.MarkDown("again")
	g.MarkUp()
	g.MarkUp()

	require.Len(t, changes, 2)
	assert.False(t, changes[0].Up)
	assert.Equal(t, "refused", changes[0].Reason)
	assert.True(t, changes[1].Up)
}
