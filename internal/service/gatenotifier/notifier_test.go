package gatenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srbenoit/mathops-sub032/internal/observability/notify"
)

type captureSink struct {
	mu       sync.Mutex
	received []notify.GateAlert
}

func (c *captureSink) SendGateAlert(_ context.Context, alert notify.GateAlert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, alert)
	return nil
}

func (c *captureSink) alerts() []notify.GateAlert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.GateAlert(nil), c.received...)
}

func TestServiceNotify(t *testing.T) {
	sink := &captureSink{}
	svc := NewService(Options{
		Instance: "web-1",
		Sinks:    []SinkRegistration{{Name: "capture", Sink: sink}},
	})

	svc.Notify(context.Background(), notify.GateAlert{Reason: "timeout"})

	got := sink.alerts()
	require.Len(t, got, 1)
	assert.Equal(t, notify.SeverityCritical, got[0].Severity)
	assert.Equal(t, "web-1", got[0].Instance)
}

func TestServiceDisabled(t *testing.T) {
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "nil"}}})
	assert.False(t, svc.Enabled())
	svc.Enqueue(notify.GateAlert{})
	assert.Empty(t, svc.queue)
}

func TestServiceLogsErrors(t *testing.T) {
	sink := &captureSink{}
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "fail", Sink: notify.SinkFunc(func(context.Context, notify.GateAlert) error {
				return errors.New("boom")
			})},
			{Name: "capture", Sink: sink},
		},
	})

	svc.Notify(context.Background(), notify.GateAlert{Up: true})
	got := sink.alerts()
	require.Len(t, got, 1, "one failing sink must not block the others")
	assert.Equal(t, notify.SeverityInfo, got[0].Severity)
}

func TestServiceRunDeliversQueuedAlerts(t *testing.T) {
	sink := &captureSink{}
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "capture", Sink: sink}}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	svc.Enqueue(notify.GateAlert{Reason: "down"})
	svc.Enqueue(notify.GateAlert{Up: true})

	require.Eventually(t, func() bool { return len(sink.alerts()) == 2 }, time.Second, 5*time.Millisecond)
	got := sink.alerts()
	assert.False(t, got[0].Up)
	assert.True(t, got[1].Up)

	cancel()
	require.NoError(t, <-done)
}

func TestServiceEnqueueDropsWhenFull(t *testing.T) {
	svc := NewService(Options{
		QueueSize: 1,
		Sinks:     []SinkRegistration{{Name: "capture", Sink: &captureSink{}}},
	})
	svc.Enqueue(notify.GateAlert{Reason: "first"})
	svc.Enqueue(notify.GateAlert{Reason: "second"})

	require.Len(t, svc.queue, 1)
	assert.Equal(t, "first", (<-svc.queue).Reason)
}
