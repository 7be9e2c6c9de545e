// Package gatenotifier delivers live registration gate alerts to operator sinks.
package gatenotifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/srbenoit/mathops-sub032/internal/observability/notify"
)

const defaultQueueSize = 16

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the gate notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Instance identifies this process in alerts (usually the hostname).
	Instance  string
	QueueSize int
}

// Service fans gate alerts out to all registered sinks. Gate transitions are
// enqueued without blocking and delivered by Run.
type Service struct {
	logger   *slog.Logger
	sinks    []SinkRegistration
	instance string
	queue    chan notify.GateAlert
}

// NewService constructs a gate notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Sink: entry.Sink})
	}

	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	return &Service{
		logger:   logger.With("component", "gate_notifier"),
		sinks:    sinks,
		instance: opts.Instance,
		queue:    make(chan notify.GateAlert, size),
	}
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}

// Enqueue schedules an alert for delivery. It never blocks; when the queue
// is full the alert is dropped and logged.
func (s *Service) Enqueue(alert notify.GateAlert) {
	if !s.Enabled() {
		return
	}
	select {
	case s.queue <- alert:
	default:
		s.logger.Warn("gate alert queue full; dropping alert", "up", alert.Up, "reason", alert.Reason)
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case alert := <-s.queue:
			s.Notify(ctx, alert)
		}
	}
}

// Notify delivers one alert to every sink and waits for all of them.
// Delivery errors are logged, never returned.
func (s *Service) Notify(ctx context.Context, alert notify.GateAlert) {
	if len(s.sinks) == 0 {
		return
	}
	if alert.Instance == "" {
		alert.Instance = s.instance
	}
	if alert.Severity == "" {
		alert.Severity = alert.EffectiveSeverity()
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendGateAlert(ctx, alert); err != nil {
				s.logger.ErrorContext(ctx, "gate alert delivery error",
					"sink", entry.Name,
					"up", alert.Up,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}
