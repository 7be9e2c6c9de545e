package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/srbenoit/mathops-sub032/internal/core"
	"github.com/srbenoit/mathops-sub032/internal/observability/metrics"
	"github.com/srbenoit/mathops-sub032/internal/observability/statsd"
)

// ErrSourceUnavailable marks a failed exchange with the live registration source.
var ErrSourceUnavailable = errors.New("live registration source unavailable")

// Pinger checks reachability of the external source.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GateStatus is a point-in-time view of the gate.
type GateStatus struct {
	Up        bool      `json:"up"`
	Reason    string    `json:"reason,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// SourceGateOptions groups dependencies for SourceGate.
type SourceGateOptions struct {
	Clock   core.Clock   // Optional: defaults to the system clock
	Logger  *slog.Logger // Optional: structured logger
	Metrics statsd.Sink  // Optional: metrics sink
	// OnChange is called once per transition, after the new state is visible.
	OnChange func(GateStatus)
}

// SourceGate is a two-state breaker in front of the live registration
// source. Any failure marks it down and it stays down until MarkUp or a
// successful Probe.
type SourceGate struct {
	state    atomic.Pointer[GateStatus]
	clock    core.Clock
	logger   *slog.Logger
	metrics  statsd.Sink
	onChange func(GateStatus)
}

// NewSourceGate returns a gate in the up state.
func NewSourceGate(opts SourceGateOptions) *SourceGate {
	clock := opts.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	g := &SourceGate{
		clock:    clock,
		logger:   logger.With("component", "source_gate"),
		metrics:  opts.Metrics,
		onChange: opts.OnChange,
	}
	g.state.Store(&GateStatus{Up: true, ChangedAt: clock.Now()})
	return g
}

// IsUp reports whether reconciliation may contact the source.
func (g *SourceGate) IsUp() bool { return g.state.Load().Up }

// Status returns a copy of the current state.
func (g *SourceGate) Status() GateStatus { return *g.state.Load() }

// MarkDown flips the gate down. Only the caller that flips it logs. A swap
// that loses to a concurrent transition is retried until the gate is down.
func (g *SourceGate) MarkDown(reason string) {
	for {
		cur := g.state.Load()
		if !cur.Up {
			return
		}
		next := &GateStatus{Up: false, Reason: reason, ChangedAt: g.clock.Now()}
		if g.state.CompareAndSwap(cur, next) {
			g.logger.Warn("live registration source marked down; reconciliation suspended", "reason", reason)
			metrics.EmitGateState(g.metrics, false)
			g.notify(*next)
			return
		}
	}
}

// MarkUp flips the gate up after an operator or probe confirms recovery.
func (g *SourceGate) MarkUp() {
	for {
		cur := g.state.Load()
		if cur.Up {
			return
		}
		next := &GateStatus{Up: true, ChangedAt: g.clock.Now()}
		if g.state.CompareAndSwap(cur, next) {
			g.logger.Info("live registration source marked up; reconciliation resumed")
			metrics.EmitGateState(g.metrics, true)
			g.notify(*next)
			return
		}
	}
}

func (g *SourceGate) notify(st GateStatus) {
	if g.onChange != nil {
		g.onChange(st)
	}
}

// Probe pings the source and marks the gate up on success. A failed probe
// leaves (or puts) the gate down.
func (g *SourceGate) Probe(ctx context.Context, p Pinger) error {
	if p == nil {
		return errors.New("probe target is required")
	}
	if err := p.Ping(ctx); err != nil {
		g.MarkDown("probe failed: " + err.Error())
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	g.MarkUp()
	return nil
}
