// Package notify defines operator alerts raised when the live registration
// source goes down or recovers.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityInfo     = "info"
)

// GateAlert describes a transition of the live registration source gate.
type GateAlert struct {
	// Up is true for a recovery, false for an outage.
	Up         bool
	Reason     string
	Severity   string
	Instance   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Summary is a one-line description of the transition.
func (a GateAlert) Summary() string {
	if a.Up {
		return "Live registration source recovered; reconciliation resumed"
	}
	return "Live registration source down; reconciliation suspended"
}

// EffectiveSeverity returns Severity or the default for the transition.
func (a GateAlert) EffectiveSeverity() string {
	if a.Severity != "" {
		return a.Severity
	}
	if a.Up {
		return SeverityInfo
	}
	return SeverityCritical
}

// Sink describes a destination capable of consuming gate alerts.
type Sink interface {
	SendGateAlert(ctx context.Context, alert GateAlert) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, alert GateAlert) error

// SendGateAlert implements the Sink interface.
func (f SinkFunc) SendGateAlert(ctx context.Context, alert GateAlert) error {
	if f == nil {
		return nil
	}
	return f(ctx, alert)
}
