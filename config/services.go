package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeSweeper runs the session sweeper and checkpoint loop.
	ServiceModeSweeper ServiceMode = "sweeper"
	// ServiceModeReconciler runs scheduled reconciliation of signed-in students.
	ServiceModeReconciler ServiceMode = "reconciler"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeSweeper,
		ServiceModeReconciler,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeSweeper, ServiceModeReconciler:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, sweeper, reconciler)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// SweeperConfig controls the session maintenance loop.
type SweeperConfig struct {
	// Interval is how often timed-out sessions are swept.
	Interval time.Duration `env:"SWEEPER_INTERVAL" envDefault:"1m"`

	// CheckpointInterval is how often live sessions are persisted so a crash
	// loses little. Zero disables checkpoints; sessions are still saved on
	// graceful shutdown.
	CheckpointInterval time.Duration `env:"SWEEPER_CHECKPOINT_INTERVAL" envDefault:"5m"`
}

// Sanitize applies guardrails to sweeper configuration values.
func (s *SweeperConfig) Sanitize() {
	if s.Interval < 5*time.Second {
		s.Interval = 5 * time.Second
	}
	if s.CheckpointInterval < 0 {
		s.CheckpointInterval = 0
	}
	if s.CheckpointInterval > 0 && s.CheckpointInterval < s.Interval {
		s.CheckpointInterval = s.Interval
	}
}

// ReconcilerConfig controls scheduled reconciliation.
type ReconcilerConfig struct {
	// Interval between passes over signed-in students.
	Interval time.Duration `env:"RECONCILER_INTERVAL" envDefault:"15m"`

	// Concurrency bounds how many students are reconciled at once.
	Concurrency int `env:"RECONCILER_CONCURRENCY" envDefault:"4"`
}

// Sanitize applies guardrails to reconciler configuration values.
func (r *ReconcilerConfig) Sanitize() {
	if r.Interval < time.Minute {
		r.Interval = time.Minute
	}
	if r.Concurrency < 1 {
		r.Concurrency = 1
	}
	if r.Concurrency > 64 {
		r.Concurrency = 64
	}
}
