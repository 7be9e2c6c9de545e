// Package pagerduty raises and resolves an Events API v2 incident as the
// live registration gate closes and reopens.
package pagerduty

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/srbenoit/mathops-sub032/internal/observability/notify"
)

// APIEndpoint is the Events API v2 enqueue URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// DefaultDedupKey identifies the live registration gate incident.
const DefaultDedupKey = "mathops:livereg-gate"

// Config configures the sink. RoutingKey is required.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	// DedupKey ties trigger and resolve events to one incident.
	DedupKey   string
	Endpoint   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

type eventPayload struct {
	Summary       string            `json:"summary"`
	Severity      string            `json:"severity"`
	Source        string            `json:"source"`
	Component     string            `json:"component,omitempty"`
	Timestamp     string            `json:"timestamp"`
	CustomDetails map[string]string `json:"custom_details,omitempty"`
}

type event struct {
	RoutingKey  string        `json:"routing_key"`
	EventAction string        `json:"event_action"`
	DedupKey    string        `json:"dedup_key"`
	Payload     *eventPayload `json:"payload,omitempty"`
}

// Client is a notify.Sink backed by the Events API.
type Client struct {
	notify.Poster

	cfg Config
}

var _ notify.Sink = (*Client)(nil)

// NewClient validates cfg and fills defaults.
func NewClient(cfg Config) (*Client, error) {
	cfg.RoutingKey = strings.TrimSpace(cfg.RoutingKey)
	if cfg.RoutingKey == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	cfg.Source = orDefault(cfg.Source, "mathops")
	cfg.Component = orDefault(cfg.Component, "livereg")
	cfg.DedupKey = orDefault(cfg.DedupKey, DefaultDedupKey)
	cfg.Endpoint = orDefault(cfg.Endpoint, APIEndpoint)

	return &Client{
		Poster: notify.NewPoster("pagerduty", cfg.Client, cfg.Timeout, cfg.RetryLimit),
		cfg:    cfg,
	}, nil
}

// SendGateAlert triggers the incident on an outage and resolves it on recovery.
func (c *Client) SendGateAlert(ctx context.Context, alert notify.GateAlert) error {
	return c.PostJSON(ctx, c.cfg.Endpoint, c.buildEvent(alert))
}

func (c *Client) buildEvent(alert notify.GateAlert) event {
	ev := event{RoutingKey: c.cfg.RoutingKey, DedupKey: c.cfg.DedupKey}
	if alert.Up {
		ev.EventAction = "resolve"
		return ev
	}

	at := alert.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	details := make(map[string]string, len(alert.Metadata)+2)
	for k, v := range alert.Metadata {
		details[k] = v
	}
	// Reason and instance win over metadata with the same key.
	details["reason"] = alert.Reason
	details["instance"] = alert.Instance

	ev.EventAction = "trigger"
	ev.Payload = &eventPayload{
		Summary:       alert.Summary(),
		Severity:      strings.ToLower(alert.EffectiveSeverity()),
		Source:        c.cfg.Source,
		Component:     c.cfg.Component,
		Timestamp:     at.UTC().Format(time.RFC3339),
		CustomDetails: details,
	}
	return ev
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
