package config

import (
	"strings"
	"time"
)

// ObservabilityConfig covers the statsd sink and the gate alert fan-out.
type ObservabilityConfig struct {
	Metrics MetricsConfig
	Alerts  GateAlertsConfig `envPrefix:"GATE_ALERTS_"`
}

// Sanitize normalises both halves.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Alerts.Sanitize()
}

// MetricsConfig controls the statsd line sink.
type MetricsConfig struct {
	Enabled       bool          `env:"METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string        `env:"METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string        `env:"METRICS_PREFIX"         envDefault:"mathops"`
	FlushInterval time.Duration `env:"METRICS_FLUSH_INTERVAL" envDefault:"1s"`
}

// Sanitize turns metrics off when no address is left after trimming.
func (c *MetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	c.Enabled = c.Enabled && c.StatsdAddress != ""
}

// IsEnabled reports whether a statsd client should be built.
func (c *MetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// GateAlertsConfig controls operator alerts raised when the live registration
// gate closes or reopens. Each sink is also gated by its own Enabled flag.
type GateAlertsConfig struct {
	Enabled    bool                 `env:"ENABLED"     envDefault:"false"`
	Timeout    time.Duration        `env:"TIMEOUT"     envDefault:"5s"`
	RetryLimit int                  `env:"RETRY_LIMIT" envDefault:"3"`
	Slack      SlackAlertConfig     `envPrefix:"SLACK_"`
	PagerDuty  PagerDutyAlertConfig `envPrefix:"PAGERDUTY_"`
}

// Sanitize clamps timeouts and disables sinks that lack credentials.
func (c *GateAlertsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.RetryLimit = max(c.RetryLimit, 0)

	c.Slack.WebhookURL = strings.TrimSpace(c.Slack.WebhookURL)
	c.Slack.Channel = strings.TrimSpace(c.Slack.Channel)
	c.Slack.StatusURL = strings.TrimSpace(c.Slack.StatusURL)
	c.Slack.Username = trimOr(c.Slack.Username, "mathops")

	c.PagerDuty.RoutingKey = strings.TrimSpace(c.PagerDuty.RoutingKey)
	c.PagerDuty.Source = trimOr(c.PagerDuty.Source, "mathops")
	c.PagerDuty.Component = trimOr(c.PagerDuty.Component, "livereg")
	c.PagerDuty.DedupKey = strings.TrimSpace(c.PagerDuty.DedupKey)

	c.Slack.Enabled = c.Enabled && c.Slack.Enabled && c.Slack.WebhookURL != ""
	c.PagerDuty.Enabled = c.Enabled && c.PagerDuty.Enabled && c.PagerDuty.RoutingKey != ""
}

// SlackAlertConfig configures the Slack webhook sink.
type SlackAlertConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME"    envDefault:"mathops"`
	StatusURL  string `env:"STATUS_URL"`
}

// PagerDutyAlertConfig configures the Events API v2 sink.
type PagerDutyAlertConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"mathops"`
	Component  string `env:"COMPONENT"   envDefault:"livereg"`
	DedupKey   string `env:"DEDUP_KEY"   envDefault:"mathops:livereg-gate"`
}

func trimOr(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
