// Package slack posts gate alerts to an incoming webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/srbenoit/mathops-sub032/internal/observability/notify"
)

// Config configures the webhook sink. WebhookURL is required.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	// StatusURL links operators to the gate status page, if set.
	StatusURL  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

type message struct {
	Text     string `json:"text"`
	Username string `json:"username"`
	Channel  string `json:"channel,omitempty"`
}

// Client is a notify.Sink backed by a Slack webhook.
type Client struct {
	notify.Poster

	cfg Config
}

var _ notify.Sink = (*Client)(nil)

// NewClient validates cfg and fills defaults.
func NewClient(cfg Config) (*Client, error) {
	cfg.WebhookURL = strings.TrimSpace(cfg.WebhookURL)
	if cfg.WebhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}
	cfg.Channel = strings.TrimSpace(cfg.Channel)
	cfg.StatusURL = strings.TrimSpace(cfg.StatusURL)
	if cfg.Username = strings.TrimSpace(cfg.Username); cfg.Username == "" {
		cfg.Username = "mathops"
	}
	return &Client{
		Poster: notify.NewPoster("slack", cfg.Client, cfg.Timeout, cfg.RetryLimit),
		cfg:    cfg,
	}, nil
}

// SendGateAlert posts one formatted message per transition.
func (c *Client) SendGateAlert(ctx context.Context, alert notify.GateAlert) error {
	return c.PostJSON(ctx, c.cfg.WebhookURL, c.formatMessage(alert))
}

var mrkdwn = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func (c *Client) formatMessage(alert notify.GateAlert) message {
	at := alert.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	icon := ":red_circle:"
	if alert.Up {
		icon = ":large_green_circle:"
	}

	lines := []string{fmt.Sprintf("%s *%s*", icon, mrkdwn.Replace(alert.Summary()))}
	add := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			lines = append(lines, "• "+label+": "+value)
		}
	}
	add("Severity", alert.EffectiveSeverity())
	add("Instance", mrkdwn.Replace(alert.Instance))
	add("Reason", mrkdwn.Replace(alert.Reason))
	if c.cfg.StatusURL != "" {
		add("Status", "<"+c.cfg.StatusURL+"|gate status>")
	}
	keys := make([]string, 0, len(alert.Metadata))
	for k := range alert.Metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		add(k, mrkdwn.Replace(alert.Metadata[k]))
	}
	add("Timestamp", at.UTC().Format(time.RFC3339))

	return message{
		Text:     strings.Join(lines, "\n"),
		Username: c.cfg.Username,
		Channel:  c.cfg.Channel,
	}
}
