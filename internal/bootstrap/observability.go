package bootstrap

import (
	"log/slog"
	"os"

	"github.com/srbenoit/mathops-sub032/config"
	"github.com/srbenoit/mathops-sub032/internal/observability/notify"
	"github.com/srbenoit/mathops-sub032/internal/observability/notify/pagerduty"
	"github.com/srbenoit/mathops-sub032/internal/observability/notify/slack"
	"github.com/srbenoit/mathops-sub032/internal/observability/statsd"
	"github.com/srbenoit/mathops-sub032/internal/service"
	"github.com/srbenoit/mathops-sub032/internal/service/gatenotifier"
)

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink is nil when metrics are disabled.
	MetricsSink  statsd.Sink
	GateNotifier *gatenotifier.Service
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink statsd.Sink
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Address:       cfg.Metrics.StatsdAddress,
			Prefix:        cfg.Metrics.Prefix,
			FlushInterval: cfg.Metrics.FlushInterval,
			Logger:        obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:  metricsSink,
		GateNotifier: buildGateNotifier(obsLogger, cfg.Alerts),
	}
}

func buildGateNotifier(logger *slog.Logger, cfg config.GateAlertsConfig) *gatenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}
	instance, _ := os.Hostname()

	if !cfg.Enabled {
		return gatenotifier.NewService(gatenotifier.Options{Logger: baseLogger, Instance: instance})
	}

	sinks := make([]gatenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
			StatusURL:  cfg.Slack.StatusURL,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, gatenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			DedupKey:   cfg.PagerDuty.DedupKey,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, gatenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return gatenotifier.NewService(gatenotifier.Options{
		Logger:   baseLogger,
		Sinks:    sinks,
		Instance: instance,
	})
}

// gateAlertHook turns gate transitions into queued operator alerts.
func gateAlertHook(n *gatenotifier.Service) func(service.GateStatus) {
	if n == nil || !n.Enabled() {
		return nil
	}
	return func(st service.GateStatus) {
		n.Enqueue(notify.GateAlert{Up: st.Up, Reason: st.Reason, OccurredAt: st.ChangedAt})
	}
}
