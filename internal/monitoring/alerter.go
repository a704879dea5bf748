package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertBlockedRate      AlertType = "blocked_rate"
	AlertSourcesUnhealthy AlertType = "sources_unhealthy"
	AlertRunFailures      AlertType = "run_failures"
)

// minFinishedRuns is the sample size below which rate alerts stay quiet.
const minFinishedRuns = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RunsComplete + snap.RunsDegraded + snap.RunsBlocked + snap.RunsFailed

	// Gates blocking too many runs usually means a source went bad.
	if a.cfg.BlockedRateAlert > 0 && finished >= minFinishedRuns && snap.BlockedRate > a.cfg.BlockedRateAlert {
		alerts = append(alerts, Alert{
			Type:     AlertBlockedRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Blocked run rate %.1f%% exceeds threshold %.1f%% (%d blocked / %d finished in last %dh)",
				snap.BlockedRate*100, a.cfg.BlockedRateAlert*100,
				snap.RunsBlocked, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"blocked_rate": snap.BlockedRate,
				"threshold":    a.cfg.BlockedRateAlert,
				"blocked":      snap.RunsBlocked,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if snap.RunsFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailures,
			Severity: "medium",
			Message:  fmt.Sprintf("%d run(s) failed in last %dh", snap.RunsFailed, snap.LookbackHours),
			Details: map[string]any{
				"failed": snap.RunsFailed,
				"total":  snap.RunsTotal,
			},
			Timestamp: now,
		})
	}

	if len(snap.Sources) > 0 && snap.HealthyRatio < a.cfg.MinHealthyRatio {
		down := snap.Unhealthy()
		alerts = append(alerts, Alert{
			Type:     AlertSourcesUnhealthy,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d of %d sources unhealthy (%s); healthy ratio %.0f%% below %.0f%%",
				len(down), len(snap.Sources), strings.Join(down, ", "),
				snap.HealthyRatio*100, a.cfg.MinHealthyRatio*100,
			),
			Details: map[string]any{
				"unhealthy":     down,
				"healthy_ratio": snap.HealthyRatio,
				"threshold":     a.cfg.MinHealthyRatio,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
