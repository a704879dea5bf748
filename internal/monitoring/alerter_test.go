package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/source"
)

func thresholds() config.MonitoringConfig {
	return config.MonitoringConfig{
		MinHealthyRatio:  0.75,
		BlockedRateAlert: 0.20,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(thresholds())

	snap := &MetricsSnapshot{
		RunsTotal:    10,
		RunsComplete: 9,
		RunsBlocked:  1,
		BlockedRate:  0.10,
		Sources: []source.HealthStatus{
			{Source: "exchange", Healthy: true},
		},
		HealthyRatio:  1,
		LookbackHours: 24,
	}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_BlockedRate(t *testing.T) {
	a := NewAlerter(thresholds())

	snap := &MetricsSnapshot{
		RunsTotal:     10,
		RunsComplete:  6,
		RunsBlocked:   4,
		BlockedRate:   0.40,
		LookbackHours: 24,
	}
	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertBlockedRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Equal(t, 10, alerts[0].Details["finished"])
}

func TestAlerter_Evaluate_BlockedRateNeedsSample(t *testing.T) {
	a := NewAlerter(thresholds())

	snap := &MetricsSnapshot{
		RunsTotal:    2,
		RunsComplete: 1,
		RunsBlocked:  1,
		BlockedRate:  0.50,
	}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_RunFailures(t *testing.T) {
	a := NewAlerter(thresholds())

	alerts := a.Evaluate(&MetricsSnapshot{RunsTotal: 3, RunsComplete: 2, RunsFailed: 1, LookbackHours: 12})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailures, alerts[0].Type)
	assert.Equal(t, "1 run(s) failed in last 12h", alerts[0].Message)
}

func TestAlerter_Evaluate_SourcesUnhealthy(t *testing.T) {
	a := NewAlerter(thresholds())

	snap := &MetricsSnapshot{
		Sources: []source.HealthStatus{
			{Source: "exchange", Healthy: true},
			{Source: "aggregator", Healthy: false},
		},
		SourcesHealthy: 1,
		HealthyRatio:   0.5,
	}
	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSourcesUnhealthy, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "aggregator")
	assert.Equal(t, []string{"aggregator"}, alerts[0].Details["unhealthy"])
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	var lastType atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var alert Alert
		if err := json.NewDecoder(r.Body).Decode(&alert); err == nil {
			lastType.Store(string(alert.Type))
		}
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := thresholds()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertBlockedRate, Severity: "high", Message: "blocked"},
		{Type: AlertSourcesUnhealthy, Severity: "high", Message: "down"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
	assert.Equal(t, string(AlertSourcesUnhealthy), lastType.Load())
}

func TestAlerter_SendAlerts_NoURL(t *testing.T) {
	a := NewAlerter(thresholds())
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailures}}))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := thresholds()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailures}}))
}
