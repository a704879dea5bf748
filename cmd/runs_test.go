package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/source"
)

func TestFormatRunsList(t *testing.T) {
	created := time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "6f1c2d3e-aaaa-bbbb-cccc-000000000001",
			EntityID:  "ACME",
			AsOf:      time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
			Status:    model.RunStatusDegraded,
			Result:    &model.PipelineResult{Confidence: model.NewScore(model.ScopePipeline, 0.8871, nil)},
			CreatedAt: created,
			UpdatedAt: created.Add(1500 * time.Millisecond),
		},
		{
			ID:        "short",
			EntityID:  strings.Repeat("x", 40),
			Status:    model.RunStatusBlocked,
			CreatedAt: created,
			UpdatedAt: created,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "6f1c2d3e ")
	assert.Contains(t, out, "2026-03-31")
	assert.Contains(t, out, "degraded")
	assert.Contains(t, out, "0.887")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, strings.Repeat("x", 27)+"...")
	assert.Contains(t, out, "blocked")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("1234567890"))
	assert.Equal(t, "abc", truncateID("abc"))
}

func TestFormatHealth(t *testing.T) {
	var buf bytes.Buffer
	down := formatHealth(&buf, []source.HealthStatus{
		{Source: "exchange", Healthy: true, Latency: 3 * time.Millisecond},
		{Source: "filings", Healthy: false, Detail: "connection refused"},
	})
	assert.Equal(t, 1, down)
	assert.Contains(t, buf.String(), "connection refused")
	assert.Contains(t, buf.String(), "exchange")
}

func TestUnconfiguredSources(t *testing.T) {
	plan, err := demoPlan()
	if !assert.NoError(t, err) {
		return
	}
	c := &config.Config{Sources: []config.SourceConfig{{Name: "exchange"}, {Name: "filings"}}}
	assert.Equal(t, []string{"aggregator", "indicators"}, unconfiguredSources(plan, c))

	var buf bytes.Buffer
	summarizePlan(&buf, plan, []string{"aggregator"})
	assert.Contains(t, buf.String(), "plan ok: 3 categories, 4 sources")
	assert.Contains(t, buf.String(), `ranked source "aggregator"`)
}
