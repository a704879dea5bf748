package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/source"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{HealthIntervalSecs: 1, LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(&mockStore{}, nil), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_CheckStoresSnapshotAndAlerts(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	reg := source.NewRegistry()
	reg.Register(source.NewStatic("exchange", nil).WithHealthy(false))

	st := &mockStore{runs: []model.Run{run(model.RunStatusComplete, time.Hour, 0.95)}}
	cfg := config.MonitoringConfig{
		LookbackWindowHours: 24,
		WebhookURL:          srv.URL,
		MinHealthyRatio:     1,
		BlockedRateAlert:    0.2,
	}
	checker := NewChecker(NewCollector(st, reg), NewAlerter(cfg), cfg)
	assert.Nil(t, checker.Last())

	snap := checker.Check(context.Background(), zap.NewNop())
	require.NotNil(t, snap)
	assert.Same(t, snap, checker.Last())
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	st := &mockStore{listErr: assert.AnError}
	checker := NewChecker(NewCollector(st, nil), NewAlerter(cfg), cfg)

	assert.Nil(t, checker.Check(context.Background(), zap.NewNop()))
	assert.Nil(t, checker.Last())
}
