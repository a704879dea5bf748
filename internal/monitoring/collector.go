package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/source"
	"github.com/sells-group/reconcile-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of run outcomes and source health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal     int     `json:"runs_total"`
	RunsComplete  int     `json:"runs_complete"`
	RunsDegraded  int     `json:"runs_degraded"`
	RunsBlocked   int     `json:"runs_blocked"`
	RunsFailed    int     `json:"runs_failed"`
	RunsInFlight  int     `json:"runs_in_flight"`
	BlockedRate   float64 `json:"blocked_rate"`
	DegradedRate  float64 `json:"degraded_rate"`
	AvgConfidence float64 `json:"avg_confidence"`

	// Source health.
	Sources        []source.HealthStatus `json:"sources"`
	SourcesHealthy int                   `json:"sources_healthy"`
	HealthyRatio   float64               `json:"healthy_ratio"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Unhealthy returns the names of sources that failed their probe.
func (s *MetricsSnapshot) Unhealthy() []string {
	var out []string
	for _, h := range s.Sources {
		if !h.Healthy {
			out = append(out, h.Source)
		}
	}
	return out
}

// maxRunsScanned bounds how many recent runs one collection reads.
const maxRunsScanned = 10000

// Collector gathers run outcomes from the store and probes adapters.
type Collector struct {
	store    store.Store
	registry *source.Registry
	probeTTL time.Duration
}

// NewCollector creates a new metrics collector. Either argument may be nil.
func NewCollector(st store.Store, reg *source.Registry) *Collector {
	return &Collector{store: st, registry: reg, probeTTL: 10 * time.Second}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	if c.store != nil {
		runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: maxRunsScanned})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list runs")
		}
		summarizeRuns(snap, runs, now.Add(-time.Duration(lookbackHours)*time.Hour))
	}

	if c.registry != nil {
		pctx, cancel := context.WithTimeout(ctx, c.probeTTL)
		defer cancel()
		snap.Sources = CheckHealth(pctx, c.registry.Adapters(), 0)
		for _, h := range snap.Sources {
			if h.Healthy {
				snap.SourcesHealthy++
			}
		}
		if len(snap.Sources) > 0 {
			snap.HealthyRatio = float64(snap.SourcesHealthy) / float64(len(snap.Sources))
		}
	}
	return snap, nil
}

func summarizeRuns(snap *MetricsSnapshot, runs []model.Run, cutoff time.Time) {
	var confSum float64
	var scored int
	for _, r := range runs {
		if lookbackCut(r, cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusDegraded:
			snap.RunsDegraded++
		case model.RunStatusBlocked:
			snap.RunsBlocked++
		case model.RunStatusFailed:
			snap.RunsFailed++
		default:
			snap.RunsInFlight++
		}
		if r.Result != nil {
			confSum += r.Result.Confidence.Value
			scored++
		}
	}

	finished := snap.RunsComplete + snap.RunsDegraded + snap.RunsBlocked + snap.RunsFailed
	if finished > 0 {
		snap.BlockedRate = float64(snap.RunsBlocked) / float64(finished)
		snap.DegradedRate = float64(snap.RunsDegraded) / float64(finished)
	}
	if scored > 0 {
		snap.AvgConfidence = confSum / float64(scored)
	}
}

// lookbackCut reports whether r falls outside the window. Runs without a
// creation time are kept.
func lookbackCut(r model.Run, cutoff time.Time) bool {
	return !r.CreatedAt.IsZero() && r.CreatedAt.Before(cutoff)
}

// CheckHealth probes adapters concurrently and returns their statuses in
// adapter order. concurrency <= 0 probes all at once.
func CheckHealth(ctx context.Context, adapters []source.Adapter, concurrency int) []source.HealthStatus {
	out := make([]source.HealthStatus, len(adapters))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, a := range adapters {
		g.Go(func() error {
			hs := a.HealthCheck(gctx)
			if hs.Source == "" {
				hs.Source = a.Name()
			}
			out[i] = hs
			return nil
		})
	}
	_ = g.Wait()
	return out
}
