package source

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// StaticEntry is one canned answer of a Static adapter.
type StaticEntry struct {
	Value      float64
	Unit       string
	ObservedAt time.Time
	Err        error
	// FailTimes makes the first N fetches fail with Err before succeeding.
	FailTimes int
}

// Static is an in-memory adapter serving fixed values. It backs tests and
// the CLI demo mode.
type Static struct {
	name    string
	entries map[string]StaticEntry
	healthy bool

	mu    sync.Mutex
	calls map[string]int
}

// NewStatic creates a static adapter with the given per-field entries.
func NewStatic(name string, entries map[string]StaticEntry) *Static {
	return &Static{
		name:    name,
		entries: entries,
		healthy: true,
		calls:   make(map[string]int),
	}
}

// WithHealthy sets the reported health.
func (s *Static) WithHealthy(healthy bool) *Static {
	s.healthy = healthy
	return s
}

func (s *Static) Name() string { return s.name }

func (s *Static) SupportedFields() []string {
	fields := make([]string, 0, len(s.entries))
	for f := range s.entries {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func (s *Static) Fetch(ctx context.Context, field, entityID string, asOf time.Time) (model.FieldValue, error) {
	if err := ctx.Err(); err != nil {
		return model.FieldValue{}, Classify(s.name, field, err)
	}

	s.mu.Lock()
	s.calls[field]++
	n := s.calls[field]
	s.mu.Unlock()

	e, ok := s.entries[field]
	if !ok {
		return model.FieldValue{}, Unavailable(s.name, field, eris.New("no data"))
	}
	if e.Err != nil && (e.FailTimes == 0 || n <= e.FailTimes) {
		return model.FieldValue{}, Classify(s.name, field, e.Err)
	}

	observed := e.ObservedAt
	if observed.IsZero() {
		zap.L().Debug("static: undated observation, assuming as-of date",
			zap.String("source", s.name),
			zap.String("entity", entityID),
			zap.String("field", field),
		)
		observed = asOf
	}
	return model.FieldValue{
		FieldName:  field,
		Value:      e.Value,
		Unit:       e.Unit,
		SourceID:   s.name,
		ObservedAt: observed,
	}, nil
}

func (s *Static) HealthCheck(ctx context.Context) HealthStatus {
	return ProbeHealth(ctx, s.name, func(context.Context) error {
		if !s.healthy {
			return eris.New("static: marked unhealthy")
		}
		return nil
	})
}

// Calls returns how many times field was fetched.
func (s *Static) Calls(field string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[field]
}
