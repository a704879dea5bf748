package source

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
)

// throttled enforces a minimum interval between requests to one source.
// The limiter is owned by this adapter and never shared.
type throttled struct {
	Adapter
	limiter *rate.Limiter
}

// Throttle wraps a so that consecutive fetches are at least minInterval apart.
// A non-positive interval returns a unchanged.
func Throttle(a Adapter, minInterval time.Duration) Adapter {
	if minInterval <= 0 {
		return a
	}
	return &throttled{
		Adapter: a,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

func (t *throttled) Fetch(ctx context.Context, field, entityID string, asOf time.Time) (model.FieldValue, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return model.FieldValue{}, Classify(t.Name(), field, err)
	}
	return t.Adapter.Fetch(ctx, field, entityID, asOf)
}

// guarded short-circuits fetches while the source keeps failing.
type guarded struct {
	Adapter
	breaker *resilience.CircuitBreaker
}

// Guard wraps a with a circuit breaker. Only retryable failures count toward
// tripping; malformed responses mean the source is up.
func Guard(a Adapter, cfg resilience.CircuitBreakerConfig) Adapter {
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = IsRetryable
	}
	return &guarded{
		Adapter: a,
		breaker: resilience.NewCircuitBreaker(cfg),
	}
}

func (g *guarded) Fetch(ctx context.Context, field, entityID string, asOf time.Time) (model.FieldValue, error) {
	fv, err := resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (model.FieldValue, error) {
		return g.Adapter.Fetch(ctx, field, entityID, asOf)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return model.FieldValue{}, Unavailable(g.Name(), field, err)
	}
	return fv, err
}

// State exposes the breaker state for health reporting.
func (g *guarded) State() resilience.CircuitState {
	return g.breaker.State()
}
