package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls how a failed operation is re-attempted.
type RetryConfig struct {
	// MaxRetries is the number of re-attempts after the first try. 0 means
	// the operation runs exactly once. Default: 2.
	MaxRetries int

	// BaseDelay is the wait before the first retry. Default: 1s.
	BaseDelay time.Duration

	// MaxDelay caps a single wait. Default: 30s.
	MaxDelay time.Duration

	// Multiplier scales the wait after each retry. Default: 2.0.
	Multiplier float64

	// JitterFraction spreads each wait by ±fraction. Default: 0.
	JitterFraction float64

	// ShouldRetry decides whether err warrants another attempt. If nil,
	// IsTransient is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each wait with the upcoming retry number.
	OnRetry func(retry int, delay time.Duration, err error)
}

// DefaultRetryConfig returns two retries at 1s then 2s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}
}

// Outcome is the final state of a retried operation. Value holds whatever
// the last attempt produced, even when Err is non-nil, so callers can keep
// partial results.
type Outcome[T any] struct {
	Value    T
	Attempts int
	Err      error
}

// Retry runs fn until it succeeds, returns an error ShouldRetry rejects, the
// retry budget is spent, or ctx ends. fn receives the 1-based attempt number.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context, attempt int) (T, error)) Outcome[T] {
	cfg = applyDefaults(cfg)

	var out Outcome[T]
	for attempt := 1; ; attempt++ {
		out.Value, out.Err = fn(ctx, attempt)
		out.Attempts = attempt
		if out.Err == nil || ctx.Err() != nil {
			return out
		}
		if attempt > cfg.MaxRetries || !cfg.ShouldRetry(out.Err) {
			return out
		}

		delay := Backoff(attempt-1, cfg)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, out.Err)
		}
		if err := sleep(ctx, delay); err != nil {
			return out
		}
	}
}

// Do is Retry for operations without a result.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	return Retry(ctx, cfg, func(ctx context.Context, _ int) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}).Err
}

// DoVal is Retry that drops the value on failure.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	out := Retry(ctx, cfg, func(ctx context.Context, _ int) (T, error) {
		return fn(ctx)
	})
	if out.Err != nil {
		var zero T
		return zero, out.Err
	}
	return out.Value, nil
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = IsTransient
	}
	return cfg
}

// Backoff returns the wait before retry n (0-based): base * multiplier^n,
// capped at MaxDelay and spread by the jitter fraction.
func Backoff(n int, cfg RetryConfig) time.Duration {
	cfg = applyDefaults(cfg)

	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(n))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.JitterFraction > 0 {
		spread := delay * cfg.JitterFraction
		delay += (rand.Float64()*2 - 1) * spread
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryLogger returns an OnRetry callback that logs each retry.
func RetryLogger(component, operation string) func(int, time.Duration, error) {
	return func(retry int, delay time.Duration, err error) {
		zap.L().Warn("retrying operation",
			zap.String("component", component),
			zap.String("operation", operation),
			zap.Int("retry", retry),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
}
