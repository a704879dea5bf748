package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStatic_Fetch(t *testing.T) {
	t.Parallel()

	asOf := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	observed := asOf.Add(-48 * time.Hour)
	s := NewStatic("filing", map[string]StaticEntry{
		"revenue": {Value: 1000, Unit: "USD", ObservedAt: observed},
		"price":   {Value: 12.5},
	})

	fv, err := s.Fetch(context.Background(), "revenue", "ACME", asOf)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, fv.Value)
	assert.Equal(t, "USD", fv.Unit)
	assert.Equal(t, "filing", fv.SourceID)
	assert.Equal(t, observed, fv.ObservedAt)

	fv, err = s.Fetch(context.Background(), "price", "ACME", asOf)
	require.NoError(t, err)
	assert.Equal(t, asOf, fv.ObservedAt, "undated entries are observed as of the run date")

	_, err = s.Fetch(context.Background(), "headcount", "ACME", asOf)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, s.Calls("headcount"))
}

func TestStatic_UndatedEntryIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	asOf := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	s := NewStatic("feed", map[string]StaticEntry{
		"dated":   {Value: 1, ObservedAt: asOf.Add(-time.Hour)},
		"undated": {Value: 2},
	})

	_, err := s.Fetch(context.Background(), "dated", "ACME", asOf)
	require.NoError(t, err)
	assert.Zero(t, logs.Len())

	_, err = s.Fetch(context.Background(), "undated", "ACME", asOf)
	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "feed", logs.All()[0].ContextMap()["source"])
	assert.Equal(t, "undated", logs.All()[0].ContextMap()["field"])
}

func TestStatic_FailTimes(t *testing.T) {
	t.Parallel()

	s := NewStatic("vendor", map[string]StaticEntry{
		"price": {Value: 10, Err: RateLimited("vendor", "price", nil), FailTimes: 2},
	})
	ctx := context.Background()

	for range 2 {
		_, err := s.Fetch(ctx, "price", "ACME", time.Now())
		assert.ErrorIs(t, err, ErrRateLimited)
	}
	fv, err := s.Fetch(ctx, "price", "ACME", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 10.0, fv.Value)
	assert.Equal(t, 3, s.Calls("price"))
}

func TestStatic_PermanentError(t *testing.T) {
	t.Parallel()

	s := NewStatic("vendor", map[string]StaticEntry{
		"price": {Err: errors.New("gateway down")},
	})
	for range 3 {
		_, err := s.Fetch(context.Background(), "price", "ACME", time.Now())
		assert.ErrorIs(t, err, ErrUnavailable)
	}
}

func TestStatic_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewStatic("vendor", map[string]StaticEntry{"price": {Value: 1}})
	_, err := s.Fetch(ctx, "price", "ACME", time.Now())
	assert.Equal(t, KindCanceled, KindOf(err))
	assert.Zero(t, s.Calls("price"))
}

func TestStatic_HealthCheck(t *testing.T) {
	t.Parallel()

	s := NewStatic("vendor", nil)
	assert.True(t, s.HealthCheck(context.Background()).Healthy)

	hs := s.WithHealthy(false).HealthCheck(context.Background())
	assert.False(t, hs.Healthy)
	assert.Equal(t, "vendor", hs.Source)
	assert.NotEmpty(t, hs.Detail)
}
