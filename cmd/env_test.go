package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/db"
)

func TestInitStore_None(t *testing.T) {
	st, err := initStore(context.Background(), config.StoreConfig{Driver: "none"})
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestInitStore_SQLite(t *testing.T) {
	ctx := context.Background()
	st, err := initStore(ctx, config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "audit.db"),
	})
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	run, err := st.CreateRun(ctx, "ACME", time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
}

func TestInitStore_Unsupported(t *testing.T) {
	_, err := initStore(context.Background(), config.StoreConfig{Driver: "mongo"})
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestBuildSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := &config.Config{
		Fetcher: config.FetcherConfig{UserAgent: "test", HTTPTimeoutSecs: 5},
		Sources: []config.SourceConfig{
			{Name: "exchange", Kind: "httpjson", BaseURL: srv.URL, Fields: []string{"price.close"}, MinIntervalMs: 10},
			{Name: "history", Kind: "tabular", Location: "testdata/history.csv", Fields: []string{"price.close"}},
			{Name: "filings", Kind: "filing", Location: "filings/{entity}.xml", Fields: []string{"fin.revenue"},
				Breaker: config.BreakerConfig{FailureThreshold: 3, ResetTimeoutSecs: 30}},
			{Name: "manual", Kind: "static", Fields: []string{"fin.revenue"}, Values: map[string]float64{"fin.revenue": 10}, Unit: "USD"},
		},
	}

	srcs, err := buildSources(context.Background(), c)
	require.NoError(t, err)
	defer srcs.Close()

	assert.ElementsMatch(t, []string{"exchange", "history", "filings", "manual"}, srcs.Registry.List())

	// Decorators keep the adapter's identity.
	guarded := srcs.Registry.Get("filings")
	require.NotNil(t, guarded)
	assert.Equal(t, "filings", guarded.Name())
	assert.Equal(t, []string{"fin.revenue"}, guarded.SupportedFields())

	fv, err := srcs.Registry.Get("manual").Fetch(context.Background(), "fin.revenue", "ACME", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 10.0, fv.Value)
	assert.Equal(t, "USD", fv.Unit)

	hs := srcs.Registry.Get("exchange").HealthCheck(context.Background())
	assert.True(t, hs.Healthy, hs.Detail)
}

func TestBuildSources_UnknownKind(t *testing.T) {
	c := &config.Config{Sources: []config.SourceConfig{{Name: "x", Kind: "soap", Fields: []string{"a"}}}}
	_, err := buildSources(context.Background(), c)
	assert.ErrorContains(t, err, "source x")
}

func TestBuildSources_PostgresAdaptersOwnTheirPools(t *testing.T) {
	var (
		urls   []string
		pools  []db.Pool
		closed int
	)
	orig := connectPool
	connectPool = func(_ context.Context, url string) (db.Pool, func(), error) {
		mock, err := pgxmock.NewPool()
		if err != nil {
			return nil, nil, err
		}
		urls = append(urls, url)
		pools = append(pools, mock)
		return mock, func() { closed++ }, nil
	}
	defer func() { connectPool = orig }()

	c := &config.Config{
		Indicators: config.IndicatorsConfig{DatabaseURL: "postgres://localhost/econ", Table: "econ.indicators"},
		Sources: []config.SourceConfig{
			{Name: "indicators", Kind: "postgres", Fields: []string{"macro.cpi_yoy"}},
			{Name: "rates", Kind: "postgres", Fields: []string{"macro.fed_funds"}},
		},
	}

	srcs, err := buildSources(context.Background(), c)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"indicators", "rates"}, srcs.Registry.List())

	assert.Equal(t, []string{"postgres://localhost/econ", "postgres://localhost/econ"}, urls)
	require.Len(t, pools, 2)
	assert.NotSame(t, pools[0], pools[1])

	srcs.Close()
	assert.Equal(t, 2, closed)
}
