package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/db"
	"github.com/sells-group/reconcile-cli/internal/fetcher"
	"github.com/sells-group/reconcile-cli/internal/resilience"
	"github.com/sells-group/reconcile-cli/internal/source"
	"github.com/sells-group/reconcile-cli/internal/source/filing"
	"github.com/sells-group/reconcile-cli/internal/source/httpjson"
	"github.com/sells-group/reconcile-cli/internal/source/pgsource"
	"github.com/sells-group/reconcile-cli/internal/source/tabular"
	"github.com/sells-group/reconcile-cli/internal/store"
)

// initStore opens the audit store. The "none" driver returns a nil store;
// runs are then neither recorded nor listable.
func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch sc.Driver {
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "reconcile.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, sc.DatabaseURL, &db.PoolConfig{MaxConns: sc.MaxConns})
	case "none", "":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// sources holds the adapters built from config and whatever they opened.
type sources struct {
	Registry *source.Registry
	closers  []func()
}

// Close releases database pools opened for adapters.
func (s *sources) Close() {
	for _, c := range s.closers {
		c()
	}
}

// connectPool opens the postgres pool owned by one adapter. It returns the
// pool and its close func.
var connectPool = func(ctx context.Context, url string) (db.Pool, func(), error) {
	p, err := db.Connect(ctx, url, db.PoolConfig{})
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}

// buildSources creates one adapter per configured source. Every adapter gets
// its own fetcher and is wrapped with its throttle and circuit breaker.
func buildSources(ctx context.Context, c *config.Config) (*sources, error) {
	out := &sources{Registry: source.NewRegistry()}

	for _, sc := range c.Sources {
		a, err := buildAdapter(ctx, c, sc, out)
		if err != nil {
			out.Close()
			return nil, eris.Wrapf(err, "source %s", sc.Name)
		}
		out.Registry.Register(decorate(a, sc))
		zap.L().Debug("source registered",
			zap.String("source", sc.Name),
			zap.String("kind", sc.Kind),
			zap.Strings("fields", sc.Fields),
		)
	}
	return out, nil
}

func buildAdapter(ctx context.Context, c *config.Config, sc config.SourceConfig, out *sources) (source.Adapter, error) {
	switch sc.Kind {
	case "httpjson":
		return httpjson.New(httpjson.Config{
			Name:       sc.Name,
			BaseURL:    sc.BaseURL,
			Fields:     sc.Fields,
			HealthPath: sc.HealthPath,
		}, fetcher.NewHTTPFetcher(httpOptions(c.Fetcher, sc.RequestsPerSecond))), nil
	case "tabular":
		return tabular.New(tabular.Config{
			Name:     sc.Name,
			Location: sc.Location,
			Fields:   sc.Fields,
			Format:   tabular.Format(sc.Format),
			Sheet:    sc.Sheet,
		}, newOpener(c.Fetcher, sc.RequestsPerSecond)), nil
	case "filing":
		return filing.New(filing.Config{
			Name:           sc.Name,
			Location:       sc.Location,
			Fields:         sc.Fields,
			HealthLocation: sc.HealthLocation,
		}, newOpener(c.Fetcher, sc.RequestsPerSecond)), nil
	case "postgres":
		url := sc.DatabaseURL
		if url == "" {
			url = c.Indicators.DatabaseURL
		}
		// Each adapter owns its pool, even when URLs match.
		pool, closePool, err := connectPool(ctx, url)
		if err != nil {
			return nil, err
		}
		out.closers = append(out.closers, closePool)
		table := sc.Table
		if table == "" {
			table = c.Indicators.Table
		}
		return pgsource.New(pgsource.Config{Name: sc.Name, Table: table, Fields: sc.Fields}, pool), nil
	case "static":
		entries := make(map[string]source.StaticEntry, len(sc.Values))
		for field, v := range sc.Values {
			entries[field] = source.StaticEntry{Value: v, Unit: sc.Unit}
		}
		return source.NewStatic(sc.Name, entries), nil
	default:
		return nil, eris.Errorf("unknown source kind %q", sc.Kind)
	}
}

func decorate(a source.Adapter, sc config.SourceConfig) source.Adapter {
	a = source.Throttle(a, time.Duration(sc.MinIntervalMs)*time.Millisecond)
	if sc.Breaker.FailureThreshold > 0 {
		a = source.Guard(a, resilience.FromCircuitConfig(sc.Breaker.FailureThreshold, sc.Breaker.ResetTimeoutSecs))
	}
	return a
}

func httpOptions(fc config.FetcherConfig, rps float64) fetcher.HTTPOptions {
	return fetcher.HTTPOptions{
		UserAgent:   fc.UserAgent,
		Timeout:     time.Duration(fc.HTTPTimeoutSecs) * time.Second,
		HostRates:   fc.HostRates,
		DefaultRate: rps,
	}
}

func newOpener(fc config.FetcherConfig, rps float64) *fetcher.Opener {
	return fetcher.NewOpener(
		httpOptions(fc, rps),
		fetcher.FTPOptions{Timeout: time.Duration(fc.FTPTimeoutSecs) * time.Second},
	)
}
