// Package httpjson implements a source adapter for market-data style JSON
// APIs that serve one observation per entity and field.
package httpjson

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/fetcher"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/source"
)

// Config configures a JSON-over-HTTP adapter.
type Config struct {
	Name    string   `mapstructure:"name" validate:"required"`
	BaseURL string   `mapstructure:"base_url" validate:"required,url"`
	Fields  []string `mapstructure:"fields" validate:"required,min=1"`
	// HealthPath is appended to BaseURL for health probes. Default "/health".
	HealthPath string `mapstructure:"health_path"`
}

// observation is the wire format of one answer.
type observation struct {
	Value      *float64 `json:"value"`
	Unit       string   `json:"unit"`
	ObservedAt string   `json:"observed_at"`
}

// Adapter fetches GET {base}/{entity}/{field}?as_of=YYYY-MM-DD.
type Adapter struct {
	cfg     Config
	fetcher *fetcher.HTTPFetcher
}

// New creates an adapter using f for transport.
func New(cfg Config, f *fetcher.HTTPFetcher) *Adapter {
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Adapter{cfg: cfg, fetcher: f}
}

func (a *Adapter) Name() string              { return a.cfg.Name }
func (a *Adapter) SupportedFields() []string { return a.cfg.Fields }

func (a *Adapter) Fetch(ctx context.Context, field, entityID string, asOf time.Time) (model.FieldValue, error) {
	u := a.cfg.BaseURL + "/" + url.PathEscape(entityID) + "/" + url.PathEscape(field) +
		"?as_of=" + url.QueryEscape(asOf.Format(time.DateOnly))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.FieldValue{}, source.Malformed(a.cfg.Name, field, eris.Wrap(err, "httpjson: build request"))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.fetcher.Do(ctx, req)
	if err != nil {
		return model.FieldValue{}, source.FromTransport(a.cfg.Name, field, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	obs, err := fetcher.DecodeJSON[observation](resp.Body, false)
	if err != nil {
		return model.FieldValue{}, source.Malformed(a.cfg.Name, field, err)
	}
	if obs.Value == nil || math.IsNaN(*obs.Value) || math.IsInf(*obs.Value, 0) {
		return model.FieldValue{}, source.Malformed(a.cfg.Name, field, eris.New("httpjson: missing or non-finite value"))
	}

	observed := asOf
	if obs.ObservedAt == "" {
		zap.L().Debug("httpjson: undated observation, assuming as-of date",
			zap.String("source", a.cfg.Name),
			zap.String("entity", entityID),
			zap.String("field", field),
		)
	} else {
		observed, err = parseTime(obs.ObservedAt)
		if err != nil {
			return model.FieldValue{}, source.Malformed(a.cfg.Name, field, err)
		}
	}

	return model.FieldValue{
		FieldName:  field,
		Value:      *obs.Value,
		Unit:       obs.Unit,
		SourceID:   a.cfg.Name,
		ObservedAt: observed,
	}, nil
}

func (a *Adapter) HealthCheck(ctx context.Context) source.HealthStatus {
	return source.ProbeHealth(ctx, a.cfg.Name, func(ctx context.Context) error {
		body, err := a.fetcher.Download(ctx, a.cfg.BaseURL+a.cfg.HealthPath)
		if err != nil {
			return err
		}
		return body.Close()
	})
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("httpjson: unparseable observed_at %q", s)
}
