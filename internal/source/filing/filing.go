// Package filing implements a source adapter over XML filing documents that
// report exact figures as <fact> elements.
package filing

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/fetcher"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/source"
)

// Config configures a filing adapter. Location may contain {entity}, which
// is replaced with the entity id, so each entity can have its own document.
type Config struct {
	Name     string   `mapstructure:"name" validate:"required"`
	Location string   `mapstructure:"location" validate:"required"`
	Fields   []string `mapstructure:"fields" validate:"required,min=1"`
	// HealthLocation is probed by HealthCheck. Empty skips the probe.
	HealthLocation string `mapstructure:"health_location"`
}

// Fact is one reported figure.
//
//	<fact entity="ACME" name="revenue" period="2024-12-31" unit="USD">1000</fact>
type Fact struct {
	Entity string `xml:"entity,attr"`
	Name   string `xml:"name,attr"`
	Period string `xml:"period,attr"`
	Unit   string `xml:"unit,attr"`
	Value  string `xml:",chardata"`
}

// Adapter reads the entity's filing on every fetch.
type Adapter struct {
	cfg    Config
	opener *fetcher.Opener
}

// New creates a filing adapter.
func New(cfg Config, opener *fetcher.Opener) *Adapter {
	return &Adapter{cfg: cfg, opener: opener}
}

func (a *Adapter) Name() string              { return a.cfg.Name }
func (a *Adapter) SupportedFields() []string { return a.cfg.Fields }

// Location returns the document location for entityID.
func (a *Adapter) Location(entityID string) string {
	return strings.ReplaceAll(a.cfg.Location, "{entity}", entityID)
}

func (a *Adapter) Fetch(ctx context.Context, field, entityID string, asOf time.Time) (model.FieldValue, error) {
	body, err := a.opener.Download(ctx, a.Location(entityID))
	if err != nil {
		return model.FieldValue{}, source.FromTransport(a.cfg.Name, field, err)
	}
	defer body.Close() //nolint:errcheck

	facts, errCh := fetcher.StreamXML[Fact](ctx, body, "fact")

	var (
		best    Fact
		bestAt  time.Time
		found   bool
		scanErr error
	)
	for f := range facts {
		if scanErr != nil || f.Name != field || (f.Entity != "" && f.Entity != entityID) {
			continue
		}
		period, err := time.Parse(time.DateOnly, strings.TrimSpace(f.Period))
		if err != nil {
			scanErr = eris.Wrapf(err, "filing: fact %s period", f.Name)
			continue
		}
		if period.After(asOf) {
			continue
		}
		if !found || period.After(bestAt) {
			best, bestAt, found = f, period, true
		}
	}
	if err := <-errCh; err != nil {
		if ctx.Err() != nil {
			return model.FieldValue{}, source.Classify(a.cfg.Name, field, ctx.Err())
		}
		return model.FieldValue{}, source.Malformed(a.cfg.Name, field, err)
	}
	if scanErr != nil {
		return model.FieldValue{}, source.Malformed(a.cfg.Name, field, scanErr)
	}
	if !found {
		return model.FieldValue{}, source.Unavailable(a.cfg.Name, field,
			eris.Errorf("filing: no %s fact for %s on or before %s", field, entityID, asOf.Format(time.DateOnly)))
	}

	value, err := parseFigure(best.Value)
	if err != nil {
		return model.FieldValue{}, source.Malformed(a.cfg.Name, field, err)
	}

	return model.FieldValue{
		FieldName:  field,
		Value:      value,
		Unit:       best.Unit,
		SourceID:   a.cfg.Name,
		ObservedAt: bestAt,
	}, nil
}

func (a *Adapter) HealthCheck(ctx context.Context) source.HealthStatus {
	if a.cfg.HealthLocation == "" {
		return source.HealthStatus{Source: a.cfg.Name, Healthy: true, Detail: "no probe configured"}
	}
	return source.ProbeHealth(ctx, a.cfg.Name, func(ctx context.Context) error {
		body, err := a.opener.Download(ctx, a.cfg.HealthLocation)
		if err != nil {
			return err
		}
		return body.Close()
	})
}

var errEmptyFigure = errors.New("filing: empty figure")

// parseFigure accepts plain numbers, thousands separators and accounting
// negatives like (1,200).
func parseFigure(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errEmptyFigure
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "filing: parse figure %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Errorf("filing: non-finite figure %q", s)
	}
	if neg {
		v = -v
	}
	return v, nil
}
