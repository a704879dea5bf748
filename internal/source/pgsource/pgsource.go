// Package pgsource implements a source adapter over a PostgreSQL table of
// economic indicators.
package pgsource

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/db"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/source"
)

// DefaultTable holds the indicator observations.
const DefaultTable = "indicators"

// Config configures the indicator adapter.
type Config struct {
	Name   string   `mapstructure:"name" validate:"required"`
	Table  string   `mapstructure:"table"`
	Fields []string `mapstructure:"fields" validate:"required,min=1"`
}

// Indicator is one stored observation.
type Indicator struct {
	EntityID   string
	Field      string
	ObservedAt time.Time
	Value      float64
	Unit       string
}

// Adapter answers fields from the indicator table.
type Adapter struct {
	cfg  Config
	pool db.Pool
}

// New creates an indicator adapter on pool.
func New(cfg Config, pool db.Pool) *Adapter {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	return &Adapter{cfg: cfg, pool: pool}
}

func (a *Adapter) Name() string              { return a.cfg.Name }
func (a *Adapter) SupportedFields() []string { return a.cfg.Fields }

func (a *Adapter) table() string {
	return pgx.Identifier{a.cfg.Table}.Sanitize()
}

func (a *Adapter) Fetch(ctx context.Context, field, entityID string, asOf time.Time) (model.FieldValue, error) {
	query := fmt.Sprintf(`SELECT value, unit, observed_at FROM %s
		WHERE entity_id = $1 AND field = $2 AND observed_at <= $3
		ORDER BY observed_at DESC LIMIT 1`, a.table())

	var (
		value    float64
		unit     *string
		observed time.Time
	)
	err := a.pool.QueryRow(ctx, query, entityID, field, asOf).Scan(&value, &unit, &observed)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.FieldValue{}, source.Unavailable(a.cfg.Name, field,
			eris.Errorf("pgsource: no %s observation for %s", field, entityID))
	}
	if err != nil {
		if ctx.Err() != nil {
			return model.FieldValue{}, source.Classify(a.cfg.Name, field, ctx.Err())
		}
		return model.FieldValue{}, source.Unavailable(a.cfg.Name, field, eris.Wrap(err, "pgsource: query"))
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return model.FieldValue{}, source.Malformed(a.cfg.Name, field, eris.New("pgsource: non-finite value"))
	}

	fv := model.FieldValue{
		FieldName:  field,
		Value:      value,
		SourceID:   a.cfg.Name,
		ObservedAt: observed,
	}
	if unit != nil {
		fv.Unit = *unit
	}
	return fv, nil
}

func (a *Adapter) HealthCheck(ctx context.Context) source.HealthStatus {
	return source.ProbeHealth(ctx, a.cfg.Name, a.pool.Ping)
}

// Migrate creates the indicator table if it does not exist.
func (a *Adapter) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	entity_id   TEXT NOT NULL,
	field       TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	unit        TEXT,
	PRIMARY KEY (entity_id, field, observed_at)
)`, a.table())
	if _, err := a.pool.Exec(ctx, ddl); err != nil {
		return eris.Wrap(err, "pgsource: migrate")
	}
	return nil
}

// Load upserts indicators keyed by (entity_id, field, observed_at).
func (a *Adapter) Load(ctx context.Context, rows []Indicator) (int64, error) {
	data := make([][]any, len(rows))
	for i, r := range rows {
		data[i] = []any{r.EntityID, r.Field, r.ObservedAt, r.Value, r.Unit}
	}
	n, err := db.BulkUpsert(ctx, a.pool, db.UpsertConfig{
		Table:        a.cfg.Table,
		Columns:      []string{"entity_id", "field", "observed_at", "value", "unit"},
		ConflictKeys: []string{"entity_id", "field", "observed_at"},
	}, data)
	if err != nil {
		return 0, eris.Wrap(err, "pgsource: load")
	}
	return n, nil
}
