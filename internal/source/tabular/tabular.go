// Package tabular implements a source adapter over historical CSV or XLSX
// tables with one observation per row.
package tabular

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/fetcher"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/source"
)

// Format selects the table parser.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Config configures a tabular adapter.
type Config struct {
	Name     string   `mapstructure:"name" validate:"required"`
	Location string   `mapstructure:"location" validate:"required"`
	Fields   []string `mapstructure:"fields" validate:"required,min=1"`
	// Format defaults to the location's extension.
	Format Format `mapstructure:"format" validate:"omitempty,oneof=csv xlsx"`
	Sheet  string `mapstructure:"sheet"`
}

// Record is one parsed table row.
type Record struct {
	Entity string
	Field  string
	Date   time.Time
	Value  float64
	Unit   string
}

var requiredColumns = []string{"entity", "field", "date", "value"}

// Adapter reads the table on every fetch and returns the latest row dated
// on or before the run date.
type Adapter struct {
	cfg    Config
	opener *fetcher.Opener
}

// New creates a tabular adapter.
func New(cfg Config, opener *fetcher.Opener) *Adapter {
	if cfg.Format == "" {
		cfg.Format = FormatCSV
		if strings.EqualFold(filepath.Ext(cfg.Location), ".xlsx") {
			cfg.Format = FormatXLSX
		}
	}
	return &Adapter{cfg: cfg, opener: opener}
}

func (a *Adapter) Name() string              { return a.cfg.Name }
func (a *Adapter) SupportedFields() []string { return a.cfg.Fields }

func (a *Adapter) Fetch(ctx context.Context, field, entityID string, asOf time.Time) (model.FieldValue, error) {
	rows, err := a.load(ctx)
	if err != nil {
		return model.FieldValue{}, a.classify(field, err)
	}

	rec, found, err := Latest(rows, entityID, field, asOf)
	if err != nil {
		return model.FieldValue{}, source.Malformed(a.cfg.Name, field, err)
	}
	if !found {
		return model.FieldValue{}, source.Unavailable(a.cfg.Name, field,
			eris.Errorf("tabular: no row for %s/%s on or before %s", entityID, field, asOf.Format(time.DateOnly)))
	}

	return model.FieldValue{
		FieldName:  field,
		Value:      rec.Value,
		Unit:       rec.Unit,
		SourceID:   a.cfg.Name,
		ObservedAt: rec.Date,
	}, nil
}

func (a *Adapter) HealthCheck(ctx context.Context) source.HealthStatus {
	return source.ProbeHealth(ctx, a.cfg.Name, func(ctx context.Context) error {
		rows, err := a.load(ctx)
		if err != nil {
			return err
		}
		_, err = header(rows)
		return err
	})
}

// Load reads all records from the configured table.
func (a *Adapter) Load(ctx context.Context) ([]Record, error) {
	rows, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(rows)
}

// load returns the raw rows. A fetch or parse failure is a transport error
// unless the document itself is undecodable.
func (a *Adapter) load(ctx context.Context) ([][]string, error) {
	if a.cfg.Format == FormatXLSX {
		path, cleanup, err := a.opener.LocalFile(ctx, a.cfg.Location, os.TempDir())
		if err != nil {
			return nil, err
		}
		defer cleanup()
		rows, err := fetcher.Drain(fetcher.StreamXLSX(ctx, path, fetcher.XLSXOptions{SheetName: a.cfg.Sheet}))
		if err != nil {
			return nil, &parseError{err: err}
		}
		return rows, nil
	}

	body, err := a.opener.Download(ctx, a.cfg.Location)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	rows, err := fetcher.Drain(fetcher.StreamCSV(ctx, body, fetcher.CSVOptions{TrimSpace: true, Comment: '#'}))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &parseError{err: err}
	}
	return rows, nil
}

func (a *Adapter) classify(field string, err error) error {
	var pe *parseError
	if errors.As(err, &pe) {
		return source.Malformed(a.cfg.Name, field, pe.err)
	}
	return source.FromTransport(a.cfg.Name, field, err)
}

type parseError struct{ err error }

func (e *parseError) Error() string { return "tabular: parse: " + e.err.Error() }
func (e *parseError) Unwrap() error { return e.err }

// header maps required column names to their index.
func header(rows [][]string) (map[string]int, error) {
	if len(rows) == 0 {
		return nil, eris.New("tabular: empty table")
	}
	cols := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, req := range requiredColumns {
		if _, ok := cols[req]; !ok {
			return nil, eris.Errorf("tabular: missing column %q", req)
		}
	}
	return cols, nil
}

// Parse converts rows (header first) into records.
func Parse(rows [][]string) ([]Record, error) {
	cols, err := header(rows)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := parseRow(cols, row)
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: row %d", i+2)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Latest returns the newest record for entity and field dated on or before
// asOf. Only matching rows are parsed, so junk elsewhere in the table does
// not poison unrelated fields.
func Latest(rows [][]string, entity, field string, asOf time.Time) (Record, bool, error) {
	cols, err := header(rows)
	if err != nil {
		return Record{}, false, err
	}

	var best Record
	found := false
	for i, row := range rows[1:] {
		if cell(row, cols["entity"]) != entity || cell(row, cols["field"]) != field {
			continue
		}
		rec, err := parseRow(cols, row)
		if err != nil {
			return Record{}, false, eris.Wrapf(err, "tabular: row %d", i+2)
		}
		if rec.Date.After(asOf) {
			continue
		}
		if !found || rec.Date.After(best.Date) {
			best, found = rec, true
		}
	}
	return best, found, nil
}

func parseRow(cols map[string]int, row []string) (Record, error) {
	date, err := parseDate(cell(row, cols["date"]))
	if err != nil {
		return Record{}, err
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(cell(row, cols["value"]), ",", ""), 64)
	if err != nil {
		return Record{}, eris.Wrap(err, "value")
	}
	rec := Record{
		Entity: cell(row, cols["entity"]),
		Field:  cell(row, cols["field"]),
		Date:   date,
		Value:  value,
	}
	if i, ok := cols["unit"]; ok {
		rec.Unit = cell(row, i)
	}
	return rec, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339, "01/02/2006", "1/2/06"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("unparseable date %q", s)
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
