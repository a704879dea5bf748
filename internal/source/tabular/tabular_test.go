package tabular

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/reconcile-cli/internal/fetcher"
	"github.com/sells-group/reconcile-cli/internal/source"
)

const history = `entity,field,date,value,unit
ACME,revenue,2024-12-31,"1,000",USD
ACME,revenue,2025-03-31,1100,USD
ACME,revenue,2025-06-30,1250,USD
ACME,headcount,2025-01-15,420,
OTHER,revenue,2025-03-31,9,USD
JUNK,revenue,not-a-date,x,USD
`

var asOf = time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newOpener() *fetcher.Opener {
	return fetcher.NewOpener(fetcher.HTTPOptions{Timeout: 2 * time.Second}, fetcher.FTPOptions{})
}

func TestFetch_LatestOnOrBeforeAsOf(t *testing.T) {
	a := New(Config{Name: "history", Location: writeCSV(t, history), Fields: []string{"revenue", "headcount"}}, newOpener())

	fv, err := a.Fetch(context.Background(), "revenue", "ACME", asOf)
	require.NoError(t, err)
	assert.Equal(t, 1100.0, fv.Value)
	assert.Equal(t, "USD", fv.Unit)
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), fv.ObservedAt)
	assert.Equal(t, "history", fv.SourceID)

	fv, err = a.Fetch(context.Background(), "revenue", "ACME", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1000.0, fv.Value, "thousands separators are accepted")
}

func TestFetch_NoRow(t *testing.T) {
	a := New(Config{Name: "history", Location: writeCSV(t, history), Fields: []string{"revenue"}}, newOpener())

	_, err := a.Fetch(context.Background(), "revenue", "ACME", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, source.ErrUnavailable)

	_, err = a.Fetch(context.Background(), "revenue", "NOBODY", asOf)
	assert.ErrorIs(t, err, source.ErrUnavailable)
}

func TestFetch_MalformedRowIsMalformed(t *testing.T) {
	a := New(Config{Name: "history", Location: writeCSV(t, history), Fields: []string{"revenue"}}, newOpener())
	_, err := a.Fetch(context.Background(), "revenue", "JUNK", asOf)
	assert.ErrorIs(t, err, source.ErrMalformed)
}

func TestFetch_MissingColumn(t *testing.T) {
	a := New(Config{Name: "history", Location: writeCSV(t, "entity,field,value\nACME,revenue,1\n"), Fields: []string{"revenue"}}, newOpener())
	_, err := a.Fetch(context.Background(), "revenue", "ACME", asOf)
	assert.ErrorIs(t, err, source.ErrMalformed)
}

func TestFetch_MissingFile(t *testing.T) {
	a := New(Config{Name: "history", Location: filepath.Join(t.TempDir(), "gone.csv"), Fields: []string{"revenue"}}, newOpener())
	_, err := a.Fetch(context.Background(), "revenue", "ACME", asOf)
	assert.ErrorIs(t, err, source.ErrUnavailable)
	assert.False(t, a.HealthCheck(context.Background()).Healthy)
}

func TestFetch_OverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(history))
	}))
	defer srv.Close()

	a := New(Config{Name: "history", Location: srv.URL + "/history.csv", Fields: []string{"headcount"}}, newOpener())
	fv, err := a.Fetch(context.Background(), "headcount", "ACME", asOf)
	require.NoError(t, err)
	assert.Equal(t, 420.0, fv.Value)
	assert.True(t, a.HealthCheck(context.Background()).Healthy)
}

func TestFetch_HTTPRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := New(Config{Name: "history", Location: srv.URL + "/history.csv", Fields: []string{"revenue"}}, newOpener())
	_, err := a.Fetch(context.Background(), "revenue", "ACME", asOf)
	assert.ErrorIs(t, err, source.ErrRateLimited)
}

func TestFetch_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("History")
	require.NoError(t, err)
	for _, r := range [][]string{
		{"Entity", "Field", "Date", "Value", "Unit"},
		{"ACME", "revenue", "2025-02-28", "1050", "USD"},
		{"ACME", "revenue", "2025-05-31", "1200", "USD"},
	} {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "history.xlsx")
	require.NoError(t, f.Save(path))

	a := New(Config{Name: "book", Location: path, Sheet: "History", Fields: []string{"revenue"}}, newOpener())
	assert.Equal(t, FormatXLSX, a.cfg.Format)

	fv, err := a.Fetch(context.Background(), "revenue", "ACME", asOf)
	require.NoError(t, err)
	assert.Equal(t, 1050.0, fv.Value)
}

func TestParse(t *testing.T) {
	recs, err := Parse([][]string{
		{"entity", "field", "date", "value"},
		{"ACME", "cpi", "2025-01-31", "3.1"},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, Record{Entity: "ACME", Field: "cpi", Date: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), Value: 3.1}, recs[0])

	_, err = Parse([][]string{{"entity", "field", "date", "value"}, {"ACME", "cpi", "bad", "1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")

	_, err = Parse(nil)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	a := New(Config{Name: "history", Location: writeCSV(t, "entity,field,date,value,unit\nACME,cpi,2025-01-31,3.1,pct\n"), Fields: []string{"cpi"}}, newOpener())
	recs, err := a.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "pct", recs[0].Unit)
}
