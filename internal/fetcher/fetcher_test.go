package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpener_LocalAndFileURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n"), 0o644))

	o := NewOpener(HTTPOptions{}, FTPOptions{})
	for _, loc := range []string{path, "file://" + path} {
		rc, err := o.Download(context.Background(), loc)
		require.NoError(t, err, loc)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		assert.Equal(t, "a,b\n", string(data))
	}

	_, err := o.Download(context.Background(), filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestOpener_LocalFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("remote body"))
	}))
	defer srv.Close()

	o := NewOpener(HTTPOptions{}, FTPOptions{})
	dir := t.TempDir()

	path, cleanup, err := o.LocalFile(context.Background(), srv.URL+"/book.xlsx", dir)
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", filepath.Ext(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "remote body", string(data))

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	local, cleanup, err := o.LocalFile(context.Background(), "/data/book.xlsx", dir)
	require.NoError(t, err)
	cleanup()
	assert.Equal(t, "/data/book.xlsx", local)
}

func TestOpener_MissingFetcher(t *testing.T) {
	o := &Opener{}
	_, err := o.Download(context.Background(), "https://example.com/a")
	assert.Error(t, err)
	_, err = o.Download(context.Background(), "ftp://example.com/a")
	assert.Error(t, err)
}

func TestSchemeOf(t *testing.T) {
	assert.Equal(t, "https", schemeOf("HTTPS://x"))
	assert.Equal(t, "ftp", schemeOf("ftp://host/p"))
	assert.Equal(t, "", schemeOf("/var/data.csv"))
	assert.Equal(t, "", schemeOf("C:\\data.csv"))
}
