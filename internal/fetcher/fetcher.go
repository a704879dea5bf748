// Package fetcher retrieves raw documents for source adapters over HTTP, FTP,
// or the local filesystem, and decodes CSV, XLSX, XML and JSON payloads.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the location and returns the body. The caller closes it.
	Download(ctx context.Context, location string) (io.ReadCloser, error)
}

// Opener routes a location to the HTTP fetcher, the FTP fetcher, or the
// local filesystem based on its scheme.
type Opener struct {
	HTTP *HTTPFetcher
	FTP  *FTPFetcher
}

// NewOpener creates an Opener with default HTTP and FTP fetchers.
func NewOpener(httpOpts HTTPOptions, ftpOpts FTPOptions) *Opener {
	return &Opener{
		HTTP: NewHTTPFetcher(httpOpts),
		FTP:  NewFTPFetcher(ftpOpts),
	}
}

// Download opens location. Plain paths and file:// URLs are read from disk.
func (o *Opener) Download(ctx context.Context, location string) (io.ReadCloser, error) {
	switch schemeOf(location) {
	case "http", "https":
		if o.HTTP == nil {
			return nil, eris.Errorf("fetcher: no http fetcher for %s", location)
		}
		return o.HTTP.Download(ctx, location)
	case "ftp":
		if o.FTP == nil {
			return nil, eris.Errorf("fetcher: no ftp fetcher for %s", location)
		}
		return o.FTP.Download(ctx, location)
	default:
		f, err := os.Open(localPath(location))
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", location)
		}
		return f, nil
	}
}

// LocalFile returns a filesystem path holding the content of location. Remote
// documents are downloaded into dir; cleanup removes them. Local paths are
// returned as-is with a no-op cleanup.
func (o *Opener) LocalFile(ctx context.Context, location, dir string) (path string, cleanup func(), err error) {
	switch schemeOf(location) {
	case "http", "https", "ftp":
	default:
		return localPath(location), func() {}, nil
	}

	body, err := o.Download(ctx, location)
	if err != nil {
		return "", nil, err
	}
	defer body.Close() //nolint:errcheck

	f, err := os.CreateTemp(dir, "fetch-*"+filepath.Ext(location))
	if err != nil {
		return "", nil, eris.Wrap(err, "fetcher: create temp file")
	}
	cleanup = func() { _ = os.Remove(f.Name()) }

	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, eris.Wrap(err, "fetcher: write temp file")
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, eris.Wrap(err, "fetcher: close temp file")
	}
	return f.Name(), cleanup, nil
}

func schemeOf(location string) string {
	i := strings.Index(location, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(location[:i])
}

func localPath(location string) string {
	if schemeOf(location) == "file" {
		if u, err := url.Parse(location); err == nil {
			return u.Path
		}
	}
	return location
}
