package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	Timeout time.Duration
}

// FTPFetcher downloads files over FTP.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates a new FTPFetcher with the given options.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FTPFetcher{opts: opts}
}

type ftpLocation struct {
	host string
	path string
	user string
	pass string
}

// parseFTPURL extracts host (with port), path and credentials from an FTP
// URL. Missing credentials fall back to anonymous login.
func parseFTPURL(rawURL string) (ftpLocation, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpLocation{}, eris.Wrap(err, "fetcher: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpLocation{}, eris.Errorf("fetcher: expected ftp scheme, got %q", u.Scheme)
	}

	loc := ftpLocation{host: u.Host, path: u.Path, user: "anonymous", pass: "anonymous@"}
	if _, _, splitErr := net.SplitHostPort(loc.host); splitErr != nil {
		loc.host = net.JoinHostPort(loc.host, "21")
	}
	if u.User != nil {
		loc.user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			loc.pass = p
		}
	}
	return loc, nil
}

// ftpConnReader closes the FTP response and the connection together.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "fetcher: close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "fetcher: quit ftp connection")
	}
	return nil
}

func (f *FTPFetcher) connect(ctx context.Context, loc ftpLocation) (*ftp.ServerConn, error) {
	zap.L().Debug("fetcher: ftp connect", zap.String("host", loc.host))

	conn, err := ftp.Dial(loc.host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: ftp dial")
	}
	if err := conn.Login(loc.user, loc.pass); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "fetcher: ftp login")
	}
	return conn, nil
}

// Download retrieves the file. The caller must close the returned reader to
// release the connection.
func (f *FTPFetcher) Download(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	loc, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}
	if loc.path == "" || loc.path == "/" {
		return nil, eris.New("fetcher: empty path in ftp url")
	}

	conn, err := f.connect(ctx, loc)
	if err != nil {
		return nil, err
	}
	resp, err := conn.Retr(loc.path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "fetcher: ftp retrieve")
	}
	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// Ping logs in and issues a NOOP.
func (f *FTPFetcher) Ping(ctx context.Context, ftpURL string) error {
	loc, err := parseFTPURL(ftpURL)
	if err != nil {
		return err
	}
	conn, err := f.connect(ctx, loc)
	if err != nil {
		return err
	}
	defer conn.Quit() //nolint:errcheck
	if err := conn.NoOp(); err != nil {
		return eris.Wrap(err, "fetcher: ftp noop")
	}
	return nil
}
