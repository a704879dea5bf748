package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/reconcile-cli/internal/resilience"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
		Header:    http.Header{"X-Api-Key": []string{"k"}},
	})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestDownload_SingleAttempt(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusServiceUnavailable, true},
		{"not found", http.StatusNotFound, false},
		{"bad request", http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := newTestFetcher().Download(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Equal(t, int32(1), calls.Load(), "fetcher must not retry on its own")
			assert.Equal(t, tt.status, StatusCode(err))
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestDownload_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := newTestFetcher().Download(context.Background(), addr)
	require.Error(t, err)
	assert.Zero(t, StatusCode(err))
}

func TestHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if strings.HasSuffix(r.URL.Path, "/down") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newTestFetcher()
	require.NoError(t, f.Head(context.Background(), srv.URL+"/up"))
	err := f.Head(context.Background(), srv.URL+"/down")
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
}

func TestLimiterFor(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{
		HostRates: map[string]float64{"api.example.com": 4},
	})
	lim := f.LimiterFor("https://api.example.com/v1/x")
	require.NotNil(t, lim)
	assert.Equal(t, rate.Limit(4), lim.Limit())
	assert.Nil(t, f.LimiterFor("https://other.example.com/"), "no default rate means unlimited")

	withDefault := NewHTTPFetcher(HTTPOptions{DefaultRate: 2})
	a := withDefault.LimiterFor("https://x.example.com/a")
	b := withDefault.LimiterFor("https://x.example.com/b")
	require.NotNil(t, a)
	assert.Same(t, a, b, "limiter is shared per host")
}

func TestDownload_429BacksOffHostLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{DefaultRate: 100})
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, rate.Limit(50), f.LimiterFor(srv.URL).Limit())
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	a := NewAdaptiveLimiter(10, 10)
	for range 20 {
		a.OnSuccess()
	}
	assert.Equal(t, rate.Limit(20), a.Limit())

	for range 20 {
		a.OnRateLimit()
	}
	assert.Equal(t, rate.Limit(2.5), a.Limit())
}
