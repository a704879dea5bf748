package source

import (
	"context"
	"errors"
	"net/http"

	"github.com/sells-group/reconcile-cli/internal/fetcher"
	"github.com/sells-group/reconcile-cli/internal/resilience"
)

// FromTransport classifies an error returned by the fetcher layer. 429 is
// RateLimited; 5xx, 404, timeouts and network failures are Unavailable;
// any other rejected request is Malformed since repeating it cannot help.
func FromTransport(src, field string, err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Classify(src, field, err)
	}

	code := fetcher.StatusCode(err)
	switch {
	case code == http.StatusTooManyRequests:
		return RateLimited(src, field, err)
	case code == http.StatusNotFound, resilience.IsTransientHTTPStatus(code):
		return Unavailable(src, field, err)
	case code >= 400 && code < 500:
		return Malformed(src, field, err)
	}
	return Unavailable(src, field, err)
}
