package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Kind classifies adapter failures.
type Kind string

const (
	// KindUnavailable means the source could not be reached or had no data. Retryable.
	KindUnavailable Kind = "unavailable"
	// KindRateLimited means the source asked us to slow down. Retryable with backoff.
	KindRateLimited Kind = "rate_limited"
	// KindMalformed means the source answered with something unusable. Not retried.
	KindMalformed Kind = "malformed_response"
	// KindCanceled means the caller's context ended the fetch.
	KindCanceled Kind = "canceled"
)

// Sentinel values for errors.Is matching against classified errors.
var (
	ErrUnavailable = eris.New("source unavailable")
	ErrRateLimited = eris.New("source rate limited")
	ErrMalformed   = eris.New("malformed source response")
)

// Error is a classified adapter failure for one (source, field) pair.
type Error struct {
	Kind   Kind
	Source string
	Field  string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("source %s: field %s: %s", e.Source, e.Field, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrMalformed:
		return e.Kind == KindMalformed
	}
	return false
}

// Unavailable builds a KindUnavailable error.
func Unavailable(src, field string, err error) *Error {
	return &Error{Kind: KindUnavailable, Source: src, Field: field, Err: err}
}

// RateLimited builds a KindRateLimited error.
func RateLimited(src, field string, err error) *Error {
	return &Error{Kind: KindRateLimited, Source: src, Field: field, Err: err}
}

// Malformed builds a KindMalformed error.
func Malformed(src, field string, err error) *Error {
	return &Error{Kind: KindMalformed, Source: src, Field: field, Err: err}
}

// Classify returns err as a *Error. Errors an adapter did not classify are
// treated as Unavailable; context cancellation keeps its own kind.
func Classify(src, field string, err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindCanceled, Source: src, Field: field, Err: err}
	}
	return Unavailable(src, field, err)
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return Classify("", "", err).Kind
}

// IsRetryable reports whether a phase should be retried because of err.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindUnavailable, KindRateLimited:
		return true
	}
	return false
}
