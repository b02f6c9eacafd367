// Package apperr defines the error taxonomy shared by the pipeline stages, the
// request throttle and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error for retry decisions and client reporting.
type Kind string

const (
	KindInvalidInput     Kind = "invalid_input"
	KindNotFound         Kind = "not_found"
	KindRateLimited      Kind = "rate_limited"
	KindForbidden        Kind = "forbidden"
	KindTransientNetwork Kind = "transient_network"
	KindNoSuitableFormat Kind = "no_suitable_format"
	KindMergeError       Kind = "merge_error"
	// KindUnavailable marks a service that is stopping and takes no new work.
	KindUnavailable Kind = "unavailable"
	KindUnhandled   Kind = "unhandled"
)

// Sentinels usable with errors.Is. Any *Error of the same kind matches.
var (
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrRateLimited      = &Error{Kind: KindRateLimited}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrTransientNetwork = &Error{Kind: KindTransientNetwork}
	ErrNoSuitableFormat = &Error{Kind: KindNoSuitableFormat}
	ErrMergeError       = &Error{Kind: KindMergeError}
	ErrUnavailable      = &Error{Kind: KindUnavailable}
	ErrUnhandled        = &Error{Kind: KindUnhandled}
)

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	// RetryAfter is a hint for RateLimited errors; zero when unknown.
	RetryAfter time.Duration
	Err        error
}

// New returns a classified error without a cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// RateLimited returns a RateLimited error carrying a retry-after hint.
func RateLimited(op string, retryAfter time.Duration, err error) *Error {
	return &Error{Kind: KindRateLimited, Op: op, RetryAfter: retryAfter, Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so that errors.Is(err, ErrNotFound) works for any
// NotFound error regardless of op or message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or KindUnhandled when err carries no classification.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnhandled
}

// RetryAfterOf returns the retry-after hint carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// HTTPStatus maps an error kind to the status code returned to API clients.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindForbidden:
		return http.StatusForbidden
	case KindTransientNetwork:
		return http.StatusBadGateway
	case KindNoSuitableFormat:
		return http.StatusUnprocessableEntity
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
