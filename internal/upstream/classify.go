package upstream

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ytget/yt-downloader-api/internal/apperr"
)

// stderr hints, matched lowercase. Order matters: the first matching group
// wins.
var (
	rateLimitHints = []string{
		"http error 429", "too many requests", "rate limit", "rate-limit",
		"confirm you're not a bot", "confirm you’re not a bot",
	}
	forbiddenHints = []string{
		"private video", "members-only", "members only", "sign in to confirm your age",
		"age-restricted", "http error 403", "not available in your country", "blocked it in your country",
	}
	notFoundHints = []string{
		"video unavailable", "does not exist", "http error 404", "http error 410",
		"has been removed", "is not a valid url", "unsupported url",
	}
	networkHints = []string{
		"timed out", "timeout", "temporarily unavailable", "connection reset",
		"connection refused", "service unavailable", "network is unreachable",
		"http error 5", "remote end closed", "unable to download",
	}
)

// ClassifyOutput maps yt-dlp diagnostic output onto an error kind. Output
// matching nothing is a transient network failure.
func ClassifyOutput(output string) apperr.Kind {
	text := strings.ToLower(output)
	switch {
	case containsAny(text, rateLimitHints):
		return apperr.KindRateLimited
	case containsAny(text, forbiddenHints):
		return apperr.KindForbidden
	case containsAny(text, notFoundHints):
		return apperr.KindNotFound
	default:
		return apperr.KindTransientNetwork
	}
}

// ClassifyStatus maps an HTTP status of a stream fetch onto an error kind. ok
// is false for success codes.
func ClassifyStatus(code int) (kind apperr.Kind, ok bool) {
	switch {
	case code >= 200 && code < 300:
		return "", false
	case code == http.StatusTooManyRequests:
		return apperr.KindRateLimited, true
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperr.KindForbidden, true
	case code == http.StatusNotFound || code == http.StatusGone:
		return apperr.KindNotFound, true
	default:
		return apperr.KindTransientNetwork, true
	}
}

// ParseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// classifyTransportError wraps an error from the HTTP client or process
// runner. Cancellation by the caller is returned unchanged; everything else,
// including the per-call timeout firing, is a transient network failure.
func classifyTransportError(parent context.Context, op string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	return apperr.Wrap(apperr.KindTransientNetwork, op, err)
}

func containsAny(text string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}
