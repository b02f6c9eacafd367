package throttle

import (
	"time"

	"github.com/ytget/yt-downloader-api/internal/apperr"
)

// Retry policy defaults
const (
	DefaultRateLimitRetries   = 3
	DefaultRateLimitBaseDelay = 5 * time.Second
	DefaultNetworkRetries     = 2
	DefaultNetworkBaseDelay   = 2 * time.Second
	DefaultMaxBackoff         = 2 * time.Minute
)

// Policy decides whether a failed upstream call is attempted again and how
// long to wait first. Delays grow linearly with the attempt number.
type Policy struct {
	RateLimitRetries   int
	RateLimitBaseDelay time.Duration
	NetworkRetries     int
	NetworkBaseDelay   time.Duration
	// MaxBackoff caps a single delay; zero means no cap.
	MaxBackoff time.Duration
}

// DefaultPolicy returns the policy used when none is configured
func DefaultPolicy() Policy {
	return Policy{
		RateLimitRetries:   DefaultRateLimitRetries,
		RateLimitBaseDelay: DefaultRateLimitBaseDelay,
		NetworkRetries:     DefaultNetworkRetries,
		NetworkBaseDelay:   DefaultNetworkBaseDelay,
		MaxBackoff:         DefaultMaxBackoff,
	}
}

// MaxAttempts is the upper bound on calls made for one submission
func (p Policy) MaxAttempts() int {
	return max(p.RateLimitRetries, p.NetworkRetries) + 1
}

// Backoff returns the delay before the attempt following attempt (1-based)
// and whether that attempt is allowed. hint is the upstream retry-after, used
// when it exceeds the computed delay.
func (p Policy) Backoff(kind apperr.Kind, attempt int, hint time.Duration) (time.Duration, bool) {
	var (
		delay   time.Duration
		retries int
	)
	switch kind {
	case apperr.KindRateLimited:
		delay = time.Duration(attempt) * p.RateLimitBaseDelay
		if hint > delay {
			delay = hint
		}
		retries = p.RateLimitRetries
	case apperr.KindTransientNetwork, apperr.KindUnhandled:
		delay = time.Duration(attempt) * p.NetworkBaseDelay
		retries = p.NetworkRetries
	default:
		return 0, false
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return delay, attempt <= retries
}
