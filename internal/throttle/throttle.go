// Package throttle serialises and paces every call into the upstream video
// platform. Calls from all jobs go through one FIFO queue drained by a single
// consumer, which spaces dispatch start times and applies the retry policy.
package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ytget/yt-downloader-api/internal/apperr"
)

// Spacing defaults
const (
	DefaultMinDelay  = 1 * time.Second
	DefaultJitter    = 2 * time.Second
	DefaultQueueSize = 256
)

// ErrClosed is returned by Submit once the consumer has stopped.
var ErrClosed = apperr.New(apperr.KindUnavailable, "throttle", "closed")

// Config configures a Throttle. Zero values fall back to defaults except
// Jitter and PerMinute, where zero disables the feature.
type Config struct {
	MinDelay time.Duration
	Jitter   time.Duration
	// PerMinute is a sustained dispatch budget on top of the spacing.
	PerMinute int
	QueueSize int
	Policy    Policy
	Logger    *slog.Logger
}

// Throttle is the single gateway to the upstream.
type Throttle struct {
	cfg     Config
	logger  *slog.Logger
	queue   chan *request
	done    chan struct{}
	limiter *rate.Limiter

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(limit time.Duration) time.Duration

	// owned by the consumer goroutine
	lastStart time.Time

	dispatched atomic.Int64
}

// Option customises a Throttle
type Option func(*Throttle)

// WithClock replaces the wall clock and sleep function
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(t *Throttle) {
		t.now = now
		t.sleep = sleep
	}
}

// WithJitterSource replaces the random jitter source
func WithJitterSource(fn func(limit time.Duration) time.Duration) Option {
	return func(t *Throttle) {
		t.jitter = fn
	}
}

type request struct {
	ctx    context.Context
	name   string
	call   func(context.Context) (any, error)
	result chan result
}

type result struct {
	value any
	err   error
}

// New creates a Throttle. Run must be started for submissions to progress.
func New(cfg Config, opts ...Option) *Throttle {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultMinDelay
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.PerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.PerMinute))
	}

	t := &Throttle{
		cfg:     cfg,
		logger:  logger.With("component", "throttle"),
		queue:   make(chan *request, cfg.QueueSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
		sleep:   sleepContext,
		jitter:  randomJitter,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Policy returns the retry policy in effect
func (t *Throttle) Policy() Policy {
	return t.cfg.Policy
}

// Dispatched returns how many upstream calls have been started
func (t *Throttle) Dispatched() int64 {
	return t.dispatched.Load()
}

// Run drains the queue until ctx is cancelled. It must be called once.
func (t *Throttle) Run(ctx context.Context) error {
	defer close(t.done)
	t.logger.Info("throttle started",
		"min_delay", t.cfg.MinDelay, "jitter", t.cfg.Jitter, "per_minute", t.cfg.PerMinute)
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("throttle stopped", "pending", len(t.queue))
			return nil
		case req := <-t.queue:
			t.dispatch(ctx, req)
		}
	}
}

// Submit queues op and blocks until it has been dispatched and finished,
// including retries. name labels the call in logs and errors.
func Submit[T any](ctx context.Context, t *Throttle, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	req := &request{
		ctx:  ctx,
		name: name,
		call: func(ctx context.Context) (any, error) {
			return op(ctx)
		},
		result: make(chan result, 1),
	}

	select {
	case t.queue <- req:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-t.done:
		return zero, ErrClosed
	}

	var res result
	select {
	case res = <-req.result:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-t.done:
		select {
		case res = <-req.result:
		default:
			return zero, ErrClosed
		}
	}

	if res.err != nil {
		return zero, res.err
	}
	v, _ := res.value.(T)
	return v, nil
}

func (t *Throttle) dispatch(runCtx context.Context, req *request) {
	if err := req.ctx.Err(); err != nil {
		req.result <- result{err: err}
		return
	}

	ctx, cancel := context.WithCancel(req.ctx)
	defer cancel()
	stop := context.AfterFunc(runCtx, cancel)
	defer stop()

	var (
		value   any
		err     error
		attempt int
	)
	for {
		attempt++
		if err = t.awaitSlot(ctx); err != nil {
			break
		}
		t.dispatched.Add(1)
		var panicked bool
		value, panicked, err = t.invoke(ctx, req)
		if err == nil || panicked {
			break
		}
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}

		kind := apperr.KindOf(err)
		delay, retry := t.cfg.Policy.Backoff(kind, attempt, apperr.RetryAfterOf(err))
		if !retry {
			err = finalError(req.name, kind, delay, err)
			break
		}
		t.logger.Warn("upstream call failed, retrying",
			"op", req.name, "attempt", attempt, "kind", kind, "backoff", delay, "error", err)
		if err = t.sleep(ctx, delay); err != nil {
			break
		}
	}

	if err != nil {
		t.logger.Debug("upstream call gave up", "op", req.name, "attempts", attempt, "error", err)
	}
	req.result <- result{value: value, err: err}
}

// invoke runs one attempt, turning a panic into an unhandled error that is
// never retried
func (t *Throttle) invoke(ctx context.Context, req *request) (value any, panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("upstream call panicked", "op", req.name, "panic", r)
			err = apperr.New(apperr.KindUnhandled, req.name, fmt.Sprintf("panic: %v", r))
			panicked = true
		}
	}()
	value, err = req.call(ctx)
	return value, false, err
}

// awaitSlot blocks until the spacing and the sustained budget both allow the
// next dispatch, then records its start time.
func (t *Throttle) awaitSlot(ctx context.Context) error {
	if !t.lastStart.IsZero() {
		gap := t.cfg.MinDelay
		if t.cfg.Jitter > 0 {
			gap += t.jitter(t.cfg.Jitter)
		}
		if wait := t.lastStart.Add(gap).Sub(t.now()); wait > 0 {
			if err := t.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	now := t.now()
	r := t.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		if err := t.sleep(ctx, delay); err != nil {
			r.CancelAt(t.now())
			return err
		}
	}

	t.lastStart = t.now()
	return nil
}

// finalError shapes the error surfaced once retries stop
func finalError(name string, kind apperr.Kind, nextDelay time.Duration, err error) error {
	switch kind {
	case apperr.KindRateLimited:
		return apperr.RateLimited(name, nextDelay, err)
	case apperr.KindUnhandled:
		return apperr.Wrap(apperr.KindTransientNetwork, name, err)
	default:
		return err
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit) + 1))
}
