package gencode

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// retryProvider retries transient HTTP errors with jittered exponential
// backoff. Transient means rate limited (429) or the model server or its
// gateway being briefly unavailable (502, 503, 504).
type retryProvider struct {
	inner       Provider
	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration // overall timeout across all attempts; 0 = no limit
	logger      *slog.Logger
}

// RetryOption configures a retryProvider.
type RetryOption func(*retryProvider)

// RetryMaxAttempts sets the maximum number of attempts (default: 3).
func RetryMaxAttempts(n int) RetryOption {
	return func(r *retryProvider) { r.maxAttempts = n }
}

// RetryBaseDelay sets the delay before the second attempt (default: 1s).
// Each later delay doubles, with up to 50% jitter either way.
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.baseDelay = d }
}

// RetryTimeout sets the overall timeout for the entire retry sequence.
// The zero value (default) disables it.
func RetryTimeout(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.timeout = d }
}

// RetryLogger sets the structured logger for retry events. Retries log at
// WARN and exhaustion at ERROR.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(r *retryProvider) { r.logger = l }
}

// WithRetry wraps p with automatic retry on transient HTTP errors. When the
// error carries a Retry-After duration the delay is at least that long.
//
//	llm = gencode.WithRetry(openaicompat.NewProvider(key, model, url))
//	llm = gencode.WithRetry(llm, gencode.RetryMaxAttempts(5))
func WithRetry(p Provider, opts ...RetryOption) Provider {
	r := &retryProvider{
		inner:       p,
		maxAttempts: 3,
		baseDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = 1
	}
	if r.logger == nil {
		r.logger = NopLogger
	}
	return r
}

func (r *retryProvider) Name() string { return r.inner.Name() }

func (r *retryProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	policy := &retryAfterBackOff{exp: &backoff.ExponentialBackOff{
		InitialInterval:     r.baseDelay,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         time.Minute,
	}}
	attempt := 0
	resp, err := backoff.Retry(ctx, func() (ChatResponse, error) {
		attempt++
		resp, err := r.inner.Chat(ctx, req)
		if err != nil && !isTransient(err) {
			return resp, backoff.Permanent(err)
		}
		policy.last = err
		return resp, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(r.maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.logger.Warn("retrying transient error",
				"provider", r.inner.Name(),
				"status", statusOf(err),
				"attempt", attempt,
				"max_attempts", r.maxAttempts,
				"wait", wait)
		}),
	)
	// Retry returns the wrapper as is when the last allowed try was permanent.
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	if err != nil && isTransient(err) {
		r.logger.Error("all retry attempts exhausted",
			"provider", r.inner.Name(),
			"attempts", attempt,
			"error", err)
	}
	return resp, err
}

// withTimeout returns a child context with a deadline if r.timeout is set and
// ctx has no earlier deadline.
func (r *retryProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	deadline := time.Now().Add(r.timeout)
	if existing, ok := ctx.Deadline(); ok && existing.Before(deadline) {
		return ctx, func() {}
	}
	return context.WithDeadline(ctx, deadline)
}

// retryAfterBackOff stretches the exponential delay to the server's
// Retry-After when that is longer.
type retryAfterBackOff struct {
	exp  *backoff.ExponentialBackOff
	last error
}

func (b *retryAfterBackOff) Reset() { b.exp.Reset() }

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	d := b.exp.NextBackOff()
	var e *ErrHTTP
	if errors.As(b.last, &e) && e.RetryAfter > d {
		return e.RetryAfter
	}
	return d
}

func isTransient(err error) bool {
	var e *ErrHTTP
	if !errors.As(err, &e) {
		return false
	}
	switch e.Status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func statusOf(err error) int {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

var _ Provider = (*retryProvider)(nil)
