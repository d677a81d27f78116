package gencode

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitProvider holds requests until the provider's budget allows them.
// Both budgets are token buckets refilled evenly over a minute.
type rateLimitProvider struct {
	inner    Provider
	requests *rate.Limiter // nil when RPM is unset
	tokens   *rate.Limiter // nil when TPM is unset
	now      func() time.Time
}

// RateLimitOption configures WithRateLimit.
type RateLimitOption func(*rateLimitProvider)

// RPM sets the maximum requests per minute. Up to n requests may start back
// to back; after that one starts every minute/n.
func RPM(n int) RateLimitOption {
	return func(r *rateLimitProvider) {
		if n > 0 {
			r.requests = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
		}
	}
}

// TPM sets the maximum tokens per minute (input + output combined), counted
// from ChatResponse.Usage after each call. It is a soft limit: the request that
// crosses the budget completes and later ones wait until the debt is repaid.
func TPM(n int) RateLimitOption {
	return func(r *rateLimitProvider) {
		if n > 0 {
			r.tokens = rate.NewLimiter(rate.Limit(float64(n)/60), n)
		}
	}
}

// WithRateLimit wraps p with proactive rate limiting. Hosted free tiers reject
// bursts, so the resolver wraps providers that have a configured budget:
//
//	llm = gencode.WithRateLimit(gencode.WithRetry(provider), gencode.RPM(15))
func WithRateLimit(p Provider, opts ...RateLimitOption) Provider {
	r := &rateLimitProvider{inner: p, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *rateLimitProvider) Name() string { return r.inner.Name() }

func (r *rateLimitProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := r.wait(ctx, r.requests); err != nil {
		return ChatResponse{}, err
	}
	if err := r.wait(ctx, r.tokens); err != nil {
		return ChatResponse{}, err
	}
	resp, err := r.inner.Chat(ctx, req)
	if err == nil && r.tokens != nil {
		if used := resp.Usage.InputTokens + resp.Usage.OutputTokens; used > 1 {
			// The reservation is never cancelled, so it stays as debt.
			r.tokens.ReserveN(r.now(), min(used-1, r.tokens.Burst()))
		}
	}
	return resp, err
}

// wait takes one unit from l, sleeping for it when the bucket is empty. It
// fails fast when the delay would outlive ctx.
func (r *rateLimitProvider) wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	now := r.now()
	res := l.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	if delay == 0 {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok && deadline.Before(now.Add(delay)) {
		res.CancelAt(now)
		return context.DeadlineExceeded
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		res.CancelAt(r.now())
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Provider = (*rateLimitProvider)(nil)
