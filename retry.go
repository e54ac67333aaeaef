package agoda

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/retry.v1"
)

// RetryPolicy bounds how hard a single operation is retried. Only failures
// classified transient are retried at all; authentication and structural
// failures propagate after the first attempt.
type RetryPolicy struct {
	Attempts int           // total attempts, including the first
	Initial  time.Duration // delay before the second attempt
	Factor   float64
	MaxDelay time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Initial:  2 * time.Second,
		Factor:   2,
		MaxDelay: 30 * time.Second,
	}
}

// Controller wraps every network-facing step of the pipeline. It enforces a
// minimum inter-request interval with added jitter (the pacing applies on
// success paths too, to keep request timing human-like) and retries
// transient failures with exponential backoff.
type Controller struct {
	policy    RetryPolicy
	limiter   *rate.Limiter
	jitterMax time.Duration
	log       Logger
}

func NewController(policy RetryPolicy, minInterval time.Duration, log Logger) *Controller {
	if log == nil {
		log = NopLogger{}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	var jitterMax time.Duration
	if minInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(minInterval), 1)
		jitterMax = minInterval / 2
	}
	return &Controller{
		policy:    policy,
		limiter:   limiter,
		jitterMax: jitterMax,
		log:       log,
	}
}

// Do runs fn under the retry policy. The returned error is fn's last error
// once attempts are exhausted, or the first non-transient error.
func (c *Controller) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	strategy := retry.LimitCount(c.policy.Attempts, retry.Exponential{
		Initial:  c.policy.Initial,
		Factor:   c.policy.Factor,
		MaxDelay: c.policy.MaxDelay,
		Jitter:   true,
	})

	var lastErr error
	for a := retry.StartWithCancel(strategy, nil, ctx.Done()); a.Next(); {
		if err := c.pace(ctx); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if a.More() {
			c.log.Printf("%v: attempt %d failed, will retry: %v", op, a.Count(), lastErr)
		}
	}
	if err := ctx.Err(); err != nil && lastErr == nil {
		return err
	}
	return lastErr
}

// pace blocks until the minimum inter-request interval has elapsed, plus a
// random fraction of it.
func (c *Controller) pace(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if c.jitterMax <= 0 {
		return nil
	}
	jitter := time.Duration(rand.Int63n(int64(c.jitterMax)))
	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
