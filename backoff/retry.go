package backoff

import (
	"context"
	"time"

	"github.com/fwojciec/tether"
)

// Option configures a single Retry invocation.
type Option func(*config)

type config struct {
	onRetry func(attempt int, delay time.Duration, err *tether.ClassifiedError)
	onTick  func(remaining time.Duration)
}

// WithOnRetry sets an observer invoked before each backoff sleep with the
// attempt number just failed, the upcoming delay, and the classified error.
func WithOnRetry(fn func(attempt int, delay time.Duration, err *tether.ClassifiedError)) Option {
	return func(c *config) { c.onRetry = fn }
}

// WithOnTick sets a countdown callback forwarded to Sleep.
func WithOnTick(fn func(remaining time.Duration)) Option {
	return func(c *config) { c.onTick = fn }
}

// Retry invokes op until it succeeds, fails with a non-retryable
// classification, or exhausts p.MaxAttempts. Failures are classified through
// tether.Classify; an explicit RetryAfter on the classified error overrides
// the computed delay for that attempt only. Cancelling ctx aborts a pending
// sleep immediately with a cancelled classification.
func Retry[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, tether.Classify(err)
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		cerr := tether.Classify(err)
		if !cerr.Retryable || attempt >= p.MaxAttempts {
			return zero, cerr
		}

		delay := p.Delay(attempt)
		if cerr.RetryAfter > 0 {
			delay = cerr.RetryAfter
		}
		if cfg.onRetry != nil {
			cfg.onRetry(attempt, delay, cerr)
		}
		if err := Sleep(ctx, delay, cfg.onTick); err != nil {
			return zero, err
		}
	}
}
