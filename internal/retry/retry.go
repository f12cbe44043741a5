// Package retry wraps avast/retry-go with the policy used by the chain
// adapters: a small fixed number of attempts with exponential backoff.
//
// Basic usage:
//
//	r := retry.New(retry.WithAttempts(3))
//	n, err := retry.Value(ctx, r, func() (uint64, error) {
//	    return client.BlockNumber(ctx)
//	})
package retry

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// Retry executes operations with automatic retries.
type Retry interface {
	// Execute runs operation until it succeeds, the attempts are exhausted or
	// ctx is done. Only the last error is returned.
	Execute(ctx context.Context, operation func() error) error
}

type config struct {
	attempts uint
	delay    time.Duration
	maxDelay time.Duration
}

// Option configures the retry policy.
type Option func(*config)

type retrier struct {
	cfg config
}

var _ Retry = (*retrier)(nil)

// New returns a Retry with the given options applied over the defaults:
// 3 attempts, 500ms base delay, 4s maximum delay.
func New(opts ...Option) Retry {
	cfg := config{
		attempts: 3,
		delay:    500 * time.Millisecond,
		maxDelay: 4 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.attempts == 0 {
		cfg.attempts = 1
	}

	return &retrier{cfg: cfg}
}

func (r *retrier) Execute(ctx context.Context, operation func() error) error {
	return retry.Do(operation,
		retry.Attempts(r.cfg.attempts),
		retry.Delay(r.cfg.delay),
		retry.MaxDelay(r.cfg.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}

// Value runs operation through r and returns the value of the first
// successful attempt.
func Value[T any](ctx context.Context, r Retry, operation func() (T, error)) (T, error) {
	var out T
	err := r.Execute(ctx, func() error {
		v, err := operation()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// WithAttempts sets the total number of attempts, including the first one.
func WithAttempts(n uint) Option {
	return func(c *config) {
		c.attempts = n
	}
}

// WithDelay sets the base delay between attempts.
func WithDelay(d time.Duration) Option {
	return func(c *config) {
		c.delay = d
	}
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(c *config) {
		c.maxDelay = d
	}
}
