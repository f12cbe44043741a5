// Package httpclient builds the retrying HTTP client used by the Fuel GraphQL
// adapter.
package httpclient

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

type config struct {
	timeout      time.Duration
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	retryMax     int
	logger       *zerolog.Logger
}

// Option configures the client.
type Option func(*config)

// New returns a retryablehttp.Client. Defaults: 10s per request timeout,
// 2 retries waiting between 500ms and 4s.
func New(opts ...Option) *retryablehttp.Client {
	cfg := config{
		timeout:      10 * time.Second,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 4 * time.Second,
		retryMax:     2,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	client.HTTPClient.Timeout = cfg.timeout
	client.RetryWaitMin = cfg.retryWaitMin
	client.RetryWaitMax = cfg.retryWaitMax
	client.RetryMax = cfg.retryMax
	if cfg.logger != nil {
		logger := *cfg.logger
		client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
			if attempt > 0 {
				logger.Debug().Str("url", req.URL.Redacted()).Int("attempt", attempt).Msg("retrying request")
			}
		}
	}
	return client
}

// WithTimeout sets the timeout of a single attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetryWait sets the backoff bounds between attempts.
func WithRetryWait(lo, hi time.Duration) Option {
	return func(c *config) {
		c.retryWaitMin = lo
		c.retryWaitMax = hi
	}
}

// WithRetryMax sets the number of retries after the first attempt.
func WithRetryMax(n int) Option {
	return func(c *config) {
		c.retryMax = n
	}
}

// WithLogger logs retried attempts at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) {
		c.logger = &logger
	}
}
