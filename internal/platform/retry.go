package platform

import (
	"context"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"brandscout/internal/metrics"
)

// RetryConfig parameterizes the shared retry policy used by every
// external client: a fixed attempt budget, a doubling delay from a base
// interval, and an optional non-retryable predicate.
type RetryConfig struct {
	// MaxAttempts is the total call budget including the first attempt.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// NonRetryable short-circuits the retry loop when it returns true.
	NonRetryable func(resp *http.Response, err error) bool
}

func (c RetryConfig) normalize() RetryConfig {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	return c
}

// retryableStatus covers rate limiting and transient server errors.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// NewHTTPExecutor builds a failsafe executor for HTTP requests. Retried
// responses have their bodies closed before the next attempt.
func NewHTTPExecutor(endpoint string, cfg RetryConfig) failsafe.Executor[*http.Response] {
	cfg = cfg.normalize()
	builder := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxAttempts - 1).
		WithJitterFactor(0.1).
		ReturnLastFailure().
		HandleIf(func(resp *http.Response, err error) bool {
			if cfg.NonRetryable != nil && cfg.NonRetryable(resp, err) {
				return false
			}
			if err != nil {
				return true
			}
			return resp != nil && retryableStatus(resp.StatusCode)
		}).
		OnRetry(func(e failsafe.ExecutionEvent[*http.Response]) {
			if r := e.LastResult(); r != nil {
				_ = r.Body.Close()
			}
			metrics.APIRetries.WithLabelValues(endpoint).Inc()
		})
	return failsafe.With(builder.Build())
}

// Do runs req through the executor, cloning it per attempt. A response
// with a still-failing status after exhaustion is returned as-is; the
// caller decides how to wrap it.
func Do(ctx context.Context, exec failsafe.Executor[*http.Response], hc *http.Client, req *http.Request) (*http.Response, error) {
	return exec.WithContext(ctx).Get(func() (*http.Response, error) {
		return hc.Do(req.Clone(ctx))
	})
}
