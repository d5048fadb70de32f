// Package retry wraps outbound collaborator calls with bounded attempts and
// exponential backoff. Every provider, ledger, and store call goes through
// Do so failure handling stays uniform.
package retry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Options parameterize one resilient call.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Retryable decides per error. When nil, every error is retried.
	Retryable func(error) bool
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 200 * time.Millisecond
	}
	return o
}

// Do runs op up to MaxAttempts times with exponential backoff from
// BaseDelay, stopping early on context cancellation or a non-retryable
// error.
func Do(ctx context.Context, op func(context.Context) error, opts Options) error {
	opts = opts.withDefaults()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = opts.BaseDelay

	wrapped := func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if opts.Retryable != nil && !opts.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(opts.MaxAttempts-1)), ctx))
}

// HTTPError carries the status code of a failed upstream HTTP call so the
// retry predicate can classify it.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.Status, e.Body)
}

// HTTPRetryable builds the standard predicate: retry 5xx and network-class
// errors, never 4xx except the configured subset, and never 402: a 402
// means the caller must produce a new payment first.
func HTTPRetryable(retryable4xx ...int) func(error) bool {
	return func(err error) bool {
		he, ok := err.(*HTTPError)
		if !ok {
			// Network-class failure.
			return true
		}
		if he.Status == http.StatusPaymentRequired {
			return false
		}
		if he.Status >= 500 {
			return true
		}
		for _, s := range retryable4xx {
			if he.Status == s {
				return true
			}
		}
		return false
	}
}
