package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOpts() Options {
	return Options{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, fastOpts())

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("still down")
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	}, fastOpts())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	opts := fastOpts()
	opts.Retryable = func(error) bool { return false }

	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("permanent")
	}, opts)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	}, Options{MaxAttempts: 10, BaseDelay: time.Millisecond})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestHTTPRetryable(t *testing.T) {
	pred := HTTPRetryable(http.StatusTooManyRequests)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network error", errors.New("connection refused"), true},
		{"server error", &HTTPError{Status: 503}, true},
		{"payment required", &HTTPError{Status: 402}, false},
		{"not found", &HTTPError{Status: 404}, false},
		{"configured 4xx", &HTTPError{Status: 429}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pred(tt.err))
		})
	}
}
