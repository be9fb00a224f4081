package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearBackoff(t *testing.T) {
	backoff := LinearBackoff(2 * time.Second)

	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 4*time.Second, backoff(2))
	assert.Equal(t, 6*time.Second, backoff(3))
}

func TestRetryWithBackoff(t *testing.T) {
	fastRetry := func(maxAttempts int) *RetryConfig {
		return &RetryConfig{
			MaxAttempts:     maxAttempts,
			Backoff:         LinearBackoff(time.Millisecond),
			RetryableErrors: func(error) bool { return true },
		}
	}

	t.Run("succeeds on first attempt", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		boom := errors.New("still broken")
		err := RetryWithBackoff(context.Background(), fastRetry(2), func() error {
			calls++
			return boom
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 2, calls)
	})

	t.Run("permanent error fails fast", func(t *testing.T) {
		cfg := fastRetry(5)
		cfg.RetryableErrors = func(err error) bool { return false }

		calls := 0
		boom := errors.New("bad request")
		err := RetryWithBackoff(context.Background(), cfg, func() error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		calls := 0
		err := RetryWithBackoff(ctx, fastRetry(10), func() error {
			calls++
			cancel()
			return errors.New("transient")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:      2,
		Timeout:          time.Hour,
		HalfOpenMaxCalls: 1,
	})
	boom := errors.New("boom")

	require.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	require.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	require.Equal(t, StateOpen, cb.State())

	// While open, calls are rejected without running fn.
	calls := 0
	err := cb.Execute(func() error { calls++; return nil })
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.Equal(t, 0, calls)
}

func TestCircuitBreakerRecovery(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:      1,
		Timeout:          5 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	})
	boom := errors.New("boom")

	require.Error(t, cb.Execute(func() error { return boom }))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(10 * time.Millisecond)

	t.Run("successful trial call closes the breaker", func(t *testing.T) {
		require.NoError(t, cb.Execute(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("failed trial call reopens the breaker", func(t *testing.T) {
		require.Error(t, cb.Execute(func() error { return boom }))
		require.Equal(t, StateOpen, cb.State())

		time.Sleep(10 * time.Millisecond)
		require.Error(t, cb.Execute(func() error { return boom }))
		assert.Equal(t, StateOpen, cb.State())
	})
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Hour, HalfOpenMaxCalls: 1})

	require.Error(t, cb.Execute(func() error { return errors.New("boom") }))
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(func() error { return nil }))
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"breaker open", ErrCircuitBreakerOpen, false},
		{"context canceled", context.Canceled, false},
		{"wrapped cancellation", fmt.Errorf("call failed: %w", context.Canceled), false},
		{"attempt deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("call failed: %w", context.DeadlineExceeded), true},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "api.example.com"}, true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"429 status", errors.New("unexpected status code 429"), true},
		{"server error", errors.New("unexpected status code 503: service unavailable"), true},
		{"timeout message", errors.New("request timed out"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"bad request", errors.New("unexpected status code 400"), false},
		{"unauthorized", errors.New("unexpected status code 401"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestRetryWithCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Hour, HalfOpenMaxCalls: 1})
	cfg := &RetryConfig{
		MaxAttempts:     5,
		Backoff:         LinearBackoff(time.Millisecond),
		RetryableErrors: IsRetryableError,
	}

	calls := 0
	err := RetryWithCircuitBreaker(context.Background(), cfg, cb, func() error {
		calls++
		return errors.New("server error")
	})

	// The breaker opens after two failures and the retry loop stops on the
	// non-retryable open-breaker error.
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.Equal(t, 2, calls)
	assert.Equal(t, StateOpen, cb.State())
}
