package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShouldRetry(t *testing.T) {
	policy := NewExponentialRetryPolicy(3, time.Second, 30*time.Second)

	require.False(t, policy.ShouldRetry(nil, 0))
	require.False(t, policy.ShouldRetry(errors.New("boom"), 3))
	require.False(t, policy.ShouldRetry(context.Canceled, 0))
	require.False(t, policy.ShouldRetry(context.DeadlineExceeded, 0))
	require.True(t, policy.ShouldRetry(errors.New("connection refused"), 0))
	require.True(t, policy.ShouldRetry(&serverError{status: 503}, 2))
}

func TestBackoffStaysWithinJitterWindow(t *testing.T) {
	policy := NewExponentialRetryPolicy(5, time.Second, 30*time.Second)

	cases := []struct {
		attempt int
		full    time.Duration
	}{
		{attempt: 0, full: time.Second},
		{attempt: 1, full: 2 * time.Second},
		{attempt: 2, full: 4 * time.Second},
		{attempt: 10, full: 30 * time.Second},
	}
	for _, tc := range cases {
		for range 50 {
			wait := policy.Backoff(tc.attempt)
			require.GreaterOrEqual(t, wait, tc.full/2, "attempt %d", tc.attempt)
			require.Less(t, wait, tc.full, "attempt %d", tc.attempt)
		}
	}
}

func TestBackoffCappedAtMaxDelay(t *testing.T) {
	policy := NewExponentialRetryPolicy(3, time.Second, 5*time.Second)
	wait := policy.Backoff(20)
	require.Less(t, wait, 5*time.Second)
	require.GreaterOrEqual(t, wait, 2500*time.Millisecond)
}
