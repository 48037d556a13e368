package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rtparts/catalogd/internal/catalog"
)

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "net op failed" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return e.timeout }

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy()

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{name: "nil error", err: nil, attempt: 1, want: false},
		{name: "generic error", err: errors.New("boom"), attempt: 1, want: true},
		{name: "attempts exhausted", err: errors.New("boom"), attempt: 3, want: false},
		{name: "canceled", err: context.Canceled, attempt: 1, want: false},
		{name: "deadline", err: context.DeadlineExceeded, attempt: 1, want: false},
		{name: "challenge", err: &catalog.ChallengeError{URL: "https://x"}, attempt: 1, want: false},
		{name: "net timeout", err: timeoutErr{timeout: true}, attempt: 1, want: true},
		{name: "net non-timeout", err: timeoutErr{timeout: false}, attempt: 1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, p.ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicyWith(5, 100*time.Millisecond, time.Second)

	for attempt := 0; attempt < 6; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, time.Second)
	}
}

func TestBackoffWithinExpectedWindow(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicyWith(3, 200*time.Millisecond, 10*time.Second)

	// attempt 0: delay 200ms, so result in [100ms, 200ms)
	for i := 0; i < 20; i++ {
		d := p.Backoff(0)
		require.GreaterOrEqual(t, d, 100*time.Millisecond)
		require.Less(t, d, 200*time.Millisecond)
	}
}

func TestPolicyDefaults(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicyWith(0, 0, 0)
	require.Equal(t, 3, p.maxAttempts)
	require.Equal(t, 250*time.Millisecond, p.baseDelay)
	require.Equal(t, 5*time.Second, p.maxDelay)
}
