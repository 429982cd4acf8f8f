package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelaySchedule(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		want   []time.Duration
	}{
		{
			name:   "login schedule",
			policy: LoginPolicy(),
			want:   []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
		},
		{
			name:   "fetch schedule",
			policy: FetchPolicy(),
			want:   []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, want := range tt.want {
				assert.Equal(t, want, tt.policy.Delay(i+1))
			}
		})
	}
}

func TestDelayMonotonic(t *testing.T) {
	p := Policy{Base: 500 * time.Millisecond, MaxAttempts: 5}
	prev := time.Duration(0)
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		d := p.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	p := Policy{Base: time.Millisecond, MaxAttempts: 3}
	calls := 0
	err := p.Retry(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsBudget(t *testing.T) {
	p := Policy{Base: time.Millisecond, MaxAttempts: 3}
	calls := 0
	boom := errors.New("boom")
	err := p.Retry(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetryPermanentShortCircuits(t *testing.T) {
	p := Policy{Base: time.Millisecond, MaxAttempts: 3}
	calls := 0
	fatal := errors.New("bad credentials")
	err := p.Retry(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(fatal)
	})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	p := Policy{Base: time.Hour, MaxAttempts: 3}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Retry(ctx, func(ctx context.Context) error {
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetryRecoversAfterFailures(t *testing.T) {
	p := Policy{Base: time.Millisecond, MaxAttempts: 3}
	calls := 0
	err := p.Retry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}
