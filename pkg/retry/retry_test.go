package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igaudience/pkg/errors"
	"igaudience/pkg/logger"
)

func fastConfig(attempts int) *Config {
	quick := &ConstantBackoff{Delay: time.Millisecond}
	return &Config{
		MaxAttempts: attempts,
		Backoff:     &ByErrorType{Network: quick, RateLimit: quick, Server: quick, Default: quick},
		Logger:      logger.NewNopLogger(),
	}
}

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{9, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoffJitterStaysInRange(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}
	for i := 0; i < 50; i++ {
		d := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, d, 140*time.Millisecond)
		assert.LessOrEqual(t, d, 260*time.Millisecond)
	}
}

func TestByErrorTypeSelection(t *testing.T) {
	b := DefaultByErrorType()
	assert.Same(t, b.RateLimit, b.For(errs.New(errs.ErrorTypeRateLimit, "op", "429")))
	assert.Same(t, b.Network, b.For(errs.New(errs.ErrorTypeTimeout, "op", "slow")))
	assert.Same(t, b.Server, b.For(errs.New(errs.ErrorTypeServerError, "op", "502")))
	assert.Same(t, b.Default, b.For(errors.New("plain")))
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errs.New(errs.ErrorTypeNetwork, "apify.run", "reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	attempts := 0
	var retried []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) { retried = append(retried, attempt) }

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return errs.New(errs.ErrorTypeServerError, "apify.run", "502")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Equal(t, errs.ErrorTypeServerError, errs.TypeOf(err))
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	for _, typ := range []errs.ErrorType{errs.ErrorTypeAuth, errs.ErrorTypeNotFound, errs.ErrorTypeCircuitOpen} {
		t.Run(string(typ), func(t *testing.T) {
			attempts := 0
			want := errs.New(typ, "apify.run", "permanent")
			err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
				attempts++
				return want
			})
			assert.Same(t, want, err)
			assert.Equal(t, 1, attempts)
		})
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(10)
	cfg.Backoff = &ByErrorType{Default: &ConstantBackoff{Delay: time.Hour}}

	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, cfg, func(ctx context.Context) error {
		attempts++
		return errors.New("flaky")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(3), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errs.New(errs.ErrorTypeRateLimit, "op", "wait")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}
