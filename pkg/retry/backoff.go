package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	errs "igaudience/pkg/errors"
)

// BackoffStrategy computes the pause before a retry
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff grows the delay geometrically with optional jitter
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// DefaultExponentialBackoff starts at 1s and doubles up to 30s with 10% jitter
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay calculates the next delay with exponential backoff and jitter
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	if delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	if eb.JitterFactor > 0 {
		jitter := delay * eb.JitterFactor
		delay += (rand.Float64() * 2 * jitter) - jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// ConstantBackoff waits the same amount before every retry
type ConstantBackoff struct {
	Delay time.Duration
}

func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// ByErrorType picks a strategy from the type of the failure being retried.
// Rate limit responses from the scraper platform back off far longer than
// transient network faults.
type ByErrorType struct {
	Network   BackoffStrategy
	RateLimit BackoffStrategy
	Server    BackoffStrategy
	Default   BackoffStrategy
}

// DefaultByErrorType returns the strategies used for Apify calls
func DefaultByErrorType() *ByErrorType {
	return &ByErrorType{
		Network: &ExponentialBackoff{
			BaseDelay: time.Second, MaxDelay: 20 * time.Second, Multiplier: 2.0, JitterFactor: 0.2,
		},
		RateLimit: &ExponentialBackoff{
			BaseDelay: 15 * time.Second, MaxDelay: 2 * time.Minute, Multiplier: 1.5, JitterFactor: 0.3,
		},
		Server: &ExponentialBackoff{
			BaseDelay: 3 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.0, JitterFactor: 0.1,
		},
		Default: DefaultExponentialBackoff(),
	}
}

// For returns the strategy matching err
func (b *ByErrorType) For(err error) BackoffStrategy {
	switch errs.TypeOf(err) {
	case errs.ErrorTypeNetwork, errs.ErrorTypeTimeout:
		return b.Network
	case errs.ErrorTypeRateLimit:
		return b.RateLimit
	case errs.ErrorTypeServerError:
		return b.Server
	default:
		return b.Default
	}
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
