package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Endpoint names used by the scraper source
const (
	EndpointProfile           = "instagram_profile"
	EndpointPosts             = "instagram_posts"
	EndpointComments          = "instagram_comments"
	EndpointHashtags          = "instagram_hashtags"
	EndpointProfileCheck      = "profile_check"
	EndpointProfilePostsCheck = "profile_posts_check"
)

// DefaultDelay applies to endpoints missing from the delay table
const DefaultDelay = time.Second

// DefaultDelays returns the built-in minimum interval per endpoint
func DefaultDelays() map[string]time.Duration {
	return map[string]time.Duration{
		EndpointProfile:           2 * time.Second,
		EndpointPosts:             2 * time.Second,
		EndpointComments:          3 * time.Second,
		EndpointHashtags:          5 * time.Second,
		EndpointProfileCheck:      time.Second,
		EndpointProfilePostsCheck: 2 * time.Second,
	}
}

// Limiter paces calls per named endpoint
type Limiter interface {
	// Wait blocks until the endpoint's minimum interval since the previous
	// granted call has elapsed, or ctx is done.
	Wait(ctx context.Context, endpoint string) error
}

// EndpointLimiter keeps one single-token bucket per endpoint. A bucket with
// burst 1 refilling every delay grants calls at least delay apart, and
// reservations queue concurrent waiters on the same endpoint in order.
type EndpointLimiter struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	delays   map[string]time.Duration
	limiters map[string]*rate.Limiter
	onWait   func(endpoint string, waited time.Duration)
}

// Option configures an EndpointLimiter
type Option func(*EndpointLimiter)

// WithClock substitutes the time source
func WithClock(c clockwork.Clock) Option {
	return func(l *EndpointLimiter) { l.clock = c }
}

// WithOverrides replaces individual entries of the default delay table
func WithOverrides(overrides map[string]time.Duration) Option {
	return func(l *EndpointLimiter) {
		for endpoint, d := range overrides {
			l.delays[endpoint] = d
		}
	}
}

// WithWaitObserver registers a callback invoked after every Wait that had to sleep
func WithWaitObserver(fn func(endpoint string, waited time.Duration)) Option {
	return func(l *EndpointLimiter) { l.onWait = fn }
}

// NewEndpointLimiter creates a limiter over the default delay table
func NewEndpointLimiter(opts ...Option) *EndpointLimiter {
	l := &EndpointLimiter{
		clock:    clockwork.NewRealClock(),
		delays:   DefaultDelays(),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Delay returns the effective minimum interval for endpoint
func (l *EndpointLimiter) Delay(endpoint string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.delayLocked(endpoint)
}

func (l *EndpointLimiter) delayLocked(endpoint string) time.Duration {
	if d, ok := l.delays[endpoint]; ok {
		return d
	}
	return DefaultDelay
}

func (l *EndpointLimiter) limiterFor(endpoint string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[endpoint]
	if !ok {
		d := l.delayLocked(endpoint)
		limit := rate.Inf
		if d > 0 {
			limit = rate.Every(d)
		}
		lim = rate.NewLimiter(limit, 1)
		l.limiters[endpoint] = lim
	}
	return lim
}

// Wait implements Limiter
func (l *EndpointLimiter) Wait(ctx context.Context, endpoint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lim := l.limiterFor(endpoint)
	now := l.clock.Now()
	r := lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	timer := l.clock.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		if l.onWait != nil {
			l.onWait(endpoint, delay)
		}
		return nil
	case <-ctx.Done():
		r.CancelAt(l.clock.Now())
		return ctx.Err()
	}
}

// Reset forgets all call history
func (l *EndpointLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters = make(map[string]*rate.Limiter)
}
