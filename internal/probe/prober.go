package probe

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"igaudience/pkg/config"
	"igaudience/pkg/instagram"
	"igaudience/pkg/logger"
)

// Checker reports whether an account exists and is public
type Checker interface {
	CheckVisibility(ctx context.Context, username string) instagram.Visibility
}

// Prober runs visibility checks with bounded concurrency. It is the only
// place where scraper calls overlap, and the bound never exceeds
// config.MaxVisibilityConcurrency.
type Prober struct {
	checker Checker
	limit   int
	sem     *semaphore.Weighted
	logger  logger.Logger
}

// New creates a Prober. concurrency is clamped to [1, MaxVisibilityConcurrency].
func New(checker Checker, concurrency int, log logger.Logger) *Prober {
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > config.MaxVisibilityConcurrency {
		concurrency = config.MaxVisibilityConcurrency
	}
	return &Prober{
		checker: checker,
		limit:   concurrency,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		logger:  logger.OrDefault(log),
	}
}

// Concurrency returns the effective bound
func (p *Prober) Concurrency() int {
	return p.limit
}

// CheckAll checks every username and returns the results in input order.
// Usernames not started before ctx is done come back as private with the
// context error.
func (p *Prober) CheckAll(ctx context.Context, usernames []string) []instagram.Visibility {
	results := make([]instagram.Visibility, len(usernames))
	if len(usernames) == 0 {
		return results
	}

	start := time.Now()
	var wg sync.WaitGroup
	for i, u := range usernames {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(usernames); j++ {
				results[j] = instagram.Visibility{
					Username:  usernames[j],
					Exists:    true,
					IsPrivate: true,
					Error:     err.Error(),
				}
			}
			break
		}

		wg.Add(1)
		go func(i int, username string) {
			defer wg.Done()
			defer p.sem.Release(1)
			results[i] = p.checker.CheckVisibility(ctx, username)
		}(i, u)
	}
	wg.Wait()

	public := 0
	for _, v := range results {
		if v.IsPublic {
			public++
		}
	}
	p.logger.DebugWithFields("Visibility checks complete", map[string]interface{}{
		"checked":     len(usernames),
		"public":      public,
		"concurrency": p.limit,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return results
}

// FirstPublic checks usernames in windows of the concurrency bound and stops
// once want public accounts are found. The result keeps input order.
func (p *Prober) FirstPublic(ctx context.Context, usernames []string, want int) []instagram.Visibility {
	var out []instagram.Visibility
	if want <= 0 {
		return out
	}

	for start := 0; start < len(usernames) && len(out) < want; start += p.limit {
		if ctx.Err() != nil {
			break
		}
		end := start + p.limit
		if end > len(usernames) {
			end = len(usernames)
		}
		for _, v := range p.CheckAll(ctx, usernames[start:end]) {
			if v.Exists && v.IsPublic && len(out) < want {
				out = append(out, v)
			}
		}
	}
	return out
}
