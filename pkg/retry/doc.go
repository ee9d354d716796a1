// Package retry re-runs transient scraper failures with backoff.
//
// Backoff is chosen per failure type: rate limit responses wait much longer
// than network faults, and auth, not-found, parsing and open-breaker errors
// are returned immediately.
//
//	items, err := retry.DoWithResult(ctx, cfg, func(ctx context.Context) ([]json.RawMessage, error) {
//		return client.runOnce(ctx, actor, input, timeout)
//	})
package retry
