// Package ratelimit enforces a minimum interval between calls to each named
// scraper endpoint.
//
// Every endpoint has its own bucket, so a slow hashtag endpoint never delays
// profile lookups. Waiters on the same endpoint are granted slots in the
// order they reserved them.
//
//	limiter := ratelimit.NewEndpointLimiter(ratelimit.WithOverrides(cfg.RateLimit.Delays))
//	if err := limiter.Wait(ctx, ratelimit.EndpointComments); err != nil {
//	    return err
//	}
package ratelimit
