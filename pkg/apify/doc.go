// Package apify runs Apify actors synchronously and returns their dataset
// items as raw JSON records.
//
// Every run is retried on transient failures (network, timeout, 429, 5xx)
// and guarded by a circuit breaker so a failing platform is not hammered for
// every handle in a batch:
//
//	client := apify.NewClient(cfg.Apify, apify.WithLogger(log))
//	items, err := client.Run(ctx, "apify/instagram-comment-scraper", input, time.Minute)
//
// Callers decode items into their own record types.
package apify
