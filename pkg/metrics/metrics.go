package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scraper metrics
var (
	// ActorRunsTotal counts actor invocations by actor and outcome
	ActorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igaudience_actor_runs_total",
			Help: "Scraper actor runs by actor and status",
		},
		[]string{"actor", "status"},
	)

	// ActorRunDuration tracks actor latency in seconds
	ActorRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "igaudience_actor_run_duration_seconds",
			Help:    "Scraper actor run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"actor"},
	)

	// CircuitBreakerStateChanges counts breaker transitions by new state
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igaudience_circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by new state",
		},
		[]string{"state"},
	)

	// RateLimitWaitSeconds tracks time spent waiting for endpoint slots
	RateLimitWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "igaudience_rate_limit_wait_seconds",
			Help:    "Time spent waiting for a rate limit slot",
			Buckets: []float64{.1, .5, 1, 2, 3, 5, 10},
		},
		[]string{"endpoint"},
	)
)

// Cache metrics
var (
	// CacheRequestsTotal counts cache lookups by backend and result (hit, miss, stale, error)
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igaudience_cache_requests_total",
			Help: "Cache lookups by backend and result",
		},
		[]string{"backend", "result"},
	)
)

// Collector metrics
var (
	// CollectorCandidatesTotal counts candidates admitted per stage
	CollectorCandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igaudience_collector_candidates_total",
			Help: "Candidates admitted to the pool by collection stage",
		},
		[]string{"stage"},
	)

	// CollectionsTotal counts finished collections by result origin (live, cache, fallback, empty)
	CollectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igaudience_collections_total",
			Help: "Audience collections by result origin",
		},
		[]string{"origin"},
	)

	// ReportsTotal counts saved reports by kind and status
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igaudience_reports_total",
			Help: "Saved reports by kind and status",
		},
		[]string{"kind", "status"},
	)
)

// ObserveRateLimitWait adapts RateLimitWaitSeconds to the limiter's wait observer
func ObserveRateLimitWait(endpoint string, waited time.Duration) {
	RateLimitWaitSeconds.WithLabelValues(endpoint).Observe(waited.Seconds())
}

// Serve exposes /metrics on addr until ctx is cancelled
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
