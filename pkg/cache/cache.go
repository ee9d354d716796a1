package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"igaudience/pkg/logger"
	"igaudience/pkg/metrics"
)

// Entry is one cached payload. Data holds the payload itself so that a
// collection-level record can be told apart from the scraper records it
// summarises.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Source    string          `json:"source,omitempty"`
	Timestamp time.Time       `json:"cache_timestamp"`
}

// Cache is a time-boxed key/value store for scraper results. Read failures
// are reported as misses; callers never depend on the cache for correctness.
type Cache interface {
	// Get returns the entry only while it is younger than the TTL
	Get(ctx context.Context, key string) (*Entry, bool)
	// Peek returns the entry regardless of age, for last-resort fallbacks
	Peek(ctx context.Context, key string) (*Entry, bool)
	// Put stores data under key stamped with the current time
	Put(ctx context.Context, key, source string, data json.RawMessage) error
	Invalidate(ctx context.Context, key string) error
	InvalidateAll(ctx context.Context) error
	// Backend names the implementation in logs and metrics
	Backend() string
}

// Options are shared by all backends
type Options struct {
	TTL            time.Duration
	StaleRetention time.Duration
	Clock          clockwork.Clock
	Logger         logger.Logger
}

// DefaultTTL is how long an entry stays fresh
const DefaultTTL = 24 * time.Hour

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.StaleRetention < o.TTL {
		o.StaleRetention = 7 * o.TTL
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	o.Logger = logger.OrDefault(o.Logger)
	return o
}

func (o Options) fresh(e *Entry) bool {
	return o.Clock.Now().Sub(e.Timestamp) < o.TTL
}

func observe(log logger.Logger, backend, key, result string) {
	metrics.CacheRequestsTotal.WithLabelValues(backend, result).Inc()
	logger.LogCacheEvent(log, backend, key, result)
}

// Key derives a cache key from an operation name and its target identity.
// Incidental arguments such as limits are deliberately not part of the key.
func Key(operation, target string) string {
	return sanitize(strings.ToLower(operation)) + "_" + sanitize(target)
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Load decodes a fresh entry into T
func Load[T any](ctx context.Context, c Cache, key string) (T, *Entry, bool) {
	return decode[T](c.Get(ctx, key))
}

// LoadStale decodes an entry of any age into T
func LoadStale[T any](ctx context.Context, c Cache, key string) (T, *Entry, bool) {
	return decode[T](c.Peek(ctx, key))
}

func decode[T any](e *Entry, ok bool) (T, *Entry, bool) {
	var v T
	if !ok || e == nil {
		return v, nil, false
	}
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return v, nil, false
	}
	return v, e, true
}

// Store encodes v and writes it under key
func Store(ctx context.Context, c Cache, key, source string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Put(ctx, key, source, data)
}

// Cached returns the fresh cached value for key, or calls fetch and caches a
// successful result. A failed write is logged and otherwise ignored. The
// boolean reports whether the value came from the cache.
func Cached[T any](ctx context.Context, c Cache, key, source string, log logger.Logger, fetch func(ctx context.Context) (T, error)) (T, bool, error) {
	if c != nil {
		if v, _, ok := Load[T](ctx, c, key); ok {
			return v, true, nil
		}
	}

	v, err := fetch(ctx)
	if err != nil {
		return v, false, err
	}

	if c != nil {
		if werr := Store(ctx, c, key, source, v); werr != nil {
			logger.OrDefault(log).WithError(werr).WarnWithFields("Failed to write cache entry", map[string]interface{}{
				"key": key,
			})
		}
	}
	return v, false, nil
}
