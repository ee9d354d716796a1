package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogActorRun records the outcome of one scraper actor invocation
func LogActorRun(l Logger, actor string, items int, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"actor":       actor,
		"items":       items,
		"duration_ms": duration.Milliseconds(),
	}
	if err != nil {
		l.WithError(err).WarnWithFields("Actor run failed", fields)
		return
	}
	l.DebugWithFields("Actor run completed", fields)
}

// LogRateLimitWait records time spent waiting on an endpoint slot
func LogRateLimitWait(l Logger, endpoint string, waited time.Duration) {
	if waited <= 0 {
		return
	}
	l.DebugWithFields("Waited for rate limit slot", map[string]interface{}{
		"endpoint":  endpoint,
		"waited_ms": waited.Milliseconds(),
	})
}

// LogStageTransition records a collector state change
func LogStageTransition(l Logger, handle, from, to string, poolSize int) {
	l.InfoWithFields("Collector stage transition", map[string]interface{}{
		"handle":    handle,
		"from":      from,
		"to":        to,
		"pool_size": poolSize,
	})
}

// LogCacheEvent records a cache hit, miss or write
func LogCacheEvent(l Logger, backend, key, result string) {
	l.DebugWithFields("Cache "+result, map[string]interface{}{
		"backend": backend,
		"key":     key,
	})
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	z := zerolog.Nop()
	return &z
}
