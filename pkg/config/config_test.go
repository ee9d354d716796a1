package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://api.apify.com", cfg.Apify.BaseURL)
	assert.Equal(t, 5, cfg.Apify.BreakerFailures)
	assert.Equal(t, CacheBackendFile, cfg.Cache.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.StaleRetention)
	assert.Equal(t, 30, cfg.Collector.QualityThreshold)
	assert.Equal(t, 5, cfg.Collector.MaxPosts)
	assert.Equal(t, 50, cfg.Collector.CommentsPerPost)
	assert.Equal(t, 3, cfg.Collector.VisibilityConcurrency)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())
	assert.Error(t, cfg.ValidateCredentials(), "defaults carry no token")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APIFY_API_KEY", "apify-token")
	t.Setenv("OPENAI_API_KEY", "openai-key")
	t.Setenv("IGAUDIENCE_CACHE_BACKEND", "REDIS")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("IGAUDIENCE_CACHE_TTL", "2h")
	t.Setenv("IGAUDIENCE_QUALITY_THRESHOLD", "45")
	t.Setenv("IGAUDIENCE_RESULTS_DIR", "/tmp/results")
	t.Setenv("IGAUDIENCE_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "apify-token", cfg.Apify.Token)
	assert.Equal(t, "openai-key", cfg.LLM.APIKey)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, "redis.internal:6380", cfg.Cache.Redis.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 45, cfg.Collector.QualityThreshold)
	assert.Equal(t, "/tmp/results", cfg.Output.ResultsDirectory)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.LLMAvailable())
	assert.NoError(t, cfg.ValidateCredentials())
}

func TestLoadFromEnvPrefersPrefixedToken(t *testing.T) {
	t.Setenv("APIFY_API_KEY", "legacy")
	t.Setenv("IGAUDIENCE_APIFY_TOKEN", "prefixed")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())
	assert.Equal(t, "prefixed", cfg.Apify.Token)
}

func TestLoadFromEnvBadValues(t *testing.T) {
	t.Setenv("IGAUDIENCE_CACHE_TTL", "forever")
	t.Setenv("IGAUDIENCE_QUALITY_THRESHOLD", "high")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IGAUDIENCE_CACHE_TTL")
	assert.Contains(t, err.Error(), "IGAUDIENCE_QUALITY_THRESHOLD")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, "invalid cache backend"},
		{"redis without addr", func(c *Config) {
			c.Cache.Backend = CacheBackendRedis
			c.Cache.Redis.Addr = ""
		}, "redis address"},
		{"threshold too high", func(c *Config) { c.Collector.QualityThreshold = 101 }, "quality threshold"},
		{"negative threshold", func(c *Config) { c.Collector.QualityThreshold = -1 }, "quality threshold"},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache TTL"},
		{"retention shorter than ttl", func(c *Config) { c.Cache.StaleRetention = time.Hour }, "stale retention"},
		{"negative delay", func(c *Config) {
			c.RateLimit.Delays = map[string]time.Duration{"instagram_comments": -time.Second}
		}, "instagram_comments"},
		{"too much concurrency", func(c *Config) { c.Collector.VisibilityConcurrency = 20 }, "visibility concurrency"},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"log-level":         "error",
		"quality-threshold": 60,
		"limit":             12,
		"results-dir":       "/flag/results",
		"cache-backend":     "Memory",
		"no-llm":            true,
	})

	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, 60, cfg.Collector.QualityThreshold)
	assert.Equal(t, 12, cfg.Collector.AudienceLimit)
	assert.Equal(t, "/flag/results", cfg.Output.ResultsDirectory)
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	assert.False(t, cfg.LLM.Enabled)
}

func TestSaveAndLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Cache.Backend = CacheBackendMemory
	cfg.Collector.QualityThreshold = 55
	cfg.RateLimit.Delays = map[string]time.Duration{"instagram_hashtags": 8 * time.Second}
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, CacheBackendMemory, loaded.Cache.Backend)
	assert.Equal(t, 55, loaded.Collector.QualityThreshold)
	assert.Equal(t, 8*time.Second, loaded.RateLimit.Delays["instagram_hashtags"])
	assert.Equal(t, 24*time.Hour, loaded.Cache.TTL)
}

func TestLoadFromFileYAMLDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
cache:
  backend: redis
  ttl: 12h
  stale_retention: 48h
  redis:
    addr: 10.0.0.5:6379
rate_limit:
  delays:
    instagram_comments: 4s
collector:
  quality_threshold: 40
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, 12*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 48*time.Hour, cfg.Cache.StaleRetention)
	assert.Equal(t, "10.0.0.5:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 4*time.Second, cfg.RateLimit.Delays["instagram_comments"])
	assert.Equal(t, 40, cfg.Collector.QualityThreshold)
	assert.Equal(t, 50, cfg.Collector.CommentsPerPost, "untouched keys keep defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadValidates(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  backend: tape\n"), 0644))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}
