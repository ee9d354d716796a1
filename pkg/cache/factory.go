package cache

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"igaudience/pkg/config"
)

// New builds the backend selected in configuration
func New(cfg config.CacheConfig, opts Options) (Cache, error) {
	opts.TTL = cfg.TTL
	opts.StaleRetention = cfg.StaleRetention

	switch cfg.Backend {
	case config.CacheBackendFile, "":
		return NewFileCache(cfg.Directory, opts)
	case config.CacheBackendMemory:
		return NewMemoryCache(opts), nil
	case config.CacheBackendRedis:
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisCache(rdb, cfg.Redis.Prefix, opts), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
