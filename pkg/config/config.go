package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the audience pipeline
type Config struct {
	// Apify actor platform access
	Apify ApifyConfig `yaml:"apify" json:"apify"`

	// Language model used for the qualitative analyses
	LLM LLMConfig `yaml:"llm" json:"llm"`

	// Per-endpoint pacing of scraper calls
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Scraper result cache
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Audience collection tuning
	Collector CollectorConfig `yaml:"collector" json:"collector"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ApifyConfig holds Apify-specific configuration
type ApifyConfig struct {
	Token           string        `yaml:"token" json:"-"`
	BaseURL         string        `yaml:"base_url" json:"base_url"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries      int           `yaml:"max_retries" json:"max_retries"`
	BreakerFailures int           `yaml:"breaker_failures" json:"breaker_failures"`
	BreakerDelay    time.Duration `yaml:"breaker_delay" json:"breaker_delay"`
}

// LLMConfig holds language model configuration
type LLMConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	APIKey  string `yaml:"api_key" json:"-"`
	Model   string `yaml:"model" json:"model"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	Retries int    `yaml:"retries" json:"retries"`
}

// RateLimitConfig holds per-endpoint minimum intervals. Entries override the
// built-in table; endpoints not listed keep their defaults.
type RateLimitConfig struct {
	Delays map[string]time.Duration `yaml:"delays" json:"delays"`
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	Backend        string        `yaml:"backend" json:"backend"`
	Directory      string        `yaml:"directory" json:"directory"`
	TTL            time.Duration `yaml:"ttl" json:"ttl"`
	StaleRetention time.Duration `yaml:"stale_retention" json:"stale_retention"`
	Redis          RedisConfig   `yaml:"redis" json:"redis"`
}

// RedisConfig holds connection settings for the redis cache backend
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// CollectorConfig holds audience collection settings
type CollectorConfig struct {
	MaxPosts              int `yaml:"max_posts" json:"max_posts"`
	CommentsPerPost       int `yaml:"comments_per_post" json:"comments_per_post"`
	HashtagPostsPerTag    int `yaml:"hashtag_posts_per_tag" json:"hashtag_posts_per_tag"`
	QualityThreshold      int `yaml:"quality_threshold" json:"quality_threshold"`
	AudienceLimit         int `yaml:"audience_limit" json:"audience_limit"`
	ICPSampleSize         int `yaml:"icp_sample_size" json:"icp_sample_size"`
	VisibilityConcurrency int `yaml:"visibility_concurrency" json:"visibility_concurrency"`
}

// OutputConfig holds output file configuration
type OutputConfig struct {
	ResultsDirectory string `yaml:"results_directory" json:"results_directory"`
	BrandsFile       string `yaml:"brands_file" json:"brands_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Format string `yaml:"format" json:"format"`
}

// Cache backends
const (
	CacheBackendFile   = "file"
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// MaxVisibilityConcurrency caps parallel visibility checks against the scraper
const MaxVisibilityConcurrency = 3

// DefaultConfig returns the built-in configuration used before any file, env or flag is applied
func DefaultConfig() *Config {
	return &Config{
		Apify: ApifyConfig{
			BaseURL:         "https://api.apify.com",
			Timeout:         120 * time.Second,
			MaxRetries:      3,
			BreakerFailures: 5,
			BreakerDelay:    time.Minute,
		},
		LLM: LLMConfig{
			Enabled: true,
			Model:   "gpt-4o-mini",
			Retries: 3,
		},
		RateLimit: RateLimitConfig{
			Delays: map[string]time.Duration{},
		},
		Cache: CacheConfig{
			Backend:        CacheBackendFile,
			Directory:      "./cache",
			TTL:            24 * time.Hour,
			StaleRetention: 7 * 24 * time.Hour,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "igaudience:",
			},
		},
		Collector: CollectorConfig{
			MaxPosts:              5,
			CommentsPerPost:       50,
			HashtagPostsPerTag:    10,
			QualityThreshold:      30,
			AudienceLimit:         30,
			ICPSampleSize:         5,
			VisibilityConcurrency: 3,
		},
		Output: OutputConfig{
			ResultsDirectory: "./results",
			BrandsFile:       "brands.yaml",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	// Apify
	if token := firstEnv("IGAUDIENCE_APIFY_TOKEN", "APIFY_API_KEY", "APIFY_TOKEN"); token != "" {
		c.Apify.Token = token
	}
	if baseURL := os.Getenv("IGAUDIENCE_APIFY_BASE_URL"); baseURL != "" {
		c.Apify.BaseURL = baseURL
	}

	// LLM
	if key := firstEnv("IGAUDIENCE_OPENAI_API_KEY", "OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("IGAUDIENCE_LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if enabled := os.Getenv("IGAUDIENCE_LLM_ENABLED"); enabled != "" {
		c.LLM.Enabled = strings.ToLower(enabled) == "true"
	}

	// Cache
	if backend := os.Getenv("IGAUDIENCE_CACHE_BACKEND"); backend != "" {
		c.Cache.Backend = strings.ToLower(backend)
	}
	if dir := os.Getenv("IGAUDIENCE_CACHE_DIR"); dir != "" {
		c.Cache.Directory = dir
	}
	if ttl := os.Getenv("IGAUDIENCE_CACHE_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGAUDIENCE_CACHE_TTL: %w", err))
		} else {
			c.Cache.TTL = d
		}
	}
	if addr := firstEnv("IGAUDIENCE_REDIS_ADDR", "REDIS_ADDR"); addr != "" {
		c.Cache.Redis.Addr = addr
	}
	if pw := os.Getenv("IGAUDIENCE_REDIS_PASSWORD"); pw != "" {
		c.Cache.Redis.Password = pw
	}

	// Collector
	if threshold := os.Getenv("IGAUDIENCE_QUALITY_THRESHOLD"); threshold != "" {
		v, err := strconv.Atoi(threshold)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGAUDIENCE_QUALITY_THRESHOLD: %w", err))
		} else {
			c.Collector.QualityThreshold = v
		}
	}
	if limit := os.Getenv("IGAUDIENCE_AUDIENCE_LIMIT"); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGAUDIENCE_AUDIENCE_LIMIT: %w", err))
		} else {
			c.Collector.AudienceLimit = v
		}
	}

	// Output
	if dir := os.Getenv("IGAUDIENCE_RESULTS_DIR"); dir != "" {
		c.Output.ResultsDirectory = dir
	}
	if brands := os.Getenv("IGAUDIENCE_BRANDS_FILE"); brands != "" {
		c.Output.BrandsFile = brands
	}

	// Logging
	if logLevel := os.Getenv("IGAUDIENCE_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile := os.Getenv("IGAUDIENCE_LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}

	return errors.Join(errs...)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	for _, loc := range SearchPaths() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// SearchPaths lists config file locations in order of precedence
func SearchPaths() []string {
	home := os.Getenv("HOME")
	return []string{
		".igaudience.yaml",
		".igaudience.yml",
		filepath.Join(home, ".config", "igaudience", "config.yaml"),
		filepath.Join(home, ".config", "igaudience", "config.yml"),
		filepath.Join(home, ".igaudience.yaml"),
	}
}

// DefaultPath is where `config init` writes a new file
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "igaudience", "config.yaml")
}

// Validate checks if the configuration is valid. Credentials are checked
// separately by ValidateCredentials.
func (c *Config) Validate() error {
	var errs []error

	// Apify
	if c.Apify.BaseURL == "" {
		errs = append(errs, errors.New("apify base URL is required"))
	}
	if c.Apify.Timeout <= 0 {
		errs = append(errs, errors.New("apify timeout must be positive"))
	}
	if c.Apify.MaxRetries < 0 {
		errs = append(errs, errors.New("apify max retries cannot be negative"))
	}
	if c.Apify.BreakerFailures <= 0 {
		errs = append(errs, errors.New("breaker failures must be positive"))
	}

	// Rate limits
	for endpoint, d := range c.RateLimit.Delays {
		if d < 0 {
			errs = append(errs, fmt.Errorf("rate limit delay for %s cannot be negative", endpoint))
		}
	}

	// Cache
	switch c.Cache.Backend {
	case CacheBackendFile:
		if c.Cache.Directory == "" {
			errs = append(errs, errors.New("cache directory is required for the file backend"))
		}
	case CacheBackendRedis:
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("redis address is required for the redis backend"))
		}
	case CacheBackendMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid cache backend %q", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache TTL must be positive"))
	}
	if c.Cache.StaleRetention < c.Cache.TTL {
		errs = append(errs, errors.New("cache stale retention must be at least the TTL"))
	}

	// Collector
	if c.Collector.QualityThreshold < 0 || c.Collector.QualityThreshold > 100 {
		errs = append(errs, errors.New("quality threshold must be between 0 and 100"))
	}
	if c.Collector.AudienceLimit <= 0 {
		errs = append(errs, errors.New("audience limit must be positive"))
	}
	if c.Collector.MaxPosts <= 0 || c.Collector.CommentsPerPost <= 0 || c.Collector.HashtagPostsPerTag <= 0 {
		errs = append(errs, errors.New("collector post and comment counts must be positive"))
	}
	if c.Collector.ICPSampleSize < 0 {
		errs = append(errs, errors.New("ICP sample size cannot be negative"))
	}
	if c.Collector.VisibilityConcurrency <= 0 || c.Collector.VisibilityConcurrency > MaxVisibilityConcurrency {
		errs = append(errs, fmt.Errorf("visibility concurrency must be between 1 and %d", MaxVisibilityConcurrency))
	}

	// Output
	if c.Output.ResultsDirectory == "" {
		errs = append(errs, errors.New("results directory is required"))
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	if c.Logging.Format != "" && c.Logging.Format != "console" && c.Logging.Format != "json" {
		errs = append(errs, errors.New("log format must be console or json"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ValidateCredentials checks the secrets needed to reach the scraper
func (c *Config) ValidateCredentials() error {
	if c.Apify.Token == "" {
		return errors.New("apify API token is required (set APIFY_API_KEY or run `igaudience auth set apify`)")
	}
	return nil
}

// LLMAvailable reports whether the language model can be used
func (c *Config) LLMAvailable() bool {
	return c.LLM.Enabled && c.LLM.APIKey != ""
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if threshold, ok := flags["quality-threshold"].(int); ok && threshold >= 0 {
		c.Collector.QualityThreshold = threshold
	}
	if limit, ok := flags["limit"].(int); ok && limit > 0 {
		c.Collector.AudienceLimit = limit
	}
	if dir, ok := flags["results-dir"].(string); ok && dir != "" {
		c.Output.ResultsDirectory = dir
	}
	if backend, ok := flags["cache-backend"].(string); ok && backend != "" {
		c.Cache.Backend = strings.ToLower(backend)
	}
	if brands, ok := flags["brands-file"].(string); ok && brands != "" {
		c.Output.BrandsFile = brands
	}
	if noLLM, ok := flags["no-llm"].(bool); ok && noLLM {
		c.LLM.Enabled = false
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igaudience.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
