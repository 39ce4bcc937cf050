// Package config loads the teamadmin configuration from a YAML file and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/teamadmin/pkg/cache"
	"github.com/Sternrassler/teamadmin/pkg/client"
	"github.com/Sternrassler/teamadmin/pkg/logging"
	"github.com/Sternrassler/teamadmin/pkg/progress"
	"github.com/Sternrassler/teamadmin/pkg/team"
)

// Environment variables that override file settings.
const (
	EnvToken       = "TEAMADMIN_TOKEN"
	EnvBaseURL     = "TEAMADMIN_BASE_URL"
	EnvContentURL  = "TEAMADMIN_CONTENT_URL"
	EnvUserAgent   = "TEAMADMIN_USER_AGENT"
	EnvRedisAddr   = "TEAMADMIN_REDIS_ADDR"
	EnvLogLevel    = "TEAMADMIN_LOG_LEVEL"
	EnvMetricsAddr = "TEAMADMIN_METRICS_ADDR"
	EnvOutputDir   = "TEAMADMIN_OUTPUT_DIR"
	EnvConcurrency = "TEAMADMIN_CONCURRENCY"
)

// DefaultUserAgent identifies teamadmin to the provider.
const DefaultUserAgent = "teamadmin/0.1.0"

// Config is the application configuration.
type Config struct {
	API         APIConfig         `yaml:"api"`
	Redis       RedisConfig       `yaml:"redis"`
	Cache       CacheConfig       `yaml:"cache"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`

	// OutputDir is where exports and dumps are written unless a command names a path.
	OutputDir string `yaml:"output_dir"`
}

// APIConfig configures the team API client.
type APIConfig struct {
	BaseURL           string        `yaml:"base_url"`
	ContentURL        string        `yaml:"content_url"`
	Token             string        `yaml:"token"`
	UserAgent         string        `yaml:"user_agent"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
}

// RedisConfig configures the optional Redis backend. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig configures the metadata cache.
type CacheConfig struct {
	MemorySize int           `yaml:"memory_size"`
	MemoryTTL  time.Duration `yaml:"memory_ttl"`
	// MetadataTTL is how long Paper metadata stays cached. 0 disables caching.
	MetadataTTL time.Duration `yaml:"metadata_ttl"`
}

// AggregationConfig tunes listing runs.
type AggregationConfig struct {
	PageLimit        int           `yaml:"page_limit"`
	Concurrency      int           `yaml:"concurrency"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
	ProgressEvery    int           `yaml:"progress_every"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig configures the metrics listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	cc := client.DefaultConfig("", DefaultUserAgent)
	sc := team.DefaultServiceConfig()
	mc := cache.DefaultConfig()

	return Config{
		API: APIConfig{
			BaseURL:           cc.BaseURL,
			ContentURL:        cc.ContentURL,
			UserAgent:         cc.UserAgent,
			RequestsPerSecond: cc.RequestsPerSecond,
			Timeout:           cc.RequestTimeout,
			MaxRetries:        cc.MaxRetries,
			InitialBackoff:    cc.InitialBackoff,
			MaxBackoff:        cc.MaxBackoff,
		},
		Cache: CacheConfig{
			MemorySize:  mc.MemorySize,
			MemoryTTL:   mc.MemoryTTL,
			MetadataTTL: sc.MetadataTTL,
		},
		Aggregation: AggregationConfig{
			PageLimit:        sc.PageLimit,
			Concurrency:      sc.Concurrency,
			CallTimeout:      sc.CallTimeout,
			ProgressEvery:    sc.Progress.Every,
			ProgressInterval: sc.Progress.Interval,
		},
		Logging:   LoggingConfig{Level: string(logging.LevelInfo)},
		OutputDir: ".",
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode strictly decodes YAML data over cfg. Unknown keys are errors.
func Decode(data []byte, cfg *Config) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// ApplyEnv overrides settings from the environment through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str(EnvToken, &c.API.Token)
	str(EnvBaseURL, &c.API.BaseURL)
	str(EnvContentURL, &c.API.ContentURL)
	str(EnvUserAgent, &c.API.UserAgent)
	str(EnvRedisAddr, &c.Redis.Addr)
	str(EnvLogLevel, &c.Logging.Level)
	str(EnvMetricsAddr, &c.Metrics.Addr)
	str(EnvOutputDir, &c.OutputDir)

	if v, ok := lookup(EnvConcurrency); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvConcurrency, err)
		}
		c.Aggregation.Concurrency = n
	}
	return nil
}

// Validate checks the configuration. The token is checked separately by
// RequireToken since not every command calls the API.
func (c Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.API.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("api.requests_per_second must be >= 0 (got %v)", c.API.RequestsPerSecond))
	}
	if c.API.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("api.max_retries must be >= 0 (got %d)", c.API.MaxRetries))
	}
	if c.Aggregation.PageLimit < 1 || c.Aggregation.PageLimit > 1000 {
		errs = append(errs, fmt.Errorf("aggregation.page_limit must be in [1, 1000] (got %d)", c.Aggregation.PageLimit))
	}
	if c.Aggregation.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("aggregation.concurrency must be >= 1 (got %d)", c.Aggregation.Concurrency))
	}
	if c.Cache.MemorySize < 0 {
		errs = append(errs, fmt.Errorf("cache.memory_size must be >= 0 (got %d)", c.Cache.MemorySize))
	}
	if !logging.LogLevel(c.Logging.Level).Valid() {
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error, disabled", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// RequireToken reports a missing access token.
func (c Config) RequireToken() error {
	if c.API.Token == "" {
		return fmt.Errorf("access token is required (--token or %s)", EnvToken)
	}
	return nil
}

// ClientConfig returns the API client configuration.
func (c Config) ClientConfig() client.Config {
	cc := client.DefaultConfig(c.API.Token, c.API.UserAgent)
	cc.BaseURL = c.API.BaseURL
	cc.ContentURL = c.API.ContentURL
	cc.RequestsPerSecond = c.API.RequestsPerSecond
	cc.RequestTimeout = c.API.Timeout
	cc.MaxRetries = c.API.MaxRetries
	cc.InitialBackoff = c.API.InitialBackoff
	cc.MaxBackoff = c.API.MaxBackoff
	return cc
}

// ServiceConfig returns the team service configuration.
func (c Config) ServiceConfig() team.ServiceConfig {
	return team.ServiceConfig{
		PageLimit:   c.Aggregation.PageLimit,
		Concurrency: c.Aggregation.Concurrency,
		CallTimeout: c.Aggregation.CallTimeout,
		MetadataTTL: c.Cache.MetadataTTL,
		Progress: progress.Config{
			Every:    c.Aggregation.ProgressEvery,
			Interval: c.Aggregation.ProgressInterval,
		},
	}
}

// CacheConfig returns the cache manager configuration.
func (c Config) CacheConfig() cache.Config {
	return cache.Config{
		MemorySize: c.Cache.MemorySize,
		MemoryTTL:  c.Cache.MemoryTTL,
	}
}

// LoggingConfig returns the logger configuration.
func (c Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	if c.Logging.Level != "" {
		lc.Level = logging.LogLevel(strings.ToLower(c.Logging.Level))
	}
	lc.Pretty = c.Logging.Pretty
	return lc
}
