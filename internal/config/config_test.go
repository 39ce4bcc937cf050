package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/teamadmin/pkg/client"
	"github.com/Sternrassler/teamadmin/pkg/logging"
	"github.com/Sternrassler/teamadmin/pkg/team"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, client.DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, client.DefaultContentURL, cfg.API.ContentURL)
	assert.Equal(t, DefaultUserAgent, cfg.API.UserAgent)
	assert.Equal(t, team.DefaultPageLimit, cfg.Aggregation.PageLimit)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Error(t, cfg.RequireToken())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teamadmin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  token: file-token
  requests_per_second: 2.5
  timeout: 10s
  max_retries: 4
redis:
  addr: localhost:6379
cache:
  metadata_ttl: 2h
aggregation:
  page_limit: 200
  concurrency: 8
  progress_every: 100
logging:
  level: debug
  pretty: true
output_dir: /tmp/exports
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "file-token", cfg.API.Token)
	assert.Equal(t, 2.5, cfg.API.RequestsPerSecond)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 4, cfg.API.MaxRetries)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Cache.MetadataTTL)
	assert.Equal(t, 200, cfg.Aggregation.PageLimit)
	assert.Equal(t, 8, cfg.Aggregation.Concurrency)
	assert.Equal(t, "/tmp/exports", cfg.OutputDir)

	// Unset keys keep their defaults.
	assert.Equal(t, client.DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, DefaultUserAgent, cfg.API.UserAgent)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  tokn: typo\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestDecode_Empty(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode([]byte("  \n"), &cfg))
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.API.Token = "file-token"

	err := cfg.ApplyEnv(env(map[string]string{
		EnvToken:       "env-token",
		EnvRedisAddr:   "redis:6379",
		EnvLogLevel:    "warn",
		EnvMetricsAddr: ":9090",
		EnvBaseURL:     "",
		EnvConcurrency: "3",
	}))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.API.Token)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, client.DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, 3, cfg.Aggregation.Concurrency)

	err = cfg.ApplyEnv(env(map[string]string{EnvConcurrency: "many"}))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty base url", func(c *Config) { c.API.BaseURL = "" }},
		{"negative rate", func(c *Config) { c.API.RequestsPerSecond = -1 }},
		{"negative retries", func(c *Config) { c.API.MaxRetries = -1 }},
		{"page limit too large", func(c *Config) { c.Aggregation.PageLimit = 5000 }},
		{"zero concurrency", func(c *Config) { c.Aggregation.Concurrency = 0 }},
		{"negative cache size", func(c *Config) { c.Cache.MemorySize = -1 }},
		{"unknown level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.API.Token = "tok"
	cfg.API.BaseURL = "http://localhost:1234"
	cfg.Aggregation.ProgressEvery = 10
	cfg.Logging.Level = "DEBUG"

	cc := cfg.ClientConfig()
	assert.Equal(t, "tok", cc.AccessToken)
	assert.Equal(t, "http://localhost:1234", cc.BaseURL)
	assert.Equal(t, cfg.API.MaxRetries, cc.MaxRetries)
	_, err := client.New(cc)
	assert.NoError(t, err)

	sc := cfg.ServiceConfig()
	assert.Equal(t, cfg.Aggregation.PageLimit, sc.PageLimit)
	assert.Equal(t, 10, sc.Progress.Every)

	assert.Equal(t, cfg.Cache.MemorySize, cfg.CacheConfig().MemorySize)

	lc := cfg.LoggingConfig()
	assert.Equal(t, logging.LevelDebug, lc.Level)
}
