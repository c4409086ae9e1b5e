package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 100*time.Millisecond, cfg.Stabilize.Quiet)
	assert.Equal(t, 2*time.Second, cfg.Stabilize.Timeout)
	assert.True(t, cfg.Extract.RedactPasswords)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := writeFile(t, `
browser:
  mode: attach
  debugger_url: http://10.0.0.5:9222
stabilize:
  quiet: 250ms
  timeout: 3s
store:
  backend: redis
  redis_addr: cache:6379
  ttl: 1h
extract:
  include_values: true
  redact_passwords: true
  sanitize_urls: false
max_actionables: 10
log:
  level: debug
`)
	t.Setenv("MAX_ACTIONABLES", "40")
	t.Setenv("SNAPSHOT_TTL", "10m")
	t.Setenv("AGENT_HEADLESS", "yes")
	t.Setenv("STABILIZE_QUIET", "not-a-duration")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeAttach, cfg.Browser.Mode)
	assert.Equal(t, "http://10.0.0.5:9222", cfg.Browser.DebuggerURL)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 250*time.Millisecond, cfg.Stabilize.Quiet, "unparsable env keeps the file value")
	assert.Equal(t, 3*time.Second, cfg.Stabilize.Timeout)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "cache:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 10*time.Minute, cfg.Store.TTL, "env wins over the file")
	assert.Equal(t, 40, cfg.MaxActionables)
	assert.True(t, cfg.Extract.IncludeValues)
	assert.False(t, cfg.Extract.SanitizeURLs)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel())

	opts := cfg.SnapshotOptions()
	assert.Equal(t, -1, opts.Depth)
	assert.True(t, opts.Pierce)
	assert.True(t, opts.Extract.IncludeValues)
	assert.True(t, cfg.LaunchOptions().Headless)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")

	_, err = Load(writeFile(t, "browser: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")

	t.Setenv("STABILIZE_QUIET", "5s")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds timeout")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Browser.Mode = "remote" }, `browser.mode must be "launch" or "attach"`},
		{"attach without url", func(c *Config) { c.Browser.Mode = ModeAttach; c.Browser.DebuggerURL = " " }, "debugger_url is required"},
		{"nav timeout", func(c *Config) { c.Browser.NavTimeout = 0 }, "nav_timeout must be positive"},
		{"quiet", func(c *Config) { c.Stabilize.Quiet = 0 }, "quiet window must be positive"},
		{"idle", func(c *Config) { c.NetworkIdle.Timeout = -time.Second }, "network_idle"},
		{"backend", func(c *Config) { c.Store.Backend = "etcd" }, "store.backend"},
		{"redis addr", func(c *Config) { c.Store.Backend = BackendRedis; c.Store.RedisAddr = "" }, "redis_addr is required"},
		{"redis ttl", func(c *Config) { c.Store.Backend = BackendRedis; c.Store.TTL = 0 }, "store.ttl must be positive"},
		{"actionables", func(c *Config) { c.MaxActionables = -1 }, "max_actionables"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CFG_BOOL", "off")
	t.Setenv("CFG_INT", "x")
	t.Setenv("CFG_STR", "  value ")
	assert.False(t, boolOrDefault("CFG_BOOL", true))
	assert.True(t, boolOrDefault("CFG_UNSET", true))
	assert.Equal(t, 7, intOrDefault("CFG_INT", 7))
	assert.Equal(t, "value", envOrDefault("CFG_STR", "fallback"))
	assert.Equal(t, time.Second, durationOrDefault("CFG_UNSET", time.Second))
}
