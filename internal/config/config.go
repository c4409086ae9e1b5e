// Package config assembles runtime settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/browser"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/snapshot"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/stabilize"
)

const (
	ModeLaunch = "launch"
	ModeAttach = "attach"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Browser        BrowserConfig           `yaml:"browser"`
	Snapshot       SnapshotConfig          `yaml:"snapshot"`
	Extract        snapshot.ExtractOptions `yaml:"extract"`
	Stabilize      stabilize.Options       `yaml:"stabilize"`
	NetworkIdle    browser.IdleOptions     `yaml:"network_idle"`
	Store          StoreConfig             `yaml:"store"`
	Log            LogConfig               `yaml:"log"`
	Metrics        MetricsConfig           `yaml:"metrics"`
	MaxActionables int                     `yaml:"max_actionables"`
}

type BrowserConfig struct {
	Mode         string        `yaml:"mode"`
	Headless     bool          `yaml:"headless"`
	DebuggerURL  string        `yaml:"debugger_url"`
	StorageState string        `yaml:"storage_state"`
	NavTimeout   time.Duration `yaml:"nav_timeout"`
}

type SnapshotConfig struct {
	// Depth <= 0 means the maximum supported depth.
	Depth  int  `yaml:"depth"`
	Pierce bool `yaml:"pierce"`
}

type StoreConfig struct {
	Backend       string        `yaml:"backend"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	KeyPrefix     string        `yaml:"key_prefix"`
	TTL           time.Duration `yaml:"ttl"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	// Addr is where /metrics is served; empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Browser: BrowserConfig{
			Mode:        ModeLaunch,
			DebuggerURL: "http://127.0.0.1:9222",
			NavTimeout:  30 * time.Second,
		},
		Snapshot:    SnapshotConfig{Depth: -1, Pierce: true},
		Stabilize:   stabilize.DefaultOptions(),
		NetworkIdle: browser.IdleOptions{Quiet: browser.DefaultIdleQuiet, Timeout: browser.DefaultIdleTimeout},
		Store: StoreConfig{
			Backend:   BackendMemory,
			RedisAddr: "127.0.0.1:6379",
			KeyPrefix: "snapshot:page",
			TTL:       30 * time.Minute,
		},
		Log:            LogConfig{Level: "info"},
		MaxActionables: 25,
		Extract:        snapshot.DefaultExtractOptions(),
	}
}

// Load reads .env (if present), overlays the YAML file at path (if non-empty)
// and then the environment, and validates the result.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Browser.Mode = envOrDefault("BROWSER_MODE", c.Browser.Mode)
	c.Browser.Headless = boolOrDefault("AGENT_HEADLESS", c.Browser.Headless)
	c.Browser.DebuggerURL = envOrDefault("CDP_URL", c.Browser.DebuggerURL)
	c.Browser.StorageState = envOrDefault("STORAGE_STATE", c.Browser.StorageState)
	c.Browser.NavTimeout = durationOrDefault("NAV_TIMEOUT", c.Browser.NavTimeout)

	c.Snapshot.Depth = intOrDefault("SNAPSHOT_DEPTH", c.Snapshot.Depth)
	c.Snapshot.Pierce = boolOrDefault("SNAPSHOT_PIERCE", c.Snapshot.Pierce)
	c.Extract.IncludeValues = boolOrDefault("SNAPSHOT_INCLUDE_VALUES", c.Extract.IncludeValues)
	c.Extract.RedactPasswords = boolOrDefault("SNAPSHOT_REDACT_PASSWORDS", c.Extract.RedactPasswords)
	c.Extract.SanitizeURLs = boolOrDefault("SNAPSHOT_SANITIZE_URLS", c.Extract.SanitizeURLs)

	c.Stabilize.Quiet = durationOrDefault("STABILIZE_QUIET", c.Stabilize.Quiet)
	c.Stabilize.Timeout = durationOrDefault("STABILIZE_TIMEOUT", c.Stabilize.Timeout)
	c.NetworkIdle.Quiet = durationOrDefault("NETWORK_IDLE_QUIET", c.NetworkIdle.Quiet)
	c.NetworkIdle.Timeout = durationOrDefault("NETWORK_IDLE_TIMEOUT", c.NetworkIdle.Timeout)

	c.Store.Backend = envOrDefault("STORE_BACKEND", c.Store.Backend)
	c.Store.RedisAddr = envOrDefault("REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPassword = envOrDefault("REDIS_PASSWORD", c.Store.RedisPassword)
	c.Store.RedisDB = intOrDefault("REDIS_DB", c.Store.RedisDB)
	c.Store.KeyPrefix = envOrDefault("SNAPSHOT_KEY_PREFIX", c.Store.KeyPrefix)
	c.Store.TTL = durationOrDefault("SNAPSHOT_TTL", c.Store.TTL)

	c.Log.Level = envOrDefault("LOG_LEVEL", c.Log.Level)
	c.Metrics.Addr = envOrDefault("METRICS_ADDR", c.Metrics.Addr)
	c.MaxActionables = intOrDefault("MAX_ACTIONABLES", c.MaxActionables)
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Browser.Mode {
	case ModeLaunch:
	case ModeAttach:
		if strings.TrimSpace(c.Browser.DebuggerURL) == "" {
			errs = append(errs, errors.New("browser.debugger_url is required in attach mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("browser.mode must be %q or %q, got %q", ModeLaunch, ModeAttach, c.Browser.Mode))
	}
	if c.Browser.NavTimeout <= 0 {
		errs = append(errs, fmt.Errorf("browser.nav_timeout must be positive, got %s", c.Browser.NavTimeout))
	}
	if err := c.Stabilize.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.NetworkIdle.Quiet < 0 || c.NetworkIdle.Timeout < 0 {
		errs = append(errs, errors.New("network_idle durations must not be negative"))
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			errs = append(errs, errors.New("store.redis_addr is required for the redis backend"))
		}
		if c.Store.TTL <= 0 {
			errs = append(errs, fmt.Errorf("store.ttl must be positive, got %s", c.Store.TTL))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be %q or %q, got %q", BackendMemory, BackendRedis, c.Store.Backend))
	}
	if c.MaxActionables < 0 {
		errs = append(errs, fmt.Errorf("max_actionables must not be negative, got %d", c.MaxActionables))
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// SnapshotOptions converts the snapshot settings for the compiler.
func (c Config) SnapshotOptions() snapshot.Options {
	return snapshot.Options{Depth: c.Snapshot.Depth, Pierce: c.Snapshot.Pierce, Extract: c.Extract}
}

// LaunchOptions converts the browser settings for a playwright launch.
func (c Config) LaunchOptions() browser.LaunchOptions {
	return browser.LaunchOptions{Headless: c.Browser.Headless, NavTimeout: c.Browser.NavTimeout}
}

// LogLevel returns the configured level, defaulting to info.
func (c Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func intOrDefault(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func boolOrDefault(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
