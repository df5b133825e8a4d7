// Package config manages application configuration.
//
// Priority: environment variables > config file > defaults. The config file
// is YAML and optional; credentials are only ever read from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse naturally.
type Duration time.Duration

// UnmarshalYAML parses a duration string or a bare number of seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got %v", node.Kind)
	}
	raw := node.Value
	if secs, err := strconv.Atoi(raw); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ResourceConfig describes one rate- and quota-tracked service endpoint.
type ResourceConfig struct {
	ID             string   `yaml:"id"`
	Capacity       int      `yaml:"capacity"`
	RefillInterval Duration `yaml:"refill_interval"`
	DailyQuota     int      `yaml:"daily_quota"`
	DefaultCost    int      `yaml:"default_cost"`
}

// PlatformConfig describes one publish target.
type PlatformConfig struct {
	Name        string   `yaml:"name"`
	Style       string   `yaml:"style"`
	AspectRatio string   `yaml:"aspect_ratio"`
	MaxDuration Duration `yaml:"max_duration"`
	Resolution  string   `yaml:"resolution"`
	FPS         int      `yaml:"fps"`
	Tags        []string `yaml:"tags"`
}

// RetryConfig bounds per-request retries.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	CapDelay    Duration `yaml:"cap_delay"`
}

// BreakerConfig tunes the per-resource circuit breaker.
type BreakerConfig struct {
	WindowSize       int      `yaml:"window_size"`
	MinSamples       int      `yaml:"min_samples"`
	FailureThreshold float64  `yaml:"failure_threshold"`
	Cooldown         Duration `yaml:"cooldown"`
}

// EndpointsConfig holds the base URLs of the collaborator services.
type EndpointsConfig struct {
	Trend      string `yaml:"trend"`
	Generation string `yaml:"generation"`
	Render     string `yaml:"render"`
	Publish    string `yaml:"publish"`
}

// CredentialsConfig holds API tokens. Never read from the config file;
// populated exclusively from the environment.
type CredentialsConfig struct {
	Trend      string `yaml:"-"`
	Generation string `yaml:"-"`
	Render     string `yaml:"-"`
	Publish    string `yaml:"-"`
}

// Config holds all application configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// Pipeline settings
	Platforms  []PlatformConfig `yaml:"platforms"`
	WindowDays int              `yaml:"window_days"`
	RunTimeout Duration         `yaml:"run_timeout"`
	MinViews   int64            `yaml:"min_views"`

	// Admission settings
	Resources   []ResourceConfig `yaml:"resources"`
	MaxInFlight int              `yaml:"max_in_flight"`
	Retry       RetryConfig      `yaml:"retry"`
	Breaker     BreakerConfig    `yaml:"breaker"`

	// Cache settings
	CacheEntries int      `yaml:"cache_entries"`
	CacheTTL     Duration `yaml:"cache_ttl"`

	// Report archive
	ArchivePath    string `yaml:"archive_path"`
	ArchiveHistory int    `yaml:"archive_history"`

	// Live service wiring
	Endpoints   EndpointsConfig   `yaml:"endpoints"`
	Credentials CredentialsConfig `yaml:"-"`
}

// DefaultConfig returns configuration with safe defaults. Resource limits
// follow the cost model of the upstream services: trend lookups are cheap,
// script generation and publishing carry heavy per-call costs against a
// shared daily unit budget.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:   "info",
		WindowDays: 7,
		RunTimeout: Duration(15 * time.Minute),
		MinViews:   1000,
		Platforms: []PlatformConfig{
			{
				Name:        "youtube-shorts",
				Style:       "fast-cut vertical short",
				AspectRatio: "9:16",
				MaxDuration: Duration(60 * time.Second),
				Resolution:  "1080x1920",
				FPS:         30,
				Tags:        []string{"shorts", "trending"},
			},
			{
				Name:        "tiktok",
				Style:       "fast-cut vertical short",
				AspectRatio: "9:16",
				MaxDuration: Duration(60 * time.Second),
				Resolution:  "1080x1920",
				FPS:         30,
				Tags:        []string{"fyp", "trending"},
			},
		},
		Resources: []ResourceConfig{
			{ID: "trend-api", Capacity: 10, RefillInterval: Duration(time.Minute), DailyQuota: 10000, DefaultCost: 100},
			{ID: "generation-api", Capacity: 5, RefillInterval: Duration(time.Minute), DailyQuota: 200, DefaultCost: 10},
			{ID: "render-api", Capacity: 2, RefillInterval: Duration(time.Minute), DailyQuota: 50, DefaultCost: 1},
			{ID: "publish-api", Capacity: 2, RefillInterval: Duration(time.Minute), DailyQuota: 6, DefaultCost: 1},
		},
		MaxInFlight: 4,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   Duration(time.Second),
			CapDelay:    Duration(30 * time.Second),
		},
		Breaker: BreakerConfig{
			WindowSize:       10,
			MinSamples:       5,
			FailureThreshold: 0.5,
			Cooldown:         Duration(30 * time.Second),
		},
		CacheEntries:   256,
		CacheTTL:       Duration(24 * time.Hour),
		ArchivePath:    "trendcast-reports.json",
		ArchiveHistory: 50,
	}
}

// Load loads configuration from the given path (empty means the default
// search paths), applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(path); err != nil {
		if path != "" || !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads YAML config from path, or from trendcast.yaml in the
// current directory or ~/.config/trendcast/ when path is empty.
func (c *Config) loadFromFile(path string) error {
	paths := []string{path}
	if path == "" {
		paths = []string{
			"trendcast.yaml",
			filepath.Join(os.Getenv("HOME"), ".config", "trendcast", "trendcast.yaml"),
		}
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if path == "" && os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		return nil
	}

	return os.ErrNotExist
}

// loadFromEnv overrides config with environment variables. Credentials come
// only from here.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("TRENDCAST_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TRENDCAST_WINDOW_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WindowDays = n
		}
	}
	if v := os.Getenv("TRENDCAST_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RunTimeout = Duration(d)
		}
	}
	if v := os.Getenv("TRENDCAST_MIN_VIEWS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MinViews = n
		}
	}
	if v := os.Getenv("TRENDCAST_MAX_IN_FLIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxInFlight = n
		}
	}
	if v := os.Getenv("TRENDCAST_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("TRENDCAST_ARCHIVE_PATH"); v != "" {
		c.ArchivePath = v
	}

	if v := os.Getenv("TRENDCAST_TREND_ENDPOINT"); v != "" {
		c.Endpoints.Trend = v
	}
	if v := os.Getenv("TRENDCAST_GENERATION_ENDPOINT"); v != "" {
		c.Endpoints.Generation = v
	}
	if v := os.Getenv("TRENDCAST_RENDER_ENDPOINT"); v != "" {
		c.Endpoints.Render = v
	}
	if v := os.Getenv("TRENDCAST_PUBLISH_ENDPOINT"); v != "" {
		c.Endpoints.Publish = v
	}

	c.Credentials.Trend = os.Getenv("TRENDCAST_TREND_TOKEN")
	c.Credentials.Generation = os.Getenv("TRENDCAST_GENERATION_TOKEN")
	c.Credentials.Render = os.Getenv("TRENDCAST_RENDER_TOKEN")
	c.Credentials.Publish = os.Getenv("TRENDCAST_PUBLISH_TOKEN")
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if len(c.Platforms) == 0 {
		return fmt.Errorf("at least one platform must be configured")
	}
	seen := make(map[string]bool, len(c.Platforms))
	for _, p := range c.Platforms {
		if p.Name == "" {
			return fmt.Errorf("platform with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate platform %q", p.Name)
		}
		seen[p.Name] = true
		if p.MaxDuration <= 0 {
			return fmt.Errorf("platform %q: max_duration must be positive", p.Name)
		}
	}

	if len(c.Resources) == 0 {
		return fmt.Errorf("at least one resource must be configured")
	}
	for _, r := range c.Resources {
		if r.ID == "" {
			return fmt.Errorf("resource with empty id")
		}
		if r.Capacity <= 0 {
			return fmt.Errorf("resource %q: capacity must be positive", r.ID)
		}
		if r.RefillInterval <= 0 {
			return fmt.Errorf("resource %q: refill_interval must be positive", r.ID)
		}
		if r.DailyQuota < 0 {
			return fmt.Errorf("resource %q: daily_quota must be non-negative", r.ID)
		}
	}

	if c.WindowDays <= 0 {
		return fmt.Errorf("window_days must be positive")
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("run_timeout must be non-negative")
	}
	if c.MaxInFlight <= 0 {
		return fmt.Errorf("max_in_flight must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive")
	}
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry.base_delay must be positive")
	}
	if c.Retry.CapDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.cap_delay must be >= retry.base_delay")
	}
	if c.Breaker.FailureThreshold <= 0 || c.Breaker.FailureThreshold > 1 {
		return fmt.Errorf("breaker.failure_threshold must be in (0, 1]")
	}
	if c.CacheEntries <= 0 {
		return fmt.Errorf("cache_entries must be positive")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive")
	}
	return nil
}

// PlatformNames returns the configured platform names in order.
func (c *Config) PlatformNames() []string {
	names := make([]string, 0, len(c.Platforms))
	for _, p := range c.Platforms {
		names = append(names, p.Name)
	}
	return names
}
