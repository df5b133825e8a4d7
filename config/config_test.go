package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trendcast.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig() is invalid: %v", err)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
log_level: debug
window_days: 3
run_timeout: 5m
min_views: 5000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.WindowDays != 3 {
		t.Errorf("WindowDays = %d, want 3", cfg.WindowDays)
	}
	if cfg.RunTimeout.Std() != 5*time.Minute {
		t.Errorf("RunTimeout = %v, want 5m", cfg.RunTimeout.Std())
	}
	if cfg.MinViews != 5000 {
		t.Errorf("MinViews = %d, want 5000", cfg.MinViews)
	}
	// Untouched sections keep their defaults.
	if len(cfg.Resources) != 4 {
		t.Errorf("Resources count = %d, want 4 defaults", len(cfg.Resources))
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "window_days: 3\n")
	t.Setenv("TRENDCAST_WINDOW_DAYS", "14")
	t.Setenv("TRENDCAST_RUN_TIMEOUT", "30s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.WindowDays != 14 {
		t.Errorf("WindowDays = %d, want env override 14", cfg.WindowDays)
	}
	if cfg.RunTimeout.Std() != 30*time.Second {
		t.Errorf("RunTimeout = %v, want 30s", cfg.RunTimeout.Std())
	}
}

func TestLoad_CredentialsFromEnvOnly(t *testing.T) {
	path := writeConfigFile(t, "log_level: info\n")
	t.Setenv("TRENDCAST_TREND_TOKEN", "tok-trend")
	t.Setenv("TRENDCAST_PUBLISH_TOKEN", "tok-publish")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Credentials.Trend != "tok-trend" {
		t.Errorf("Credentials.Trend = %q, want tok-trend", cfg.Credentials.Trend)
	}
	if cfg.Credentials.Publish != "tok-publish" {
		t.Errorf("Credentials.Publish = %q, want tok-publish", cfg.Credentials.Publish)
	}
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() with missing explicit path succeeded, want error")
	}
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	path := writeConfigFile(t, "window_days: [not an int\n")
	if _, err := Load(path); err == nil {
		t.Error("Load() with malformed YAML succeeded, want error")
	}
}

func TestDuration_UnmarshalFormats(t *testing.T) {
	tests := []struct {
		yaml string
		want time.Duration
	}{
		{"run_timeout: 30s", 30 * time.Second},
		{"run_timeout: 2m30s", 2*time.Minute + 30*time.Second},
		{"run_timeout: 90", 90 * time.Second},
	}
	for _, tt := range tests {
		path := writeConfigFile(t, tt.yaml+"\n")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%q) error: %v", tt.yaml, err)
		}
		if cfg.RunTimeout.Std() != tt.want {
			t.Errorf("Load(%q) RunTimeout = %v, want %v", tt.yaml, cfg.RunTimeout.Std(), tt.want)
		}
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no platforms", func(c *Config) { c.Platforms = nil }},
		{"duplicate platform", func(c *Config) { c.Platforms = append(c.Platforms, c.Platforms[0]) }},
		{"no resources", func(c *Config) { c.Resources = nil }},
		{"zero capacity", func(c *Config) { c.Resources[0].Capacity = 0 }},
		{"negative quota", func(c *Config) { c.Resources[0].DailyQuota = -1 }},
		{"zero window", func(c *Config) { c.WindowDays = 0 }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"cap below base", func(c *Config) { c.Retry.CapDelay = c.Retry.BaseDelay / 2 }},
		{"threshold above one", func(c *Config) { c.Breaker.FailureThreshold = 1.5 }},
		{"zero cache", func(c *Config) { c.CacheEntries = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() passed, want error")
			}
		})
	}
}

func TestPlatformNames_PreservesOrder(t *testing.T) {
	cfg := DefaultConfig()
	names := cfg.PlatformNames()
	if len(names) != 2 || names[0] != "youtube-shorts" || names[1] != "tiktok" {
		t.Errorf("PlatformNames() = %v", names)
	}
}
