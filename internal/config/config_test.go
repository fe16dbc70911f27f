package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIURL != defaultAPIURL {
		t.Fatalf("APIURL = %q, want %q", cfg.APIURL, defaultAPIURL)
	}
	if cfg.ThrottleInterval != 500*time.Millisecond {
		t.Fatalf("ThrottleInterval = %v, want 500ms", cfg.ThrottleInterval)
	}
	if cfg.PrefsBackend != "file" {
		t.Fatalf("PrefsBackend = %q, want file", cfg.PrefsBackend)
	}
	wantLog := filepath.Join(home, ".local", "state", "storefront", "storefront.log")
	if cfg.LogFile != wantLog {
		t.Fatalf("LogFile = %q, want %q", cfg.LogFile, wantLog)
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
api_url = "  https://shop.example.com/api/v1/  "
request_timeout = "3s"
poll_interval = "1m"
throttle_interval = "250ms"
log_file = "  ~/logs/storefront.log  "
log_level = "DEBUG"

[prefs]
backend = "redis"
redis_addr = "127.0.0.1:6379"
namespace = "kiosk-3"
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIURL != "https://shop.example.com/api/v1" {
		t.Fatalf("APIURL = %q", cfg.APIURL)
	}
	if cfg.RequestTimeout != 3*time.Second || cfg.PollInterval != time.Minute || cfg.ThrottleInterval != 250*time.Millisecond {
		t.Fatalf("durations = %v/%v/%v", cfg.RequestTimeout, cfg.PollInterval, cfg.ThrottleInterval)
	}
	if !strings.HasPrefix(cfg.LogFile, home) {
		t.Fatalf("LogFile = %q, want it under HOME %q", cfg.LogFile, home)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("SlogLevel = %v, want debug", cfg.SlogLevel())
	}
	if cfg.PrefsBackend != "redis" || cfg.RedisAddr != "127.0.0.1:6379" || cfg.RedisNamespace != "kiosk-3" {
		t.Fatalf("prefs = %q %q %q", cfg.PrefsBackend, cfg.RedisAddr, cfg.RedisNamespace)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STOREFRONT_API_URL", "http://10.0.0.5:8080/api/v1/")
	t.Setenv("STOREFRONT_POLL_INTERVAL", "5s")

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`api_url = "http://ignored:1/api"`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIURL != "http://10.0.0.5:8080/api/v1" {
		t.Fatalf("APIURL = %q, want env override", cfg.APIURL)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
}

func TestLoad_InvalidTOMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`api_url = [`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatalf("Load returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("Load error = %q, want it to mention parse config", err.Error())
	}
}

func TestLoad_BadDurationFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`poll_interval = "soon"`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "poll_interval") {
		t.Fatalf("Load error = %v, want poll_interval parse error", err)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad url", func(c *Config) { c.APIURL = "not a url" }, false},
		{"unknown backend", func(c *Config) { c.PrefsBackend = "sqlite" }, false},
		{"redis without addr", func(c *Config) { c.PrefsBackend = "redis" }, false},
		{"redis with addr", func(c *Config) { c.PrefsBackend = "redis"; c.RedisAddr = "localhost:6379" }, true},
		{"bad level", func(c *Config) { c.LogLevel = "trace" }, false},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate returned %v, want nil", err)
			}
			if !tt.ok && err == nil {
				t.Fatalf("Validate returned nil, want error")
			}
		})
	}
}
