package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/storefront/internal/prefs"
)

// Config captures everything the storefront client needs at startup.
type Config struct {
	APIURL           string        `validate:"required,url"`
	RequestTimeout   time.Duration `validate:"gt=0"`
	PollInterval     time.Duration `validate:"gt=0"`
	ThrottleInterval time.Duration `validate:"gte=0"`
	LogFile          string        `validate:"required"`
	LogLevel         string        `validate:"oneof=debug info warn error"`
	PrefsBackend     string        `validate:"oneof=file memory redis"`
	StatePath        string
	RedisAddr        string `validate:"required_if=PrefsBackend redis"`
	RedisNamespace   string
	MetricsAddr      string
}

const (
	defaultConfigPath       = "~/.config/storefront/config.toml"
	defaultAPIURL           = "http://localhost:3000/api/v1"
	defaultLogFile          = "~/.local/state/storefront/storefront.log"
	defaultLogLevel         = "info"
	defaultPrefsBackend     = "file"
	defaultRequestTimeout   = 10 * time.Second
	defaultPollInterval     = 30 * time.Second
	defaultThrottleInterval = 500 * time.Millisecond
)

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		APIURL:           defaultAPIURL,
		RequestTimeout:   defaultRequestTimeout,
		PollInterval:     defaultPollInterval,
		ThrottleInterval: defaultThrottleInterval,
		LogFile:          mustExpand(defaultLogFile),
		LogLevel:         defaultLogLevel,
		PrefsBackend:     defaultPrefsBackend,
	}
}

// envOverrides are read with cleanenv after the file so environment wins.
type envOverrides struct {
	APIURL       string        `env:"STOREFRONT_API_URL"`
	LogLevel     string        `env:"STOREFRONT_LOG_LEVEL"`
	LogFile      string        `env:"STOREFRONT_LOG_FILE"`
	PrefsBackend string        `env:"STOREFRONT_PREFS_BACKEND"`
	RedisAddr    string        `env:"STOREFRONT_REDIS_ADDR"`
	MetricsAddr  string        `env:"STOREFRONT_METRICS_ADDR"`
	PollInterval time.Duration `env:"STOREFRONT_POLL_INTERVAL"`
}

// Load locates and parses the storefront config, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := applyFile(&cfg, resolved); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, resolved string) error {
	data, err := os.ReadFile(resolved)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		APIURL           string `toml:"api_url"`
		RequestTimeout   string `toml:"request_timeout"`
		PollInterval     string `toml:"poll_interval"`
		ThrottleInterval string `toml:"throttle_interval"`
		LogFile          string `toml:"log_file"`
		LogLevel         string `toml:"log_level"`
		Prefs            struct {
			Backend   string `toml:"backend"`
			StatePath string `toml:"state_path"`
			RedisAddr string `toml:"redis_addr"`
			Namespace string `toml:"namespace"`
		} `toml:"prefs"`
		MetricsAddr string `toml:"metrics_addr"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.APIURL); v != "" {
		cfg.APIURL = strings.TrimRight(v, "/")
	}
	durations := []struct {
		name  string
		value string
		dest  *time.Duration
	}{
		{"request_timeout", raw.RequestTimeout, &cfg.RequestTimeout},
		{"poll_interval", raw.PollInterval, &cfg.PollInterval},
		{"throttle_interval", raw.ThrottleInterval, &cfg.ThrottleInterval},
	}
	for _, d := range durations {
		v := strings.TrimSpace(d.value)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse config: %s: %w", d.name, err)
		}
		*d.dest = parsed
	}
	if v := strings.TrimSpace(raw.LogFile); v != "" {
		cfg.LogFile = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(raw.Prefs.Backend); v != "" {
		cfg.PrefsBackend = strings.ToLower(v)
	}
	if v := strings.TrimSpace(raw.Prefs.StatePath); v != "" {
		cfg.StatePath = mustExpand(v)
	}
	cfg.RedisAddr = strings.TrimSpace(raw.Prefs.RedisAddr)
	cfg.RedisNamespace = strings.TrimSpace(raw.Prefs.Namespace)
	cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	return nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := cleanenv.ReadEnv(&env); err != nil {
		return fmt.Errorf("read env: %w", err)
	}
	if env.APIURL != "" {
		cfg.APIURL = strings.TrimRight(env.APIURL, "/")
	}
	if env.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(env.LogLevel)
	}
	if env.LogFile != "" {
		cfg.LogFile = mustExpand(env.LogFile)
	}
	if env.PrefsBackend != "" {
		cfg.PrefsBackend = strings.ToLower(env.PrefsBackend)
	}
	if env.RedisAddr != "" {
		cfg.RedisAddr = env.RedisAddr
	}
	if env.MetricsAddr != "" {
		cfg.MetricsAddr = env.MetricsAddr
	}
	if env.PollInterval > 0 {
		cfg.PollInterval = env.PollInterval
	}
	return nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel maps LogLevel onto slog levels.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultConfigPath
	}
	return prefs.ExpandPath(path)
}

// mustExpand falls back to the raw path when the home directory is unknown.
func mustExpand(path string) string {
	if expanded, err := prefs.ExpandPath(path); err == nil {
		return expanded
	}
	return path
}
