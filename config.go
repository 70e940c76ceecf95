package tandang

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file/env representation of client settings. It converts to
// functional options via Options; code-level configuration should use the
// options directly.
type Config struct {
	BaseURL        string  `yaml:"base_url"`
	Locale         string  `yaml:"locale"`
	MaxRetries     int     `yaml:"max_retries"`
	BaseDelayMs    int     `yaml:"base_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms"`
	Jitter         float64 `yaml:"jitter"`
	TimeoutMs      int     `yaml:"timeout_ms"`
	MaxConcurrent  int     `yaml:"max_concurrent"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
	DisableDedup   bool    `yaml:"disable_dedup"`
	Debug          bool    `yaml:"debug"`
}

// DefaultConfig returns the defaults documented on the client.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		BaseDelayMs:   1000,
		MaxDelayMs:    30000,
		TimeoutMs:     30000,
		MaxConcurrent: 5,
	}
}

// LoadConfig reads a YAML config file, layering it over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays TANDANG_* environment variables onto the config.
// Unparseable values keep the existing setting.
func (cfg Config) ApplyEnv() Config {
	if v := envString("TANDANG_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := envString("TANDANG_LOCALE"); v != "" {
		cfg.Locale = v
	}
	cfg.MaxRetries = envIntWithFallback("TANDANG_MAX_RETRIES", cfg.MaxRetries)
	cfg.BaseDelayMs = envIntWithFallback("TANDANG_BASE_DELAY_MS", cfg.BaseDelayMs)
	cfg.MaxDelayMs = envIntWithFallback("TANDANG_MAX_DELAY_MS", cfg.MaxDelayMs)
	cfg.TimeoutMs = envIntWithFallback("TANDANG_TIMEOUT_MS", cfg.TimeoutMs)
	cfg.MaxConcurrent = envIntWithFallback("TANDANG_MAX_CONCURRENT", cfg.MaxConcurrent)
	cfg.DisableDedup = envBoolWithFallback("TANDANG_DISABLE_DEDUP", cfg.DisableDedup)
	cfg.Debug = envBoolWithFallback("TANDANG_DEBUG", cfg.Debug)
	return cfg
}

// Options converts the config into client options.
func (cfg Config) Options() []Option {
	opts := []Option{
		WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.Locale != "" {
		opts = append(opts, WithLocale(cfg.Locale))
	}
	if cfg.BaseDelayMs > 0 {
		opts = append(opts, WithBaseDelay(time.Duration(cfg.BaseDelayMs)*time.Millisecond))
	}
	if cfg.MaxDelayMs > 0 {
		opts = append(opts, WithMaxDelay(time.Duration(cfg.MaxDelayMs)*time.Millisecond))
	}
	if cfg.Jitter > 0 {
		opts = append(opts, WithJitter(cfg.Jitter))
	}
	if cfg.TimeoutMs > 0 {
		opts = append(opts, WithTimeout(time.Duration(cfg.TimeoutMs)*time.Millisecond))
	}
	if cfg.MaxConcurrent > 0 {
		opts = append(opts, WithMaxConcurrent(cfg.MaxConcurrent))
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst > 0 {
		opts = append(opts, WithRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	if cfg.DisableDedup {
		opts = append(opts, WithoutDeduplication())
	}
	if cfg.Debug {
		opts = append(opts, WithDebug())
	}
	return opts
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envIntWithFallback(key string, fallback int) int {
	raw := envString(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBoolWithFallback(key string, fallback bool) bool {
	switch strings.ToLower(envString(key)) {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
