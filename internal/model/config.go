package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envPrefix is prepended to every environment override, e.g.
// CRMNOTIFY_API_BASE_URL overrides api.base_url.
const envPrefix = "CRMNOTIFY"

// APIConfig holds settings for the remote notification API.
type APIConfig struct {
	// BaseURL is the root URL of the REST backend.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds every single HTTP call.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// UserID is the recipient the session acts as.
	UserID string `mapstructure:"user_id" yaml:"user_id"`

	// Token is only ever populated from the environment, never written
	// back to the file.
	Token string `mapstructure:"token" yaml:"-"`
}

// SyncConfig controls polling and paging.
type SyncConfig struct {
	PollIntervalSec     int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	PageSize            int `mapstructure:"page_size" yaml:"page_size"`
	FocusMinIntervalSec int `mapstructure:"focus_min_interval_sec" yaml:"focus_min_interval_sec"`
}

// BreakerConfig tunes the circuit breaker in front of the API.
type BreakerConfig struct {
	MaxFailures int `mapstructure:"max_failures" yaml:"max_failures"`
	CooldownSec int `mapstructure:"cooldown_sec" yaml:"cooldown_sec"`
}

// LogConfig selects the log level and destination file.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// MetricsConfig enables the prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// TracingConfig enables OTLP export when Endpoint is set.
type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Breaker BreakerConfig `mapstructure:"breaker" yaml:"breaker"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
}

// PollInterval returns the scheduler tick period.
func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollIntervalSec) * time.Second
}

// FocusMinInterval returns the minimum gap between focus refreshes.
func (c *AppConfig) FocusMinInterval() time.Duration {
	return time.Duration(c.Sync.FocusMinIntervalSec) * time.Second
}

// Timeout returns the per-request HTTP timeout.
func (c *AppConfig) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/crm-notify/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "crm-notify", "config.yaml")
}

// defaultLogPath keeps logs out of the terminal the UI draws on.
func defaultLogPath() string {
	return filepath.Join(filepath.Dir(DefaultConfigPath()), "crm-notify.log")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://localhost:8080/api",
			TimeoutSec: 15,
		},
		Sync: SyncConfig{
			PollIntervalSec:     30,
			PageSize:            20,
			FocusMinIntervalSec: 5,
		},
		Breaker: BreakerConfig{
			MaxFailures: 5,
			CooldownSec: 30,
		},
		Log: LogConfig{
			Level: "info",
			File:  defaultLogPath(),
		},
		Display: DisplayConfig{
			Theme: "default",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := defaultAppConfig()
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout_sec", d.API.TimeoutSec)
	v.SetDefault("api.user_id", "")
	v.SetDefault("api.token", "")
	v.SetDefault("sync.poll_interval_sec", d.Sync.PollIntervalSec)
	v.SetDefault("sync.page_size", d.Sync.PageSize)
	v.SetDefault("sync.focus_min_interval_sec", d.Sync.FocusMinIntervalSec)
	v.SetDefault("breaker.max_failures", d.Breaker.MaxFailures)
	v.SetDefault("breaker.cooldown_sec", d.Breaker.CooldownSec)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("display.theme", d.Display.Theme)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with CRMNOTIFY_ override file values.
// If the file does not exist, defaults plus environment are used.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		_, pathErr := err.(*os.PathError)
		if !notFound && !pathErr {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Sync.PollIntervalSec <= 0 {
		cfg.Sync.PollIntervalSec = 30
	}
	if cfg.Sync.PageSize <= 0 {
		cfg.Sync.PageSize = 20
	}
	if cfg.API.TimeoutSec <= 0 {
		cfg.API.TimeoutSec = 15
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. The API token is never written.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	api := cfg.API
	api.Token = ""
	v.Set("api", map[string]interface{}{
		"base_url":    api.BaseURL,
		"timeout_sec": api.TimeoutSec,
		"user_id":     api.UserID,
	})
	v.Set("sync", cfg.Sync)
	v.Set("breaker", cfg.Breaker)
	v.Set("log", cfg.Log)
	v.Set("metrics", cfg.Metrics)
	v.Set("tracing", cfg.Tracing)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
