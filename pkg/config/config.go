// Package config loads service configuration from an optional YAML file,
// environment variables and defaults.
//
// Precedence (highest to lowest):
//  1. Environment variables (APP_HOST, APP_PORT, DATABASE_URL, ...)
//  2. Configuration file
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the fileholder service configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Database configures the metadata store.
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// Storage configures the blob directory and its session behavior.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Metrics controls the Prometheus /metrics endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Debug lowers the log level to DEBUG regardless of Logging.Level.
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the bind address. Default: 0.0.0.0 (APP_HOST)
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the listen port. Default: 8000 (APP_PORT)
	Port int `mapstructure:"port" validate:"min=1,max=65535" yaml:"port"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is "text" or "json".
	Format string `mapstructure:"format" validate:"oneof=text json" yaml:"format"`

	// Output is "stdout", "stderr" or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// DatabaseConfig configures the metadata database.
type DatabaseConfig struct {
	// URL is a PostgreSQL connection URL (DATABASE_URL). When empty the
	// service falls back to a local SQLite file.
	URL string `mapstructure:"url" yaml:"url,omitempty"`

	// SQLitePath is the SQLite fallback database file.
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path,omitempty"`

	// Retries is the number of startup connection attempts (DB_RETRIES).
	Retries int `mapstructure:"retries" validate:"min=1" yaml:"retries"`

	// RetryDelaySeconds is the pause between attempts (DB_RETRY_DELAY).
	RetryDelaySeconds float64 `mapstructure:"retry_delay" validate:"gte=0" yaml:"retry_delay"`
}

// RetryDelay returns the retry delay as a duration.
func (c DatabaseConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds * float64(time.Second))
}

// StorageConfig configures the blob directory.
type StorageConfig struct {
	// Path is the blob storage directory (FILE_STORAGE_PATH).
	Path string `mapstructure:"path" validate:"required" yaml:"path"`

	// PendingPrefix marks staging files (PENDING_FILE_PREFIX).
	PendingPrefix string `mapstructure:"pending_prefix" yaml:"pending_prefix"`

	// LockTimeoutSeconds bounds blob lock acquisition (LOCK_TIMEOUT).
	LockTimeoutSeconds float64 `mapstructure:"lock_timeout" validate:"gt=0" yaml:"lock_timeout"`
}

// LockTimeout returns the lock timeout as a duration.
func (c StorageConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSeconds * float64(time.Second))
}

// MetricsConfig controls Prometheus exposition.
type MetricsConfig struct {
	// Enabled controls whether /metrics is served. Unset means enabled.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled,omitempty"`
}

// IsEnabled reports whether /metrics should be served. Defaults to true
// when the key is absent.
func (c MetricsConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// envBindings maps config keys to the environment variables the service
// documents. Explicit bindings keep the names stable regardless of the
// viper key layout.
var envBindings = map[string]string{
	"server.host":            "APP_HOST",
	"server.port":            "APP_PORT",
	"database.url":           "DATABASE_URL",
	"database.retries":       "DB_RETRIES",
	"database.retry_delay":   "DB_RETRY_DELAY",
	"storage.path":           "FILE_STORAGE_PATH",
	"storage.pending_prefix": "PENDING_FILE_PREFIX",
	"storage.lock_timeout":   "LOCK_TIMEOUT",
	"debug":                  "DEBUG",
}

// Load loads configuration from the optional file at configPath, the
// environment and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	for key, env := range envBindings {
		// BindEnv only errors on empty arguments.
		_ = v.BindEnv(key, env)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills in missing configuration with default values. Zero
// values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Debug {
		cfg.Logging.Level = "DEBUG"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Database.SQLitePath == "" && cfg.Database.URL == "" {
		cfg.Database.SQLitePath = "fileholder.db"
	}
	if cfg.Database.Retries == 0 {
		cfg.Database.Retries = 5
	}
	if cfg.Database.RetryDelaySeconds == 0 {
		cfg.Database.RetryDelaySeconds = 2
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "./uploads"
	}
	if cfg.Storage.PendingPrefix == "" {
		cfg.Storage.PendingPrefix = "pending_"
	}
	if cfg.Storage.LockTimeoutSeconds == 0 {
		cfg.Storage.LockTimeoutSeconds = 10.0
	}
}

// Validate checks the configuration against its struct tags.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// Save writes the configuration to path in YAML form.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
