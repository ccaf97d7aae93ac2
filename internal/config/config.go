// Package config loads the service configuration: a TOML base file, an
// optional environment overlay, and TIPTORO_* environment variable
// overrides, finalized through the defaults/env/validate phases each
// sub-config implements.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/tiptoro/gateway/pkg/database"
	"github.com/tiptoro/gateway/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvAppEnv             = "TIPTORO_ENV"
	EnvAppShutdownTimeout = "TIPTORO_SHUTDOWN_TIMEOUT"
	EnvAppVersion         = "TIPTORO_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "TIPTORO_DB_HOST",
	Port:            "TIPTORO_DB_PORT",
	Name:            "TIPTORO_DB_NAME",
	User:            "TIPTORO_DB_USER",
	Password:        "TIPTORO_DB_PASSWORD",
	SSLMode:         "TIPTORO_DB_SSL_MODE",
	MaxOpenConns:    "TIPTORO_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "TIPTORO_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "TIPTORO_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "TIPTORO_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "TIPTORO_STORAGE_CONTAINER_NAME",
	ConnectionString: "TIPTORO_STORAGE_CONNECTION_STRING",
}

// Config is the root configuration for the gateway service.
type Config struct {
	Server          ServerConfig    `toml:"server"`
	Database        database.Config `toml:"database"`
	Storage         storage.Config  `toml:"storage"`
	Services        ServicesConfig  `toml:"services"`
	Pipeline        PipelineConfig  `toml:"pipeline"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Version         string          `toml:"version"`
}

// Env returns the TIPTORO_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvAppEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), layers the environment
// overlay on top, and finalizes all values. With no config.toml at all,
// defaults plus environment variables carry the full configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := readInto(cfg, BaseConfigFile); err != nil {
		return nil, err
	}

	overlayPath := fmt.Sprintf(OverlayConfigPattern, cfg.Env())
	overlay := &Config{}
	if err := readInto(overlay, overlayPath); err != nil {
		return nil, fmt.Errorf("overlay %s: %w", overlayPath, err)
	}
	cfg.Merge(overlay)

	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}
	return cfg, nil
}

// readInto parses the TOML file at path into cfg. A missing file is not
// an error; the zero config stands.
func readInto(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Services.Merge(&overlay.Services)
	c.Pipeline.Merge(&overlay.Pipeline)
}

// Finalize applies defaults, environment overrides, and validation to the
// root config and every sub-config.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Services.Finalize(); err != nil {
		return fmt.Errorf("services: %w", err)
	}
	if err := c.Pipeline.Finalize(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	envOverride(EnvAppShutdownTimeout, &c.ShutdownTimeout)
	envOverride(EnvAppVersion, &c.Version)
}

// envOverride replaces *dst with the named environment variable when set.
func envOverride(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func envOverrideInt64(key string, dst *int64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = n
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

