package storage

import (
	"fmt"
	"os"
)

// Config holds blob storage connection settings.
type Config struct {
	ContainerName    string `toml:"container_name"`
	ConnectionString string `toml:"connection_string"`
}

// Env names the environment variables that may override each field.
type Env struct {
	ContainerName    string
	ConnectionString string
}

const defaultContainer = "mistake-images"

// Finalize applies defaults, then environment overrides, then validates.
func (c *Config) Finalize(env *Env) error {
	if c.ContainerName == "" {
		c.ContainerName = defaultContainer
	}
	if env != nil {
		c.override(env.ContainerName, &c.ContainerName)
		c.override(env.ConnectionString, &c.ConnectionString)
	}
	return c.validate()
}

// Merge overwrites fields from overlay where the overlay value is set.
func (c *Config) Merge(overlay *Config) {
	if overlay.ContainerName != "" {
		c.ContainerName = overlay.ContainerName
	}
	if overlay.ConnectionString != "" {
		c.ConnectionString = overlay.ConnectionString
	}
}

func (c *Config) override(key string, dst *string) {
	if key == "" {
		return
	}
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) validate() error {
	if c.ContainerName == "" {
		return fmt.Errorf("container_name required")
	}
	if c.ConnectionString == "" {
		return fmt.Errorf("connection_string required")
	}
	return nil
}
