// Package config reads the optional runtime configuration file and owns the
// world-known runtime discovery file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// SystemConfigPath is the default location of the runtime configuration.
const SystemConfigPath = "/etc/swarm/swarm.toml"

// Config represents the optional runtime configuration file.
type Config struct {
	Daemon     bool   `toml:"daemon"`
	Engine     string `toml:"engine"`
	AuxThreads int    `toml:"aux_threads"`

	Log   LogConfig    `toml:"log"`
	Roles []RoleConfig `toml:"role"`
}

// LogConfig controls where and how the runtime logs.
type LogConfig struct {
	File   string `toml:"file"`   // empty: stderr
	Format string `toml:"format"` // "text" or "json"
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
}

// RoleConfig declares one role to spawn at startup.
type RoleConfig struct {
	Name  string `toml:"name"`
	Count int    `toml:"count"`
	User  string `toml:"user"`  // empty: keep the spawning identity
	Group string `toml:"group"` // empty: the user's primary group
}

// Load reads the configuration from path, or from SystemConfigPath when
// path is empty. A missing file at the default path is not an error; an
// explicitly named file must exist.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = SystemConfigPath
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			cfg.applyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.AuxThreads == 0 {
		c.AuxThreads = 4
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	for i := range c.Roles {
		if c.Roles[i].Count == 0 {
			c.Roles[i].Count = 1
		}
	}
}

func (c *Config) validate() error {
	if c.AuxThreads < 1 {
		return fmt.Errorf("aux_threads must be positive, got %d", c.AuxThreads)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	for _, r := range c.Roles {
		if r.Name == "" {
			return errors.New("role missing name")
		}
		if r.Count < 1 {
			return fmt.Errorf("role %q: count must be positive, got %d", r.Name, r.Count)
		}
		if r.User == "" && r.Group != "" {
			return fmt.Errorf("role %q: group set without user", r.Name)
		}
	}
	return nil
}
