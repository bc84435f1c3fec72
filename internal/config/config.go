// Package config handles loading and validating the server's configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the server.
// Struct tags map TOML keys to fields explicitly.
type Config struct {
	Listen     string `toml:"listen"`
	StaticDir  string `toml:"static_dir"`
	DataDir    string `toml:"data_dir"`
	DumpFormat string `toml:"dump_format"` // json, bolt or sqlite

	// ListTimeout caps how long a single /list call may wait for a change.
	ListTimeout time.Duration `toml:"list_timeout"`
	BodyLimit   int64         `toml:"body_limit"`

	// Room creations allowed per second per client address; 0 disables the limit.
	CreateRate  float64 `toml:"create_rate"`
	CreateBurst int     `toml:"create_burst"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // text or json
	LogFile   string `toml:"log_file"`

	MetricsInterval time.Duration `toml:"metrics_interval"`
}

// New returns a new Config with default values.
func New() *Config {
	return &Config{
		DumpFormat:      "json",
		ListTimeout:     45 * time.Second,
		BodyLimit:       1 << 20,
		CreateRate:      0,
		CreateBurst:     10,
		LogLevel:        "info",
		LogFormat:       "text",
		MetricsInterval: 10 * time.Second,
	}
}

// Load reads a configuration file from the given path and populates the Config struct.
// Keys absent from the file keep their current values.
func (c *Config) Load(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown config keys: %v", undecoded)
	}
	return nil
}

// Validate reports the first missing or out-of-range setting.
func (c *Config) Validate() error {
	switch {
	case c.Listen == "":
		return errors.New("listen address is required")
	case c.StaticDir == "":
		return errors.New("static directory is required")
	case c.DataDir == "":
		return errors.New("data directory is required")
	case c.ListTimeout <= 0:
		return fmt.Errorf("list_timeout must be positive, got %s", c.ListTimeout)
	case c.BodyLimit <= 0:
		return fmt.Errorf("body_limit must be positive, got %d", c.BodyLimit)
	case c.CreateRate < 0:
		return fmt.Errorf("create_rate must not be negative, got %g", c.CreateRate)
	case c.CreateRate > 0 && c.CreateBurst < 1:
		return fmt.Errorf("create_burst must be at least 1 when create_rate is set, got %d", c.CreateBurst)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	case c.MetricsInterval <= 0:
		return fmt.Errorf("metrics_interval must be positive, got %s", c.MetricsInterval)
	}
	return nil
}
