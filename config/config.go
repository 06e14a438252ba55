// Package config holds the labwatch configuration file.
//
// Config is stored at $XDG_CONFIG_HOME/labwatch/config.yaml (defaults to
// ~/.config/labwatch/config.yaml). A missing file yields the built-in
// defaults, not an error, so a fresh install works without any setup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when the file is absent or a field is unset.
const (
	DefaultClabBinary      = "containerlab"
	DefaultIdleTimeout     = Duration(300 * time.Millisecond)
	DefaultFallbackTimeout = Duration(5 * time.Second)
	DefaultDebounce        = Duration(50 * time.Millisecond)
	DefaultPollInterval    = Duration(5 * time.Second)
)

// Duration is a time.Duration that round-trips through YAML as a string
// like "500ms". Bare integers are accepted as nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case int:
		*d = Duration(v)
		return nil
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
}

// Config describes how labwatch runs the event feed and its fallback poller.
type Config struct {
	// ClabBinary is the containerlab binary used for the event feed and
	// one-shot inspections. Resolved via PATH when not absolute.
	ClabBinary string `yaml:"clab-binary,omitempty"`
	// Lab restricts the feed to a single lab name. Empty means all labs.
	Lab string `yaml:"lab,omitempty"`
	// InterfaceStats asks the feed to include traffic counters.
	InterfaceStats bool `yaml:"interface-stats,omitempty"`

	IdleTimeout     Duration `yaml:"idle-timeout,omitempty"`
	FallbackTimeout Duration `yaml:"fallback-timeout,omitempty"`
	Debounce        Duration `yaml:"debounce,omitempty"`
	PollInterval    Duration `yaml:"poll-interval,omitempty"`

	LogLevel    string `yaml:"log-level,omitempty"`
	MetricsAddr string `yaml:"metrics-addr,omitempty"` // optional promhttp listen address
}

// Path returns the config file location. It respects XDG_CONFIG_HOME,
// falling back to ~/.config/labwatch/config.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "labwatch", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "labwatch", "config.yaml")
}

// Load reads the config file and fills unset fields with defaults.
func Load() (*Config, error) {
	return loadFile(Path())
}

func loadFile(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to disk, creating directories as needed.
func (c *Config) Save() error {
	p := Path()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ClabBinary == "" {
		c.ClabBinary = DefaultClabBinary
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.FallbackTimeout <= 0 {
		c.FallbackTimeout = DefaultFallbackTimeout
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}
