// Package config loads the optional runner configuration file. The
// file is YAML, validated against an embedded JSON schema before it is
// decoded, so typos and wrong types fail with a schema error instead of
// silently selecting defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where a suite binary looks for its configuration when
// no --config flag is given.
const DefaultPath = ".crucible.yaml"

// Config mirrors the configuration file. Durations are kept as strings
// so the schema can constrain their shape; use the *Duration accessors.
type Config struct {
	// DefaultTimeout is the per-test deadline for tests that declare
	// none, as a Go duration string (e.g. "600s", "2m30s").
	DefaultTimeout string `yaml:"default_timeout"`
	// PollInterval is the timeout monitor's completion-check interval.
	PollInterval string `yaml:"poll_interval"`
	// Color forces the result stream's ANSI coloring on or off. When
	// absent, coloring follows terminal detection.
	Color *bool `yaml:"color"`
	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`
}

// Load reads, validates and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse validates raw YAML against the embedded schema and decodes it.
func Parse(data []byte) (*Config, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// TimeoutDuration returns the configured default timeout, or zero when
// absent.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	return parseDuration("default_timeout", c.DefaultTimeout)
}

// PollIntervalDuration returns the configured poll interval, or zero
// when absent.
func (c *Config) PollIntervalDuration() (time.Duration, error) {
	return parseDuration("poll_interval", c.PollInterval)
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %s", field, value)
	}
	return d, nil
}
