// Package config loads the wasmlator settings file.
package config

import (
	"fmt"
	"os"

	"github.com/BjoernBoss/wasmlator-sub001/gen"
	"github.com/pelletier/go-toml/v2"
)

const FileName = "wasmlator.toml"

type Config struct {
	Translate gen.Config      `toml:"translate"`
	Log       LogConfig       `toml:"log"`
	Mapping   MappingConfig   `toml:"mapping"`
	Output    OutputConfig    `toml:"output"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type LogConfig struct {
	Level string `toml:"level"`
	// Modules is a comma separated list passed to log.EnableModules.
	Modules string `toml:"modules"`
}

type MappingConfig struct {
	// Path of the leveldb directory; empty keeps the mapping in memory.
	Path string `toml:"path"`
}

type OutputConfig struct {
	Dir string `toml:"dir"`
	Wat bool   `toml:"wat"`
}

type TelemetryConfig struct {
	// Endpoint of an OTLP/HTTP collector, tracing is off when empty.
	Endpoint string `toml:"endpoint"`
}

func Default() *Config {
	return &Config{
		Translate: gen.DefaultConfig(),
		Log:       LogConfig{Level: "info"},
		Output:    OutputConfig{Dir: "."},
	}
}

// LoadConfig reads path on top of the defaults. Keys missing from the
// file keep their default value.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// Save writes the configuration as TOML.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
