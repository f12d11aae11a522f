package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Convert ConvertConfig `yaml:"convert"`
	Raster  RasterConfig  `yaml:"raster"`
	Mask    MaskConfig    `yaml:"mask"`
	Output  OutputConfig  `yaml:"output"`
}

// ConvertConfig holds configuration for batch conversion
type ConvertConfig struct {
	Workers       int    `yaml:"workers"`
	DefaultFormat string `yaml:"default_format"`
}

// RasterConfig holds configuration for mask vectorization
type RasterConfig struct {
	Tolerance float64 `yaml:"tolerance"`
}

// MaskConfig holds configuration for semantic mask rendering
type MaskConfig struct {
	Mode  string `yaml:"mode"`
	Codec string `yaml:"codec"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Convert: ConvertConfig{
			Workers:       1,
			DefaultFormat: "native",
		},
		Raster: RasterConfig{
			Tolerance: 0,
		},
		Mask: MaskConfig{
			Mode:  "index",
			Codec: "png",
		},
		Output: OutputConfig{
			Dir: "./output",
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Convert.Workers < 1 {
		return fmt.Errorf("convert.workers must be positive")
	}

	if c.Convert.DefaultFormat == "" {
		return fmt.Errorf("convert.default_format cannot be empty")
	}

	if c.Raster.Tolerance < 0 {
		return fmt.Errorf("raster.tolerance cannot be negative")
	}

	switch c.Mask.Mode {
	case "index", "grey", "rgb":
	default:
		return fmt.Errorf("mask.mode must be one of index, grey, rgb")
	}

	switch c.Mask.Codec {
	case "png", "webp":
	default:
		return fmt.Errorf("mask.codec must be png or webp")
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir cannot be empty")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./annoconv.yaml"
	}
	return filepath.Join(home, ".config", "annoconv", "config.yaml")
}
