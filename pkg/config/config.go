// Package config loads boxmark settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Viewport is the layout size in units.
type Viewport struct {
	Width  float64 `yaml:"width" validate:"gt=0"`
	Height float64 `yaml:"height" validate:"gt=0"`
}

// Fonts points at TrueType files used for measurement and rendering.
// Empty paths select reference metrics.
type Fonts struct {
	Regular string `yaml:"regular,omitempty" validate:"omitempty,file"`
	Bold    string `yaml:"bold,omitempty" validate:"omitempty,file"`
}

// Config represents the boxmark configuration
type Config struct {
	Viewport Viewport `yaml:"viewport"`
	Fonts    Fonts    `yaml:"fonts,omitempty"`

	// ResourcesRoot is the directory served under resources://
	ResourcesRoot string `yaml:"resources_root,omitempty" validate:"omitempty,dir"`

	// BaseURL resolves relative image and table references.
	BaseURL string `yaml:"base_url,omitempty" validate:"omitempty,url"`

	HTTPRetryMax int `yaml:"http_retry_max" validate:"gte=0,lte=10"`

	// PrefetchLimit bounds concurrent image fetches.
	PrefetchLimit int `yaml:"prefetch_limit" validate:"gte=1,lte=64"`

	// Timeout bounds how long a document waits for tag tables and images.
	// Zero waits indefinitely.
	Timeout time.Duration `yaml:"timeout,omitempty" validate:"gte=0"`

	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`
	MetricsAddr string `yaml:"metrics_addr,omitempty" validate:"omitempty,hostname_port"`
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	return &Config{
		Viewport:      Viewport{Width: 320, Height: 480},
		HTTPRetryMax:  3,
		PrefetchLimit: 4,
		Timeout:       10 * time.Second,
		LogLevel:      "info",
	}
}

// Load reads the configuration at path over the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level maps LogLevel to a slog level.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Logger builds a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.Level()}))
}
