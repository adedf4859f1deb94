// Package config loads and validates frothwatch configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default camera parameters, matching typical plant camera setups.
const (
	DefaultWidth             = 640
	DefaultHeight            = 480
	DefaultTimeoutSec        = 10
	DefaultReconnectInterval = 5
	DefaultMaxRetries        = 10
)

// Camera holds per-camera capture configuration.
type Camera struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`

	// Target frame size. Frames are resized in the capture loop so all
	// downstream feature extraction sees a consistent resolution.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// Connection behavior
	TimeoutSec           int `yaml:"timeout_sec"`
	ReconnectIntervalSec int `yaml:"reconnect_interval_sec"`
	MaxRetries           int `yaml:"max_retries"`
}

// UnmarshalYAML applies defaults only for keys absent from the file,
// so an explicit 0 (no reconnect delay, no retries) survives loading.
func (c *Camera) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Name                 string `yaml:"name"`
		URL                  string `yaml:"url"`
		Enabled              bool   `yaml:"enabled"`
		Width                *int   `yaml:"width"`
		Height               *int   `yaml:"height"`
		TimeoutSec           *int   `yaml:"timeout_sec"`
		ReconnectIntervalSec *int   `yaml:"reconnect_interval_sec"`
		MaxRetries           *int   `yaml:"max_retries"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.Name = raw.Name
	c.URL = raw.URL
	c.Enabled = raw.Enabled
	c.Width = intOr(raw.Width, DefaultWidth)
	c.Height = intOr(raw.Height, DefaultHeight)
	c.TimeoutSec = intOr(raw.TimeoutSec, DefaultTimeoutSec)
	c.ReconnectIntervalSec = intOr(raw.ReconnectIntervalSec, DefaultReconnectInterval)
	c.MaxRetries = intOr(raw.MaxRetries, DefaultMaxRetries)
	return nil
}

func intOr(v *int, fallback int) int {
	if v != nil {
		return *v
	}
	return fallback
}

// Timeout returns the open/read timeout as a duration.
func (c Camera) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// ReconnectInterval returns the delay between reconnect attempts.
func (c Camera) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalSec) * time.Second
}

// DefaultCamera returns a camera entry with production defaults.
// The URL must still be filled in by the caller.
func DefaultCamera() Camera {
	return Camera{
		Enabled:              true,
		Width:                DefaultWidth,
		Height:               DefaultHeight,
		TimeoutSec:           DefaultTimeoutSec,
		ReconnectIntervalSec: DefaultReconnectInterval,
		MaxRetries:           DefaultMaxRetries,
	}
}

// Validate checks if the camera config values are usable.
// Returns a list of validation errors, or nil if valid.
func (c *Camera) Validate() []string {
	var errors []string

	if c.URL == "" {
		errors = append(errors, "url must not be empty")
	} else if u, err := url.Parse(c.URL); err != nil || u.Scheme == "" {
		errors = append(errors, fmt.Sprintf("url %q is not a valid stream URL", c.URL))
	}

	if c.Width < 0 || c.Height < 0 {
		errors = append(errors, "width and height must not be negative")
	}
	if c.TimeoutSec < 0 {
		errors = append(errors, "timeout_sec must not be negative")
	}
	if c.ReconnectIntervalSec < 0 {
		errors = append(errors, "reconnect_interval_sec must not be negative")
	}
	if c.MaxRetries < 0 {
		errors = append(errors, "max_retries must not be negative")
	}

	return errors
}

// Telemetry configures the outbound feature/status publisher.
type Telemetry struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	BufferSize int    `yaml:"buffer_size"`
}

// Config is the top-level frothwatch configuration.
type Config struct {
	LogLevel   string    `yaml:"log_level"`
	ListenAddr string    `yaml:"listen_addr"`
	Telemetry  Telemetry `yaml:"telemetry"`
	Cameras    []Camera  `yaml:"cameras"`
}

// Default returns the recommended configuration with no cameras.
func Default() *Config {
	return &Config{
		LogLevel:   "info",
		ListenAddr: ":8080",
		Telemetry: Telemetry{
			BufferSize: 256,
		},
	}
}

// Load reads a YAML configuration file and applies defaults for
// omitted camera fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	for i := range cfg.Cameras {
		if cfg.Cameras[i].Name == "" {
			cfg.Cameras[i].Name = fmt.Sprintf("camera-%s", safeHost(cfg.Cameras[i].URL))
		}
	}

	if cfg.Telemetry.BufferSize <= 0 {
		cfg.Telemetry.BufferSize = 256
	}

	return cfg, nil
}

func safeHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Hostname()
}
