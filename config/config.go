// Package config loads file_reducer settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxFileSize is the default maximum upload size (10MB)
	DefaultMaxFileSize = 10 * 1024 * 1024

	// DefaultPort is the default server port
	DefaultPort = "8080"
)

// Config holds all file_reducer configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Limits   LimitsConfig   `yaml:"limits"`
	Notebook NotebookConfig `yaml:"notebook"`
	PDF      PDFConfig      `yaml:"pdf"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the HTTP server. Durations use time.ParseDuration syntax.
type ServerConfig struct {
	Port            string `yaml:"port"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	IdleTimeout     string `yaml:"idle_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LimitsConfig bounds request sizes.
type LimitsConfig struct {
	MaxFileSize int64 `yaml:"max_file_size"`
}

// NotebookConfig tunes notebook reduction.
type NotebookConfig struct {
	MaxOutputChars int `yaml:"max_output_chars"`
}

// PDFConfig tunes PDF image recompression.
type PDFConfig struct {
	Scale       float64 `yaml:"scale"`
	JPEGQuality int     `yaml:"jpeg_quality"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			ReadTimeout:     "15s",
			WriteTimeout:    "60s",
			IdleTimeout:     "60s",
			ShutdownTimeout: "10s",
		},
		Limits: LimitsConfig{
			MaxFileSize: DefaultMaxFileSize,
		},
		Notebook: NotebookConfig{
			MaxOutputChars: 10000,
		},
		PDF: PDFConfig{
			Scale:       0.7,
			JPEGQuality: 50,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from path. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Port = port
	}
	if value := os.Getenv("MAX_FILE_SIZE"); value != "" {
		if size, err := strconv.ParseInt(value, 10, 64); err == nil {
			c.Limits.MaxFileSize = size
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Limits.MaxFileSize <= 0 {
		return fmt.Errorf("limits.max_file_size must be positive, got %d", c.Limits.MaxFileSize)
	}
	if c.Notebook.MaxOutputChars <= 0 {
		return fmt.Errorf("notebook.max_output_chars must be positive, got %d", c.Notebook.MaxOutputChars)
	}
	if c.PDF.Scale <= 0 || c.PDF.Scale > 1 {
		return fmt.Errorf("pdf.scale must be in (0, 1], got %v", c.PDF.Scale)
	}
	if c.PDF.JPEGQuality < 1 || c.PDF.JPEGQuality > 100 {
		return fmt.Errorf("pdf.jpeg_quality must be in [1, 100], got %d", c.PDF.JPEGQuality)
	}
	for name, value := range map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.idle_timeout":     c.Server.IdleTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// GetReadTimeout returns the HTTP read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDurationOr(c.Server.ReadTimeout, 15*time.Second)
}

// GetWriteTimeout returns the HTTP write timeout.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDurationOr(c.Server.WriteTimeout, 60*time.Second)
}

// GetIdleTimeout returns the HTTP idle timeout.
func (c *Config) GetIdleTimeout() time.Duration {
	return parseDurationOr(c.Server.IdleTimeout, 60*time.Second)
}

// GetShutdownTimeout returns the graceful shutdown timeout.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDurationOr(c.Server.ShutdownTimeout, 10*time.Second)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return fallback
}
