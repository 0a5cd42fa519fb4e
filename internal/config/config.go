// Package config loads settings shared by the coverage binaries.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// COVERAGE_* environment variables.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/uv-coverage/internal/analyzer"
)

// Config holds every tunable of the system.
type Config struct {
	Analysis analyzer.Options `yaml:"analysis"`
	Server   ServerConfig     `yaml:"server"`
	Store    StoreConfig      `yaml:"store"`
	Capture  CaptureConfig    `yaml:"capture"`

	// LogLevel is "info" or "debug".
	LogLevel string `yaml:"log_level"`
}

// ServerConfig configures the HTTP ingress service.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	UploadDir      string        `yaml:"upload_dir"`
	FrontendDir    string        `yaml:"frontend_dir"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	HistoryLimit   int           `yaml:"history_limit"`
	GalleryLimit   int           `yaml:"gallery_limit"`
	MaxConcurrent  int64         `yaml:"max_concurrent"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StoreConfig configures the results database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// CaptureConfig configures the camera loop.
type CaptureConfig struct {
	BackendURL     string        `yaml:"backend_url"`
	Command        string        `yaml:"command"`
	ImagePath      string        `yaml:"image_path"`
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	UploadTimeout  time.Duration `yaml:"upload_timeout"`
	Interval       time.Duration `yaml:"interval"`
}

// Default returns the settings of the deployed system.
func Default() *Config {
	return &Config{
		Analysis: analyzer.DefaultOptions(),
		Server: ServerConfig{
			Addr:           ":8001",
			UploadDir:      "uploads",
			FrontendDir:    "frontend/dist",
			MaxUploadBytes: 5 << 20,
			HistoryLimit:   50,
			GalleryLimit:   20,
			MaxConcurrent:  2,
			RequestTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Path: "microplastics.db",
		},
		Capture: CaptureConfig{
			BackendURL:     "http://localhost:8001/upload",
			Command:        "rpicam-still",
			ImagePath:      "/tmp/frame.jpg",
			Width:          2592,
			Height:         1944,
			CaptureTimeout: 500 * time.Millisecond,
			UploadTimeout:  5 * time.Second,
			Interval:       time.Second,
		},
		LogLevel: "info",
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when path is
// empty) and the environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := getEnv("COVERAGE_THRESHOLD", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "COVERAGE_THRESHOLD")
		}
		c.Analysis.Threshold = n
	}
	if v := getEnv("COVERAGE_KERNEL_SIZE", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "COVERAGE_KERNEL_SIZE")
		}
		c.Analysis.KernelSize = n
	}
	if v := getEnv("COVERAGE_CAPTURE_INTERVAL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "COVERAGE_CAPTURE_INTERVAL")
		}
		c.Capture.Interval = d
	}

	c.Server.Addr = getEnv("COVERAGE_ADDR", c.Server.Addr)
	c.Server.UploadDir = getEnv("COVERAGE_UPLOAD_DIR", c.Server.UploadDir)
	c.Store.Path = getEnv("COVERAGE_DB_PATH", c.Store.Path)
	c.Capture.BackendURL = getEnv("COVERAGE_BACKEND_URL", c.Capture.BackendURL)
	c.LogLevel = getEnv("COVERAGE_LOG_LEVEL", c.LogLevel)
	return nil
}

// Validate checks the configuration for values no component can run with.
func (c *Config) Validate() error {
	if err := c.Analysis.Validate(); err != nil {
		return errors.Wrap(err, "analysis")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.Errorf("server.max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes)
	}
	if c.Server.HistoryLimit <= 0 {
		return errors.Errorf("server.history_limit must be positive, got %d", c.Server.HistoryLimit)
	}
	if c.Server.GalleryLimit <= 0 {
		return errors.Errorf("server.gallery_limit must be positive, got %d", c.Server.GalleryLimit)
	}
	if c.Server.MaxConcurrent <= 0 {
		return errors.Errorf("server.max_concurrent must be positive, got %d", c.Server.MaxConcurrent)
	}
	if c.Server.UploadDir == "" {
		return errors.New("server.upload_dir is required")
	}
	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
		return errors.Errorf("capture size %dx%d must be positive", c.Capture.Width, c.Capture.Height)
	}
	if c.Capture.UploadTimeout <= 0 {
		return errors.Errorf("capture.upload_timeout must be positive, got %s", c.Capture.UploadTimeout)
	}
	if c.Capture.Interval < 0 {
		return errors.Errorf("capture.interval must not be negative, got %s", c.Capture.Interval)
	}
	switch c.LogLevel {
	case "info", "debug":
	default:
		return errors.Errorf("log_level must be info or debug, got %q", c.LogLevel)
	}
	return nil
}

// Warnings reports settings that are accepted but likely wrong.
func (c *Config) Warnings() []string {
	return c.Analysis.Warnings()
}

// Debug reports whether verbose logging is enabled.
func (c *Config) Debug() bool {
	return c.LogLevel == "debug"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
