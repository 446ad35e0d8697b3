package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/timeviewer/backend/internal/logging"
)

type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Store   StoreConfig    `yaml:"store"`
	Tracker TrackerConfig  `yaml:"tracker"`
	Logging logging.Config `yaml:"logging"`
	Mock    MockConfig     `yaml:"mock"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// AuthToken, when set, is required on every request.
	AuthToken   string `yaml:"auth_token"`
	FrontendDir string `yaml:"frontend_dir"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type TrackerConfig struct {
	// ReaperInterval is how often a dangling open segment is checked for.
	ReaperInterval time.Duration `yaml:"reaper_interval"`
	// StaleAfter is how long the reporter must have been silent before the
	// reaper closes its open segment. Zero closes on every tick.
	StaleAfter      time.Duration `yaml:"stale_after"`
	DayBoundaryHour int           `yaml:"day_boundary_hour"`
	FanoutBuffer    int           `yaml:"fanout_buffer"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
}

type MockConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        5168,
			Host:        "127.0.0.1",
			FrontendDir: "public",
		},
		Store: StoreConfig{
			Path: "timeviewer.db",
		},
		Tracker: TrackerConfig{
			ReaperInterval:  10 * time.Second,
			DayBoundaryHour: 8,
			FanoutBuffer:    16,
			PingInterval:    30 * time.Second,
			WriteTimeout:    10 * time.Second,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "text",
		},
		Mock: MockConfig{
			Interval: 5 * time.Second,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to defaults when the file does not
// exist. Any other read or parse failure is returned.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}
	if c.Tracker.ReaperInterval <= 0 {
		return fmt.Errorf("tracker.reaper_interval must be positive, got %v", c.Tracker.ReaperInterval)
	}
	if c.Tracker.StaleAfter < 0 {
		return fmt.Errorf("tracker.stale_after must not be negative, got %v", c.Tracker.StaleAfter)
	}
	if c.Tracker.DayBoundaryHour < 0 || c.Tracker.DayBoundaryHour > 23 {
		return fmt.Errorf("tracker.day_boundary_hour %d out of range 0-23", c.Tracker.DayBoundaryHour)
	}
	if c.Tracker.FanoutBuffer <= 0 {
		return fmt.Errorf("tracker.fanout_buffer must be positive, got %d", c.Tracker.FanoutBuffer)
	}
	if c.Tracker.PingInterval <= 0 || c.Tracker.WriteTimeout <= 0 {
		return errors.New("tracker.ping_interval and tracker.write_timeout must be positive")
	}
	if c.Mock.Interval <= 0 {
		return fmt.Errorf("mock.interval must be positive, got %v", c.Mock.Interval)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
