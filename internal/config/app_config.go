package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig holds all application-level configuration loaded from environment variables.
type AppConfig struct {
	// Port is the HTTP control-plane port. Defaults to 8080.
	Port int `envconfig:"PORT" default:"8080"`

	// DataDir is the root data directory holding the rolling task log.
	// Defaults to ~/.taskrunner.
	DataDir string `envconfig:"TASKRUNNER_DATA_DIR"`

	// LogLevel sets the minimum level recorded in the task log (debug, info,
	// warn, error). Defaults to info.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// MaxConcurrency bounds how many job firings may run at once across the
	// whole scheduler. Defaults to 4.
	MaxConcurrency int `envconfig:"MAX_CONCURRENCY" default:"4"`

	// OpenBrowser controls whether `serve` opens the control-plane UI in the
	// default browser on startup.
	OpenBrowser bool `envconfig:"OPEN_BROWSER" default:"false"`
}

// Load reads AppConfig from environment variables using envconfig.
// DataDir defaults to ~/.taskrunner if not set.
func Load() (*AppConfig, error) {
	var c AppConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".taskrunner")
	}
	return &c, nil
}

// SlogLevel converts the LogLevel string to a slog.Level.
// Unknown values default to slog.LevelInfo.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogDir returns the path to the log directory (<DataDir>/logs).
func (c *AppConfig) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// TaskLogPath returns the path to the rolling task log file.
func (c *AppConfig) TaskLogPath() string {
	return filepath.Join(c.LogDir(), "tasks.log")
}
