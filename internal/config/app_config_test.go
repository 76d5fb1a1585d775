package config

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &AppConfig{LogLevel: tt.logLevel}
			assert.Equal(t, tt.want, c.SlogLevel())
		})
	}
}

func TestAppConfig_DirectoryPaths(t *testing.T) {
	c := &AppConfig{DataDir: "/data"}

	assert.Equal(t, "/data/logs", c.LogDir())
	assert.Equal(t, "/data/logs/tasks.log", c.TaskLogPath())
}

func TestLoad(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TASKRUNNER_DATA_DIR", "/tmp/test-taskrunner")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MAX_CONCURRENCY", "8")
	t.Setenv("OPEN_BROWSER", "true")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "/tmp/test-taskrunner", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.True(t, cfg.OpenBrowser)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TASKRUNNER_DATA_DIR", "/tmp/test-taskrunner-defaults")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("MAX_CONCURRENCY", "")
	t.Setenv("OPEN_BROWSER", "")
	// t.Setenv restores the original values on cleanup; unset them so that
	// envconfig sees them as absent and applies the defaults.
	for _, k := range []string{"PORT", "LOG_LEVEL", "MAX_CONCURRENCY", "OPEN_BROWSER"} {
		os.Unsetenv(k)
	}

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.False(t, cfg.OpenBrowser)
}
