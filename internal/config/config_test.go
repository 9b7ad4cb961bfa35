package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/escaperoom/internal/factory"
	"github.com/mcoot/escaperoom/internal/model"
)

// load runs the command with args and returns the configuration it saw
func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var seen *Config
	cmd := NewCommand("escape-server", &Config{}, func(_ *cobra.Command, cfg *Config) error {
		seen = cfg
		return nil
	})
	// A nil slice would make cobra parse the test binary's arguments
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.Execute()
	return seen, err
}

func TestDefaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Bind)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, factory.StorageTypeMemory, cfg.Storage)
	assert.Equal(t, time.Hour, cfg.TimerStart)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, time.Minute, cfg.GracePeriod)
	assert.Equal(t, time.Minute, cfg.RoomDeletionDelay)

	gating, err := cfg.Gating()
	require.NoError(t, err)
	assert.Equal(t, []model.EnigmaID{model.Enigma1, model.Enigma2, model.Enigma3}, gating)
}

func TestFlags(t *testing.T) {
	cfg, err := load(t,
		"--port", "9000",
		"--storage", "redis",
		"--redis-url", "redis://cache:6379",
		"--timer-start", "30m",
		"--gating-enigmas", "enigma1,2",
	)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "redis", cfg.Storage)
	assert.Equal(t, 30*time.Minute, cfg.TimerStart)

	gating, err := cfg.Gating()
	require.NoError(t, err)
	assert.Equal(t, []model.EnigmaID{model.Enigma1, model.Enigma2}, gating)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("ESCAPE_PORT", "9100")
	t.Setenv("ESCAPE_STORAGE", "sqlite")
	t.Setenv("ESCAPE_DATABASE_DSN", "file::memory:")
	t.Setenv("ESCAPE_GRACE_PERIOD", "90s")

	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "sqlite", cfg.Storage)
	assert.Equal(t, "file::memory:", cfg.DatabaseDSN)
	assert.Equal(t, 90*time.Second, cfg.GracePeriod)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("ESCAPE_PORT", "9100")

	cfg, err := load(t, "--port", "9200")
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"port out of range", []string{"--port", "70000"}, "invalid port"},
		{"unknown storage", []string{"--storage", "mongo"}, "invalid storage"},
		{"redis without url", []string{"--storage", "redis"}, "--redis-url"},
		{"postgres without dsn", []string{"--storage", "postgres"}, "--database-dsn"},
		{"tiny timer", []string{"--timer-start", "500ms"}, "timer start"},
		{"zero grace", []string{"--grace-period", "0s"}, "grace period"},
		{"unknown gating enigma", []string{"--gating-enigmas", "enigma9"}, "gating enigma"},
		{"bad log level", []string{"--log-level", "loud"}, "log level"},
		{"bad log format", []string{"--log-format", "xml"}, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFactoryConfig(t *testing.T) {
	cfg, err := load(t, "--storage", "postgres", "--database-dsn", "postgres://escape@db/escape", "--tick-interval", "2s")
	require.NoError(t, err)

	fc := cfg.Factory(slog.Default())
	assert.Equal(t, factory.StorageTypePostgres, fc.StorageType)
	require.NotNil(t, fc.SQLConfig)
	assert.Equal(t, "postgres", fc.SQLConfig.Driver)
	assert.Equal(t, "postgres://escape@db/escape", fc.SQLConfig.DSN)
	assert.Nil(t, fc.RedisConfig)
	assert.Equal(t, 2*time.Second, fc.Game.TickInterval)
	assert.Equal(t, time.Minute, fc.Room.GracePeriod)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}
