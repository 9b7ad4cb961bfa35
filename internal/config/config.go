// Package config loads the server configuration from flags and ESCAPE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mcoot/escaperoom/internal/api"
	"github.com/mcoot/escaperoom/internal/factory"
	"github.com/mcoot/escaperoom/internal/model"
	"github.com/mcoot/escaperoom/internal/realtime"
	"github.com/mcoot/escaperoom/internal/services/enigma"
	"github.com/mcoot/escaperoom/internal/services/game"
	"github.com/mcoot/escaperoom/internal/services/room"
	redisstorage "github.com/mcoot/escaperoom/internal/storage/redis"
	"github.com/mcoot/escaperoom/internal/storage/sqlstore"
)

// EnvPrefix prefixes every environment variable
const EnvPrefix = "ESCAPE"

// Config holds the server configuration
type Config struct {
	Bind string
	Port int

	Storage     string
	RedisURL    string
	DatabaseDSN string

	TimerStart        time.Duration
	TickInterval      time.Duration
	GracePeriod       time.Duration
	RoomDeletionDelay time.Duration
	GatingEnigmas     []string

	LogLevel  string
	LogFormat string

	// Per client IP and route, on the HTTP API
	RateLimit float64
	RateBurst int

	// Per websocket connection
	IntentRate  float64
	IntentBurst int
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if !slices.Contains(factory.StorageTypes, c.Storage) {
		return fmt.Errorf("invalid storage %q (must be one of %s)", c.Storage, strings.Join(factory.StorageTypes, ", "))
	}
	if c.Storage == factory.StorageTypeRedis && c.RedisURL == "" {
		return errors.New("--redis-url is required with --storage redis")
	}
	if (c.Storage == factory.StorageTypePostgres || c.Storage == factory.StorageTypeSQLite) && c.DatabaseDSN == "" {
		return fmt.Errorf("--database-dsn is required with --storage %s", c.Storage)
	}
	if c.TimerStart < time.Second {
		return fmt.Errorf("invalid timer start (must be at least 1s): %s", c.TimerStart)
	}
	for name, d := range map[string]time.Duration{
		"tick interval":       c.TickInterval,
		"grace period":        c.GracePeriod,
		"room deletion delay": c.RoomDeletionDelay,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid %s (must be positive): %s", name, d)
		}
	}
	if _, err := c.Gating(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid log format %q (must be json or text)", c.LogFormat)
	}
	if c.RateLimit < 0 || c.IntentRate < 0 {
		return errors.New("rate limits cannot be negative")
	}
	return nil
}

// Gating returns the puzzles that must be completed to escape. Entries may
// be given as "enigma2" or just "2".
func (c *Config) Gating() ([]model.EnigmaID, error) {
	puzzles := enigma.DefaultRegistry()
	ids := make([]model.EnigmaID, 0, len(c.GatingEnigmas))
	for _, raw := range c.GatingEnigmas {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if !strings.HasPrefix(name, "enigma") {
			name = "enigma" + name
		}
		id := model.EnigmaID(name)
		if !puzzles.Has(id) {
			return nil, fmt.Errorf("invalid gating enigma %q", raw)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("at least one gating enigma is required")
	}
	return ids, nil
}

// Level returns the configured log level
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}

// Factory returns the application wiring settings
func (c *Config) Factory(logger *slog.Logger) factory.Config {
	gating, _ := c.Gating()
	cfg := factory.Config{
		Logger:      logger,
		StorageType: c.Storage,
		Game: game.Config{
			TimerStart:   c.TimerStart,
			TickInterval: c.TickInterval,
			Gating:       gating,
		},
		Room: room.Config{
			GracePeriod:   c.GracePeriod,
			DeletionDelay: c.RoomDeletionDelay,
		},
	}

	switch c.Storage {
	case factory.StorageTypeRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = c.RedisURL
		cfg.RedisConfig = &redisCfg
	case factory.StorageTypePostgres, factory.StorageTypeSQLite:
		sqlCfg := sqlstore.DefaultConfig()
		sqlCfg.Driver = c.Storage
		sqlCfg.DSN = c.DatabaseDSN
		cfg.SQLConfig = &sqlCfg
	}
	return cfg
}

// Server returns the HTTP server settings
func (c *Config) Server() api.ServerConfig {
	server := api.DefaultServerConfig()
	server.Host = c.Bind
	server.Port = c.Port
	return server
}

// Realtime returns the websocket connection settings
func (c *Config) Realtime() realtime.HandlerConfig {
	rt := realtime.DefaultHandlerConfig()
	rt.IntentRate = c.IntentRate
	rt.IntentBurst = c.IntentBurst
	return rt
}

// NewCommand returns a command whose flags fill cfg, with every flag also
// readable from the environment (--redis-url from ESCAPE_REDIS_URL). run is
// called with the validated configuration.
func NewCommand(use string, cfg *Config, run func(cmd *cobra.Command, cfg *Config) error) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   use,
		Short: "Two-player escape room server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	RegisterFlags(fs, cfg)

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, envValue(v, f))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd
}

// envValue formats a value read through viper for fs.Set. Slices arrive
// from the environment as one comma-separated string.
func envValue(v *viper.Viper, f *pflag.Flag) string {
	if f.Value.Type() == "stringSlice" {
		return strings.Join(v.GetStringSlice(f.Name), ",")
	}
	return fmt.Sprintf("%v", v.Get(f.Name))
}

// RegisterFlags declares every configuration flag on fs
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: ESCAPE_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: ESCAPE_PORT)")

	fs.StringVar(&cfg.Storage, "storage", factory.StorageTypeMemory, "storage backend: memory, redis, postgres or sqlite (env: ESCAPE_STORAGE)")
	fs.StringVar(&cfg.RedisURL, "redis-url", "", "redis connection URL (env: ESCAPE_REDIS_URL)")
	fs.StringVar(&cfg.DatabaseDSN, "database-dsn", "", "postgres DSN or sqlite file (env: ESCAPE_DATABASE_DSN)")

	defaults := game.DefaultConfig()
	fs.DurationVar(&cfg.TimerStart, "timer-start", defaults.TimerStart, "countdown a room starts with (env: ESCAPE_TIMER_START)")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", defaults.TickInterval, "time between countdown ticks (env: ESCAPE_TICK_INTERVAL)")
	fs.DurationVar(&cfg.GracePeriod, "grace-period", room.DefaultConfig().GracePeriod, "time a disconnected player keeps their slot (env: ESCAPE_GRACE_PERIOD)")
	fs.DurationVar(&cfg.RoomDeletionDelay, "room-deletion-delay", room.DefaultConfig().DeletionDelay, "time an empty room survives (env: ESCAPE_ROOM_DELETION_DELAY)")
	fs.StringSliceVar(&cfg.GatingEnigmas, "gating-enigmas", []string{"1", "2", "3"}, "puzzles that must be solved to escape (env: ESCAPE_GATING_ENIGMAS)")

	fs.StringVar(&cfg.LogLevel, "log-level", "info", "debug, info, warn or error (env: ESCAPE_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", "json", "json or text (env: ESCAPE_LOG_FORMAT)")

	fs.Float64Var(&cfg.RateLimit, "rate-limit", 10, "HTTP requests per second per client and route, 0 to disable (env: ESCAPE_RATE_LIMIT)")
	fs.IntVar(&cfg.RateBurst, "rate-burst", 20, "HTTP request burst (env: ESCAPE_RATE_BURST)")
	fs.Float64Var(&cfg.IntentRate, "intent-rate", 30, "websocket intents per second per connection, 0 to disable (env: ESCAPE_INTENT_RATE)")
	fs.IntVar(&cfg.IntentBurst, "intent-burst", 60, "websocket intent burst (env: ESCAPE_INTENT_BURST)")
}
