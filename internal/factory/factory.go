package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mcoot/escaperoom/internal/dependencies/clock"
	"github.com/mcoot/escaperoom/internal/dependencies/random"
	"github.com/mcoot/escaperoom/internal/realtime"
	"github.com/mcoot/escaperoom/internal/services/chat"
	"github.com/mcoot/escaperoom/internal/services/enigma"
	"github.com/mcoot/escaperoom/internal/services/game"
	"github.com/mcoot/escaperoom/internal/services/room"
	"github.com/mcoot/escaperoom/internal/services/roomqueue"
	"github.com/mcoot/escaperoom/internal/services/timers"
	"github.com/mcoot/escaperoom/internal/storage"
	"github.com/mcoot/escaperoom/internal/storage/memory"
	redisstorage "github.com/mcoot/escaperoom/internal/storage/redis"
	"github.com/mcoot/escaperoom/internal/storage/sqlstore"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// StorageTypes lists every supported backend
var StorageTypes = []string{StorageTypeMemory, StorageTypeRedis, StorageTypePostgres, StorageTypeSQLite}

// App contains all wired application components
type App struct {
	// Storage
	Storage     storage.Storage
	StorageType string

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Coordination
	Queue  *roomqueue.Queue
	Timers *timers.Registry

	// Services
	Enigmas        *enigma.Registry
	GameController *game.Controller
	RoomController *room.Controller
	ChatService    *chat.Service

	// Real-time delivery
	HubManager  *realtime.HubManager
	Broadcaster *realtime.Broadcaster

	closer io.Closer
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// SQLConfig holds database settings (required if StorageType is "postgres" or "sqlite")
	SQLConfig *sqlstore.Config

	// Game and Room default to their package defaults when zero
	Game game.Config
	Room room.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	store, closer, err := openStorage(storageType, cfg)
	if err != nil {
		return nil, err
	}

	gameCfg := cfg.Game
	if gameCfg.TimerStart == 0 {
		gameCfg = game.DefaultConfig()
	}
	roomCfg := cfg.Room
	if roomCfg.GracePeriod == 0 {
		roomCfg = room.DefaultConfig()
	}

	app := newWithDependencies(store, clock.New(), random.New(), gameCfg, roomCfg, logger)
	app.StorageType = storageType
	app.closer = closer
	return app, nil
}

func openStorage(storageType string, cfg Config) (storage.Storage, io.Closer, error) {
	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil, nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, nil, err
		}
		return redisStore, redisStore, nil
	case StorageTypePostgres, StorageTypeSQLite:
		if cfg.SQLConfig == nil {
			return nil, nil, fmt.Errorf("SQLConfig required when StorageType is %s", storageType)
		}
		sqlCfg := *cfg.SQLConfig
		sqlCfg.Driver = storageType
		sqlStore, err := sqlstore.Open(sqlCfg)
		if err != nil {
			return nil, nil, err
		}
		return sqlStore, sqlStore, nil
	default:
		return nil, nil, fmt.Errorf("invalid StorageType %q: must be one of %v", storageType, StorageTypes)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, clk clock.Clock, rnd random.Random, gameCfg game.Config, roomCfg room.Config, logger *slog.Logger) *App {
	queue := roomqueue.New()
	timerRegistry := timers.New(clk)
	registry := enigma.DefaultRegistry()
	hubManager := realtime.NewHubManager(logger)
	broadcaster := realtime.NewBroadcaster(hubManager, logger)

	gameController := game.NewController(store, queue, timerRegistry, registry, broadcaster, clk, logger, gameCfg)
	roomController := room.NewController(store, gameController, queue, timerRegistry, registry, broadcaster, clk, rnd, logger, roomCfg)
	chatService := chat.New(store, queue, broadcaster, clk, rnd, logger)

	return &App{
		Storage:        store,
		StorageType:    StorageTypeMemory,
		Clock:          clk,
		Random:         rnd,
		Queue:          queue,
		Timers:         timerRegistry,
		Enigmas:        registry,
		GameController: gameController,
		RoomController: roomController,
		ChatService:    chatService,
		HubManager:     hubManager,
		Broadcaster:    broadcaster,
	}
}

// Services returns the operations the websocket sessions dispatch to
func (a *App) Services() realtime.Services {
	return realtime.Services{
		Rooms: a.RoomController,
		Games: a.GameController,
		Chat:  a.ChatService,
	}
}

// Close disconnects every client and releases the storage backend
func (a *App) Close() error {
	a.HubManager.CloseAll()
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}
