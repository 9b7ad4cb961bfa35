// Package sqlstore persists rooms in a relational database through gorm.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/mcoot/escaperoom/internal/model"
	"github.com/mcoot/escaperoom/internal/storage"
)

// Storage is a gorm-backed implementation of the storage interface
type Storage struct {
	db *gorm.DB
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Open connects to the database, retrying while it comes up, and migrates the schema
func Open(cfg Config) (*Storage, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	attempts := max(cfg.ConnectAttempts, 1)
	var db *gorm.DB
	for i := range attempts {
		db, err = gorm.Open(dialector, &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		})
		if err == nil {
			err = configurePool(db, cfg)
		}
		if err == nil {
			break
		}
		time.Sleep(time.Duration(500+i*200) * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Driver, err)
	}

	return NewWithDB(db)
}

// NewWithDB wraps an existing connection and migrates the schema
func NewWithDB(db *gorm.DB) (*Storage, error) {
	s := &Storage{db: db}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates every table
func (s *Storage) Migrate() error {
	return s.db.AutoMigrate(allRecords...)
}

// Close closes the underlying connection pool
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return postgres.Open(cfg.DSN), nil
	case DriverSQLite:
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func configurePool(db *gorm.DB, cfg Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return sqlDB.Ping()
}

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&roomRecord{}).Where("code = ?", string(room.Code)).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return model.ErrRoomCodeTaken
		}

		rec := toRoomRecord(room)
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		if len(room.Enigmas) == 0 {
			return nil
		}
		enigmas := make([]enigmaRecord, len(room.Enigmas))
		for i := range room.Enigmas {
			enigmas[i] = toEnigmaRecord(rec.ID, &room.Enigmas[i])
		}
		return tx.Create(&enigmas).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return model.ErrRoomCodeTaken
	}
	return err
}

func (s *Storage) GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	db := s.db.WithContext(ctx)

	rec, err := findRoom(db, code)
	if err != nil {
		return nil, err
	}

	var players []playerRecord
	if err := db.Where("room_id = ?", rec.ID).Order("joined_at asc").Find(&players).Error; err != nil {
		return nil, err
	}
	var enigmas []enigmaRecord
	if err := db.Where("room_id = ?", rec.ID).Order("enigma_id asc").Find(&enigmas).Error; err != nil {
		return nil, err
	}

	room := rec.toModel()
	room.Players = make([]model.Player, len(players))
	for i, p := range players {
		room.Players[i] = p.toModel()
	}
	room.Enigmas = make([]model.Enigma, len(enigmas))
	for i, e := range enigmas {
		room.Enigmas[i] = e.toModel()
	}
	return room, nil
}

func (s *Storage) RoomExists(ctx context.Context, code model.RoomCode) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&roomRecord{}).Where("code = ?", string(code)).Count(&count).Error
	return count > 0, err
}

func (s *Storage) UpdateRoom(ctx context.Context, room *model.Room) error {
	result := s.db.WithContext(ctx).Model(&roomRecord{}).
		Where("code = ?", string(room.Code)).
		Updates(map[string]any{
			"started":        room.Started,
			"timer":          room.Timer,
			"timer_stopped":  room.TimerStopped,
			"host_player_id": string(room.HostPlayerID),
			"updated_at":     room.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return model.ErrRoomNotFound
	}
	return nil
}

func (s *Storage) DeleteRoom(ctx context.Context, code model.RoomCode) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := findRoom(tx, code)
		if errors.Is(err, model.ErrRoomNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, table := range []any{&messageRecord{}, &enigmaRecord{}, &playerRecord{}} {
			if err := tx.Where("room_id = ?", rec.ID).Delete(table).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&roomRecord{}, "id = ?", rec.ID).Error
	})
}

func (s *Storage) DecrementTimer(ctx context.Context, code model.RoomCode) (int, error) {
	var timer int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&roomRecord{}).
			Where("code = ? AND timer > 0", string(code)).
			UpdateColumn("timer", gorm.Expr("timer - 1")).Error
		if err != nil {
			return err
		}
		rec, err := findRoom(tx, code)
		if err != nil {
			return err
		}
		timer = rec.Timer
		return nil
	})
	return timer, err
}

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, code model.RoomCode, player *model.Player) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := findRoom(tx, code)
		if err != nil {
			return err
		}
		rec := toPlayerRecord(room.ID, player)
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
			return err
		}
		if !player.IsHost {
			return nil
		}
		return tx.Model(&roomRecord{}).
			Where("id = ?", room.ID).
			Update("host_player_id", string(player.ID)).Error
	})
}

func (s *Storage) DeletePlayer(ctx context.Context, code model.RoomCode, id model.PlayerID) error {
	db := s.db.WithContext(ctx)
	room, err := findRoom(db, code)
	if errors.Is(err, model.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return db.Where("room_id = ? AND id = ?", room.ID, string(id)).Delete(&playerRecord{}).Error
}

func (s *Storage) TransferHost(ctx context.Context, code model.RoomCode, from, to model.PlayerID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := findRoom(tx, code)
		if err != nil {
			return err
		}

		result := tx.Model(&playerRecord{}).
			Where("room_id = ? AND id = ?", room.ID, string(to)).
			Update("is_host", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return model.ErrNotFound
		}

		err = tx.Model(&playerRecord{}).
			Where("room_id = ? AND id = ?", room.ID, string(from)).
			Update("is_host", false).Error
		if err != nil {
			return err
		}

		return tx.Model(&roomRecord{}).
			Where("id = ?", room.ID).
			Update("host_player_id", string(to)).Error
	})
}

// Enigma operations

func (s *Storage) SaveEnigma(ctx context.Context, code model.RoomCode, enigma *model.Enigma) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := findRoom(tx, code)
		if err != nil {
			return err
		}

		result := tx.Model(&enigmaRecord{}).
			Where("room_id = ? AND enigma_id = ? AND version = ?", room.ID, string(enigma.ID), enigma.Version).
			Updates(map[string]any{
				"completed": enigma.Completed,
				"data":      string(enigma.Data),
				"version":   enigma.Version + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			err := tx.Model(&enigmaRecord{}).
				Where("room_id = ? AND enigma_id = ?", room.ID, string(enigma.ID)).
				Count(&count).Error
			if err != nil {
				return err
			}
			if count == 0 {
				return model.ErrNotFound
			}
			return model.ErrVersionConflict
		}

		enigma.Version++
		return nil
	})
}

// Message operations

func (s *Storage) AppendMessage(ctx context.Context, msg *model.Message) error {
	db := s.db.WithContext(ctx)
	room, err := findRoom(db, msg.RoomCode)
	if err != nil {
		return err
	}
	rec := toMessageRecord(room.ID, msg)
	return db.Create(&rec).Error
}

func (s *Storage) ListMessages(ctx context.Context, code model.RoomCode, limit int) ([]model.Message, error) {
	db := s.db.WithContext(ctx)
	room, err := findRoom(db, code)
	if err != nil {
		return nil, err
	}

	q := db.Where("room_id = ?", room.ID).Order("seq desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []messageRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}

	msgs := make([]model.Message, len(recs))
	for i, rec := range recs {
		// Reverse into ascending order
		msgs[len(recs)-1-i] = rec.toModel(code)
	}
	return msgs, nil
}

func findRoom(db *gorm.DB, code model.RoomCode) (*roomRecord, error) {
	var rec roomRecord
	err := db.Where("code = ?", string(code)).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
