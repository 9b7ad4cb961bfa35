package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/escaperoom/internal/model"
	"github.com/mcoot/escaperoom/internal/storage"
)

// decrementTimerScript lowers the timer field by one, floored at zero.
// Returns -1 when the room does not exist.
var decrementTimerScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
local timer = tonumber(redis.call("HGET", KEYS[1], "timer") or "0")
if timer > 0 then
	return redis.call("HINCRBY", KEYS[1], "timer", -1)
end
return timer
`)

// Storage is a Redis-backed implementation of the storage interface.
//
// Each room is spread across a HASH for the room record, a HASH of players,
// a HASH of enigma states and a LIST of messages. Multi-key writes go
// through WATCH/MULTI so a concurrent change aborts the transaction.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	enigmas, err := encodeAll(room.Enigmas, func(e model.Enigma) string { return string(e.ID) })
	if err != nil {
		return err
	}

	key := roomKey(room.Code)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return model.ErrRoomCodeTaken
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			// Clear leftovers from a previous room with the same code
			pipe.Del(ctx, playersKey(room.Code), enigmasKey(room.Code), messagesKey(room.Code))
			pipe.HSet(ctx, key, toRoomHash(room))
			if len(enigmas) > 0 {
				pipe.HSet(ctx, enigmasKey(room.Code), enigmas)
			}
			s.expireRoom(ctx, pipe, room.Code)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return model.ErrRoomCodeTaken
	}
	return err
}

func (s *Storage) GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	pipe := s.client.Pipeline()
	roomCmd := pipe.HGetAll(ctx, roomKey(code))
	playersCmd := pipe.HGetAll(ctx, playersKey(code))
	enigmasCmd := pipe.HGetAll(ctx, enigmasKey(code))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	if len(roomCmd.Val()) == 0 {
		return nil, model.ErrRoomNotFound
	}

	var h roomHash
	if err := roomCmd.Scan(&h); err != nil {
		return nil, err
	}
	room := h.toRoom()

	players, err := decodeAll[model.Player](playersCmd.Val())
	if err != nil {
		return nil, fmt.Errorf("decode players of room %s: %w", code, err)
	}
	model.SortPlayers(players)
	room.Players = players

	enigmas, err := decodeAll[model.Enigma](enigmasCmd.Val())
	if err != nil {
		return nil, fmt.Errorf("decode enigmas of room %s: %w", code, err)
	}
	model.SortEnigmas(enigmas)
	room.Enigmas = enigmas

	return room, nil
}

func (s *Storage) RoomExists(ctx context.Context, code model.RoomCode) (bool, error) {
	exists, err := s.client.Exists(ctx, roomKey(code)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (s *Storage) UpdateRoom(ctx context.Context, room *model.Room) error {
	return s.withRoom(ctx, room.Code, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, roomKey(room.Code),
				"started", room.Started,
				"timer", room.Timer,
				"timer_stopped", room.TimerStopped,
				"host_player_id", string(room.HostPlayerID),
				"updated_at", room.UpdatedAt.UnixNano(),
			)
			s.expireRoom(ctx, pipe, room.Code)
			return nil
		})
		return err
	})
}

func (s *Storage) DeleteRoom(ctx context.Context, code model.RoomCode) error {
	return s.client.Del(ctx, allRoomKeys(code)...).Err()
}

func (s *Storage) DecrementTimer(ctx context.Context, code model.RoomCode) (int, error) {
	timer, err := decrementTimerScript.Run(ctx, s.client, []string{roomKey(code)}).Int()
	if err != nil {
		return 0, err
	}
	if timer < 0 {
		return 0, model.ErrRoomNotFound
	}
	return timer, nil
}

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, code model.RoomCode, player *model.Player) error {
	data, err := json.Marshal(player)
	if err != nil {
		return err
	}

	return s.withRoom(ctx, code, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, playersKey(code), string(player.ID), data)
			if player.IsHost {
				pipe.HSet(ctx, roomKey(code), "host_player_id", string(player.ID))
			}
			s.expireRoom(ctx, pipe, code)
			return nil
		})
		return err
	})
}

func (s *Storage) DeletePlayer(ctx context.Context, code model.RoomCode, id model.PlayerID) error {
	return s.client.HDel(ctx, playersKey(code), string(id)).Err()
}

func (s *Storage) TransferHost(ctx context.Context, code model.RoomCode, from, to model.PlayerID) error {
	return s.withRoom(ctx, code, func(tx *redis.Tx) error {
		next, err := s.getPlayer(ctx, tx, code, to)
		if err != nil {
			return err
		}
		prev, err := s.getPlayer(ctx, tx, code, from)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}

		next.IsHost = true
		fields := map[string]any{}
		if fields[string(next.ID)], err = json.Marshal(next); err != nil {
			return err
		}
		if prev != nil {
			prev.IsHost = false
			if fields[string(prev.ID)], err = json.Marshal(prev); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, playersKey(code), fields)
			pipe.HSet(ctx, roomKey(code), "host_player_id", string(to))
			s.expireRoom(ctx, pipe, code)
			return nil
		})
		return err
	}, playersKey(code))
}

// Enigma operations

func (s *Storage) SaveEnigma(ctx context.Context, code model.RoomCode, enigma *model.Enigma) error {
	err := s.withRoom(ctx, code, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, enigmasKey(code), string(enigma.ID)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return model.ErrNotFound
			}
			return err
		}

		var stored model.Enigma
		if err := json.Unmarshal(raw, &stored); err != nil {
			return err
		}
		if stored.Version != enigma.Version {
			return model.ErrVersionConflict
		}

		next := enigma.Clone()
		next.Version++
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, enigmasKey(code), string(enigma.ID), data)
			s.expireRoom(ctx, pipe, code)
			return nil
		})
		if err == nil {
			enigma.Version = next.Version
		}
		return err
	}, enigmasKey(code))
	if errors.Is(err, redis.TxFailedErr) {
		return model.ErrVersionConflict
	}
	return err
}

// Message operations

func (s *Storage) AppendMessage(ctx context.Context, msg *model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return s.withRoom(ctx, msg.RoomCode, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, messagesKey(msg.RoomCode), data)
			s.expireRoom(ctx, pipe, msg.RoomCode)
			return nil
		})
		return err
	})
}

func (s *Storage) ListMessages(ctx context.Context, code model.RoomCode, limit int) ([]model.Message, error) {
	exists, err := s.RoomExists(ctx, code)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, model.ErrRoomNotFound
	}

	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	values, err := s.client.LRange(ctx, messagesKey(code), start, -1).Result()
	if err != nil {
		return nil, err
	}

	msgs := make([]model.Message, 0, len(values))
	for _, val := range values {
		var msg model.Message
		if err := json.Unmarshal([]byte(val), &msg); err != nil {
			continue // Skip invalid data
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// withRoom runs fn in a WATCH on the room key plus any extra keys, failing
// with ErrRoomNotFound if the room does not exist.
func (s *Storage) withRoom(ctx context.Context, code model.RoomCode, fn func(tx *redis.Tx) error, extraKeys ...string) error {
	key := roomKey(code)
	keys := append([]string{key}, extraKeys...)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return model.ErrRoomNotFound
		}
		return fn(tx)
	}, keys...)
}

func (s *Storage) getPlayer(ctx context.Context, tx *redis.Tx, code model.RoomCode, id model.PlayerID) (*model.Player, error) {
	raw, err := tx.HGet(ctx, playersKey(code), string(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	var player model.Player
	if err := json.Unmarshal(raw, &player); err != nil {
		return nil, err
	}
	return &player, nil
}

func (s *Storage) expireRoom(ctx context.Context, pipe redis.Pipeliner, code model.RoomCode) {
	if s.cfg.RoomTTL <= 0 {
		return
	}
	for _, key := range allRoomKeys(code) {
		pipe.Expire(ctx, key, s.cfg.RoomTTL)
	}
}
