// Package room manages the lifecycle of rooms and the presence of their players.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mcoot/escaperoom/internal/dependencies/clock"
	"github.com/mcoot/escaperoom/internal/dependencies/random"
	"github.com/mcoot/escaperoom/internal/model"
	"github.com/mcoot/escaperoom/internal/services/enigma"
	"github.com/mcoot/escaperoom/internal/services/events"
	"github.com/mcoot/escaperoom/internal/services/game"
	"github.com/mcoot/escaperoom/internal/services/roomqueue"
	"github.com/mcoot/escaperoom/internal/services/timers"
	"github.com/mcoot/escaperoom/internal/storage"
)

const (
	// CodeLength is the length of generated room codes
	CodeLength = 6
	// CodeAlphabet is the characters used in room codes (avoid confusing chars)
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// MaxPseudoLength bounds a player's display name
	MaxPseudoLength = 32

	codeAttempts = 5
)

// Config holds presence settings
type Config struct {
	// GracePeriod is how long a disconnected player keeps their slot
	GracePeriod time.Duration
	// DeletionDelay is how long an empty room survives before teardown
	DeletionDelay time.Duration
}

// DefaultConfig returns the default presence configuration
func DefaultConfig() Config {
	return Config{
		GracePeriod:   60 * time.Second,
		DeletionDelay: 60 * time.Second,
	}
}

// AttachFunc subscribes the joining connection to the room. It runs on the
// room's queue before anything about the join is broadcast, so the joiner
// sees its own arrival.
type AttachFunc func(room *model.Room, self model.Player)

// JoinResult describes a successful join
type JoinResult struct {
	Room        *model.Room
	Self        model.Player
	Reconnected bool
}

// Controller manages room lifecycle and player presence
type Controller struct {
	storage        storage.Storage
	gameController *game.Controller
	queue          *roomqueue.Queue
	timers         *timers.Registry
	registry       *enigma.Registry
	publisher      events.Publisher
	clock          clock.Clock
	random         random.Random
	logger         *slog.Logger
	config         Config
}

// NewController creates a new room Controller
func NewController(
	storage storage.Storage,
	gameController *game.Controller,
	queue *roomqueue.Queue,
	timers *timers.Registry,
	registry *enigma.Registry,
	publisher events.Publisher,
	clock clock.Clock,
	random random.Random,
	logger *slog.Logger,
	config Config,
) *Controller {
	return &Controller{
		storage:        storage,
		gameController: gameController,
		queue:          queue,
		timers:         timers,
		registry:       registry,
		publisher:      publisher,
		clock:          clock,
		random:         random,
		logger:         logger.With(slog.String("component", "room")),
		config:         config,
	}
}

// CreateRoom creates an empty room with a fresh state for every puzzle.
// A code collision that slips past the existence check is returned as
// model.ErrRoomCodeTaken and may be retried.
func (c *Controller) CreateRoom(ctx context.Context) (*model.Room, error) {
	code, err := c.generateCode(ctx)
	if err != nil {
		return nil, err
	}

	states, err := c.registry.InitialStates()
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	room := &model.Room{
		ID:        model.RoomID(c.random.ID()),
		Code:      code,
		Timer:     c.gameController.StartSeconds(),
		Players:   []model.Player{},
		Enigmas:   states,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := c.storage.CreateRoom(ctx, room); err != nil {
		if errors.Is(err, model.ErrRoomCodeTaken) {
			return nil, fmt.Errorf("create room %s: %w", code, err)
		}
		c.logger.Error("failed to create room",
			slog.String("room", string(code)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	// Rooms nobody joins are torn down like rooms everybody left
	c.ScheduleRoomDeletion(code)

	c.logger.Info("room created", slog.String("room", string(code)))
	return room, nil
}

func (c *Controller) generateCode(ctx context.Context) (model.RoomCode, error) {
	for range codeAttempts {
		code := model.RoomCode(c.random.String(CodeLength, CodeAlphabet))
		exists, err := c.storage.RoomExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free code after %d attempts: %w", codeAttempts, model.ErrRoomCodeTaken)
}

// GetRoom retrieves a room by code
func (c *Controller) GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	return c.storage.GetRoom(ctx, code)
}

// RoomExists reports whether a room with the given code is live
func (c *Controller) RoomExists(ctx context.Context, code model.RoomCode) (bool, error) {
	return c.storage.RoomExists(ctx, code)
}

// Join adds a player to a room, or reconnects the player already holding
// the pseudo. attach may be nil.
func (c *Controller) Join(ctx context.Context, code model.RoomCode, pseudo string, attach AttachFunc) (*JoinResult, error) {
	pseudo = strings.TrimSpace(pseudo)
	if pseudo == "" || utf8.RuneCountInString(pseudo) > MaxPseudoLength {
		return nil, fmt.Errorf("%w: pseudo must be 1 to %d characters", model.ErrValidationFailed, MaxPseudoLength)
	}

	var result *JoinResult
	err := c.queue.Do(ctx, code, func(ctx context.Context) error {
		room, err := c.storage.GetRoom(ctx, code)
		if err != nil {
			return err
		}

		now := c.clock.Now()
		eventType := model.EventPlayerJoined
		reconnected := false

		player := room.GetPlayerByPseudo(pseudo)
		if player != nil {
			reconnected = true
			eventType = model.EventPlayerReconnected
			player.Connected = true
			player.LastSeenAt = now
			c.timers.Cancel(timers.PlayerRemovalKey(code, player.ID))
		} else {
			if room.IsFull() {
				return model.ErrRoomFull
			}
			room.Players = append(room.Players, model.Player{
				ID:           model.PlayerID(c.random.ID()),
				Pseudo:       pseudo,
				IsHost:       len(room.Players) == 0,
				Connected:    true,
				CurrentScene: model.SceneMain,
				JoinedAt:     now,
				LastSeenAt:   now,
			})
			player = &room.Players[len(room.Players)-1]
		}

		if err := c.storage.SavePlayer(ctx, code, player); err != nil {
			return err
		}
		if player.IsHost {
			room.HostPlayerID = player.ID
		}

		c.CancelRoomDeletion(code)

		self := *player
		if attach != nil {
			attach(room.Clone(), self)
		}

		c.logger.Info("player joined",
			slog.String("room", string(code)),
			slog.String("player_id", string(self.ID)),
			slog.Bool("reconnected", reconnected),
		)
		c.publish(code, self.ID, eventType, model.PlayerPayload{Player: self})

		c.gameController.ResumeTimer(room)

		result = &JoinResult{Room: room, Self: self, Reconnected: reconnected}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Leave removes a player immediately
func (c *Controller) Leave(ctx context.Context, code model.RoomCode, playerID model.PlayerID) error {
	return c.queue.Do(ctx, code, func(ctx context.Context) error {
		c.timers.Cancel(timers.PlayerRemovalKey(code, playerID))
		return c.removePlayer(ctx, code, playerID)
	})
}

// Disconnect marks a player as disconnected and starts their grace period.
// The player is removed if they have not rejoined when it expires.
func (c *Controller) Disconnect(ctx context.Context, code model.RoomCode, playerID model.PlayerID) error {
	return c.queue.Do(ctx, code, func(ctx context.Context) error {
		room, err := c.storage.GetRoom(ctx, code)
		if err != nil {
			return err
		}
		player := room.GetPlayer(playerID)
		if player == nil {
			return fmt.Errorf("%w: player %s", model.ErrNotFound, playerID)
		}

		player.Connected = false
		player.LastSeenAt = c.clock.Now()
		if err := c.storage.SavePlayer(ctx, code, player); err != nil {
			return err
		}

		c.logger.Info("player disconnected",
			slog.String("room", string(code)),
			slog.String("player_id", string(playerID)),
		)
		c.publish(code, playerID, model.EventPlayerDisconnected, model.PlayerPayload{Player: *player})

		c.timers.Schedule(timers.PlayerRemovalKey(code, playerID), c.config.GracePeriod, func() {
			c.expirePlayer(code, playerID)
		})
		return nil
	})
}

func (c *Controller) expirePlayer(code model.RoomCode, playerID model.PlayerID) {
	err := c.queue.Do(context.Background(), code, func(ctx context.Context) error {
		room, err := c.storage.GetRoom(ctx, code)
		if errors.Is(err, model.ErrRoomNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		// Stale if the player already left or came back
		player := room.GetPlayer(playerID)
		if player == nil || player.Connected {
			return nil
		}
		c.logger.Info("grace period expired",
			slog.String("room", string(code)),
			slog.String("player_id", string(playerID)),
		)
		return c.removePlayer(ctx, code, playerID)
	})
	if err != nil {
		c.logger.Error("failed to remove expired player",
			slog.String("room", string(code)),
			slog.String("player_id", string(playerID)),
			slog.String("error", err.Error()),
		)
	}
}

// removePlayer deletes a player, handing the host role to the earliest
// remaining player first. Must run on the room's queue.
func (c *Controller) removePlayer(ctx context.Context, code model.RoomCode, playerID model.PlayerID) error {
	room, err := c.storage.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	player := room.GetPlayer(playerID)
	if player == nil {
		return fmt.Errorf("%w: player %s", model.ErrNotFound, playerID)
	}
	departing := *player

	if departing.IsHost {
		if next := room.SuccessorHost(playerID); next != nil {
			if err := c.storage.TransferHost(ctx, code, playerID, next.ID); err != nil {
				return err
			}
			c.logger.Info("host transferred",
				slog.String("room", string(code)),
				slog.String("from", string(playerID)),
				slog.String("to", string(next.ID)),
			)
			c.publish(code, next.ID, model.EventHostChanged, model.HostChangedPayload{
				OldHostID: playerID,
				NewHostID: next.ID,
			})
		}
	}

	if err := c.storage.DeletePlayer(ctx, code, playerID); err != nil {
		return err
	}

	room, err = c.storage.GetRoom(ctx, code)
	if err != nil {
		return err
	}

	c.logger.Info("player left",
		slog.String("room", string(code)),
		slog.String("player_id", string(playerID)),
		slog.Int("remaining", len(room.Players)),
	)
	c.publish(code, playerID, model.EventPlayerLeft, model.PlayerPayload{Player: departing})

	if len(room.Players) == 0 {
		c.ScheduleRoomDeletion(code)
	}
	return nil
}

// ScheduleRoomDeletion arranges for the room to be torn down once the
// deletion delay passes, replacing any teardown already pending.
// The room survives if a player is present when the timer fires.
func (c *Controller) ScheduleRoomDeletion(code model.RoomCode) {
	c.timers.Schedule(timers.RoomDeletionKey(code), c.config.DeletionDelay, func() {
		c.deleteIfEmpty(code)
	})
}

// CancelRoomDeletion cancels the pending teardown of the room, if any
func (c *Controller) CancelRoomDeletion(code model.RoomCode) {
	c.timers.Cancel(timers.RoomDeletionKey(code))
}

func (c *Controller) deleteIfEmpty(code model.RoomCode) {
	err := c.queue.Do(context.Background(), code, func(ctx context.Context) error {
		room, err := c.storage.GetRoom(ctx, code)
		if errors.Is(err, model.ErrRoomNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(room.Players) > 0 {
			return nil
		}

		if err := c.storage.DeleteRoom(ctx, code); err != nil {
			return err
		}
		c.gameController.StopTimer(code)

		c.logger.Info("room deleted", slog.String("room", string(code)))
		c.publish(code, "", model.EventRoomClosed, nil)
		return nil
	})
	if err != nil {
		c.logger.Error("failed to delete room",
			slog.String("room", string(code)),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Controller) publish(code model.RoomCode, playerID model.PlayerID, eventType model.EventType, payload any) {
	c.publisher.Publish(model.Event{
		Type:      eventType,
		Timestamp: c.clock.Now(),
		RoomCode:  code,
		PlayerID:  playerID,
		Payload:   payload,
	})
}
