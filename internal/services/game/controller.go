// Package game runs a started room: the host's start command, per-player
// scene navigation, puzzle mutations and the countdown.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/escaperoom/internal/dependencies/clock"
	"github.com/mcoot/escaperoom/internal/model"
	"github.com/mcoot/escaperoom/internal/services/enigma"
	"github.com/mcoot/escaperoom/internal/services/events"
	"github.com/mcoot/escaperoom/internal/services/roomqueue"
	"github.com/mcoot/escaperoom/internal/services/timers"
	"github.com/mcoot/escaperoom/internal/storage"
)

// maxSaveAttempts bounds retries of an enigma write that lost a version race
const maxSaveAttempts = 3

// Config holds game settings
type Config struct {
	// TimerStart is the countdown a game starts with
	TimerStart time.Duration
	// TickInterval is the period of the countdown loop
	TickInterval time.Duration
	// Gating lists the puzzles that must all be completed to win
	Gating []model.EnigmaID
}

// DefaultConfig returns the default game configuration
func DefaultConfig() Config {
	return Config{
		TimerStart:   time.Hour,
		TickInterval: time.Second,
		Gating:       []model.EnigmaID{model.Enigma1, model.Enigma2, model.Enigma3},
	}
}

// Controller manages the game state machine and the countdown of each room
type Controller struct {
	storage   storage.Storage
	queue     *roomqueue.Queue
	timers    *timers.Registry
	registry  *enigma.Registry
	publisher events.Publisher
	clock     clock.Clock
	logger    *slog.Logger
	config    Config
}

// NewController creates a new game Controller
func NewController(
	storage storage.Storage,
	queue *roomqueue.Queue,
	timers *timers.Registry,
	registry *enigma.Registry,
	publisher events.Publisher,
	clock clock.Clock,
	logger *slog.Logger,
	config Config,
) *Controller {
	return &Controller{
		storage:   storage,
		queue:     queue,
		timers:    timers,
		registry:  registry,
		publisher: publisher,
		clock:     clock,
		logger:    logger.With(slog.String("component", "game")),
		config:    config,
	}
}

// StartSeconds is the countdown, in seconds, a room starts with
func (c *Controller) StartSeconds() int {
	return int(c.config.TimerStart / time.Second)
}

// StartGame starts the countdown of a room. Only the host may start, and only once.
func (c *Controller) StartGame(ctx context.Context, code model.RoomCode, playerID model.PlayerID) (*model.Room, error) {
	var started *model.Room
	err := c.queue.Do(ctx, code, func(ctx context.Context) error {
		room, err := c.storage.GetRoom(ctx, code)
		if err != nil {
			return err
		}

		host := room.GetHost()
		if host == nil || host.ID != playerID {
			return model.ErrNotAuthorized
		}
		if room.Started {
			return model.ErrGameAlreadyStarted
		}

		room.Started = true
		room.Timer = c.StartSeconds()
		room.TimerStopped = false
		room.UpdatedAt = c.clock.Now()
		if err := c.storage.UpdateRoom(ctx, room); err != nil {
			return err
		}

		c.logger.Info("game started",
			slog.String("room", string(code)),
			slog.Int("timer", room.Timer),
		)

		c.publish(code, playerID, model.EventGameStarted, model.RoomUpdatedPayload{Room: room.Clone()})
		c.publish(code, playerID, model.EventSceneChanged, model.SceneChangedPayload{Scene: model.SceneMain})
		c.scheduleTick(code)

		started = room
		return nil
	})
	return started, err
}

// ChangeScene moves a player to another scene. Only the requesting player
// is told about the change.
func (c *Controller) ChangeScene(ctx context.Context, code model.RoomCode, playerID model.PlayerID, target model.Scene) (*model.Room, error) {
	var updated *model.Room
	err := c.queue.Do(ctx, code, func(ctx context.Context) error {
		room, err := c.storage.GetRoom(ctx, code)
		if err != nil {
			return err
		}
		player := room.GetPlayer(playerID)
		if player == nil {
			return fmt.Errorf("%w: player %s", model.ErrNotFound, playerID)
		}

		if !CanChangeScene(player.CurrentScene, target, c.registry.Has) {
			return fmt.Errorf("%w: %s to %s", model.ErrInvalidSceneChange, player.CurrentScene, target)
		}

		player.CurrentScene = target
		player.LastSeenAt = c.clock.Now()
		if err := c.storage.SavePlayer(ctx, code, player); err != nil {
			return err
		}

		c.publisher.Publish(model.Event{
			Type:      model.EventSceneChanged,
			Timestamp: c.clock.Now(),
			RoomCode:  code,
			PlayerID:  playerID,
			Recipient: playerID,
			Payload:   model.SceneChangedPayload{Scene: target},
		})
		c.publisher.Publish(model.Event{
			Type:      model.EventRoomUpdated,
			Timestamp: c.clock.Now(),
			RoomCode:  code,
			PlayerID:  playerID,
			Recipient: playerID,
			Payload: model.RoomUpdatedPayload{
				Room: room.Clone(),
				Change: model.Change{
					Kind: model.ChangeKindSceneChange,
					Data: map[string]any{"playerId": playerID, "scene": target},
				},
			},
		})

		updated = room
		return nil
	})
	return updated, err
}

// ApplyPatch applies a bounded mutation to a puzzle. An empty enigma ID
// targets the puzzle on the player's current scene.
func (c *Controller) ApplyPatch(ctx context.Context, code model.RoomCode, playerID model.PlayerID, id model.EnigmaID, patch enigma.Patch) (*model.Room, error) {
	return c.mutate(ctx, code, playerID, id, func(p enigma.Puzzle, e *model.Enigma) (model.Change, bool, error) {
		data, change, err := p.Apply(e.Data, patch)
		if err != nil {
			return model.Change{}, false, err
		}
		e.Data = data
		return model.Change{Kind: enigma.ChangeKind(e.ID, string(patch.Op)), Data: change}, true, nil
	})
}

// ResetEnigma clears the assignments of a puzzle. Completion is kept.
func (c *Controller) ResetEnigma(ctx context.Context, code model.RoomCode, playerID model.PlayerID, id model.EnigmaID) (*model.Room, error) {
	return c.mutate(ctx, code, playerID, id, func(p enigma.Puzzle, e *model.Enigma) (model.Change, bool, error) {
		data, err := p.Reset(e.Data)
		if err != nil {
			return model.Change{}, false, err
		}
		e.Data = data
		return model.Change{Kind: enigma.ChangeKind(e.ID, enigma.KindReset)}, true, nil
	})
}

// Submit checks a puzzle against its solution and latches it as completed
// when solved. The result is broadcast whatever the outcome.
func (c *Controller) Submit(ctx context.Context, code model.RoomCode, playerID model.PlayerID, id model.EnigmaID) (bool, error) {
	var completed bool
	_, err := c.mutate(ctx, code, playerID, id, func(p enigma.Puzzle, e *model.Enigma) (model.Change, bool, error) {
		solved, err := p.Solved(e.Data)
		if err != nil {
			return model.Change{}, false, err
		}
		dirty := solved && !e.Completed
		if dirty {
			e.Completed = true
		}
		completed = e.Completed
		return model.Change{
			Kind: enigma.ChangeKind(e.ID, enigma.KindSubmitResult),
			Data: model.SubmitResult{Completed: e.Completed},
		}, dirty, nil
	})
	return completed, err
}

type mutation func(p enigma.Puzzle, e *model.Enigma) (change model.Change, dirty bool, err error)

func (c *Controller) mutate(ctx context.Context, code model.RoomCode, playerID model.PlayerID, id model.EnigmaID, fn mutation) (*model.Room, error) {
	var updated *model.Room
	err := c.queue.Do(ctx, code, func(ctx context.Context) error {
		var change model.Change
		for attempt := 1; ; attempt++ {
			room, err := c.storage.GetRoom(ctx, code)
			if err != nil {
				return err
			}
			player := room.GetPlayer(playerID)
			if player == nil {
				return fmt.Errorf("%w: player %s", model.ErrNotFound, playerID)
			}

			target := id
			if target == "" {
				target = player.CurrentScene.EnigmaID()
			}
			if target == "" {
				return fmt.Errorf("%w: player is not on a puzzle scene", model.ErrValidationFailed)
			}
			puzzle, err := c.registry.Get(target)
			if err != nil {
				return err
			}
			state := room.GetEnigma(target)
			if state == nil {
				return fmt.Errorf("%w: enigma %s", model.ErrNotFound, target)
			}

			next := state.Clone()
			var dirty bool
			change, dirty, err = fn(puzzle, &next)
			if err != nil {
				return err
			}
			if !dirty {
				break
			}

			err = c.storage.SaveEnigma(ctx, code, &next)
			if errors.Is(err, model.ErrVersionConflict) && attempt < maxSaveAttempts {
				c.logger.Warn("enigma version conflict, retrying",
					slog.String("room", string(code)),
					slog.String("enigma", string(target)),
					slog.Int("attempt", attempt),
				)
				continue
			}
			if err != nil {
				return err
			}
			break
		}

		room, err := c.storage.GetRoom(ctx, code)
		if err != nil {
			return err
		}
		c.publish(code, playerID, model.EventRoomUpdated, model.RoomUpdatedPayload{Room: room.Clone(), Change: change})
		updated = room
		return nil
	})
	return updated, err
}

// ResumeTimer re-arms the countdown of a running room whose loop is not
// scheduled, such as after a restart. Must be called on the room's queue.
func (c *Controller) ResumeTimer(room *model.Room) {
	if !room.Started || room.TimerStopped {
		return
	}
	if c.timers.Pending(timers.TickKey(room.Code)) {
		return
	}
	c.logger.Info("resuming countdown", slog.String("room", string(room.Code)))
	c.scheduleTick(room.Code)
}

// StopTimer cancels the countdown loop of a room
func (c *Controller) StopTimer(code model.RoomCode) {
	c.timers.Cancel(timers.TickKey(code))
}

func (c *Controller) scheduleTick(code model.RoomCode) {
	c.timers.Schedule(timers.TickKey(code), c.config.TickInterval, func() {
		err := c.queue.Do(context.Background(), code, func(ctx context.Context) error {
			again, err := c.tick(ctx, code)
			if again {
				c.scheduleTick(code)
			}
			return err
		})
		if err != nil {
			c.logger.Error("countdown tick failed",
				slog.String("room", string(code)),
				slog.String("error", err.Error()),
			)
		}
	})
}

// tick advances the countdown by one step and reports whether the loop
// should keep running.
func (c *Controller) tick(ctx context.Context, code model.RoomCode) (bool, error) {
	room, err := c.storage.GetRoom(ctx, code)
	if errors.Is(err, model.ErrRoomNotFound) {
		return false, nil
	}
	if err != nil {
		// Keep the loop alive through transient store failures
		return true, err
	}
	if !room.Started || room.TimerStopped {
		return false, nil
	}

	switch {
	case room.AllCompleted(c.config.Gating):
		if err := c.stop(ctx, room); err != nil {
			return true, err
		}
		c.logger.Info("room escaped",
			slog.String("room", string(code)),
			slog.Int("timer", room.Timer),
		)
		c.publishTimer(room, model.StopReasonCompleted)
		return false, nil

	case room.Timer > 0:
		remaining, err := c.storage.DecrementTimer(ctx, code)
		if err != nil {
			return true, err
		}
		room.Timer = remaining
		c.publishTimer(room, "")
		return true, nil

	default:
		if err := c.stop(ctx, room); err != nil {
			return true, err
		}
		c.logger.Info("room timed out", slog.String("room", string(code)))
		c.publishTimer(room, model.StopReasonTimeout)
		c.publish(code, "", model.EventGameOver, model.GameOverPayload{Room: room.Clone(), Reason: model.StopReasonTimeout})
		return false, nil
	}
}

func (c *Controller) stop(ctx context.Context, room *model.Room) error {
	room.TimerStopped = true
	room.UpdatedAt = c.clock.Now()
	return c.storage.UpdateRoom(ctx, room)
}

func (c *Controller) publishTimer(room *model.Room, reason model.StopReason) {
	c.publish(room.Code, "", model.EventRoomUpdated, model.RoomUpdatedPayload{
		Room: room.Clone(),
		Change: model.Change{
			Kind: model.ChangeKindTimer,
			Data: model.TimerChange{Timer: room.Timer, Stopped: room.TimerStopped, Reason: reason},
		},
	})
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
