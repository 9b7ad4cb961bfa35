package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcoot/escaperoom/internal/api/response"
	"github.com/mcoot/escaperoom/internal/metrics"
	"github.com/mcoot/escaperoom/internal/model"
	"github.com/mcoot/escaperoom/internal/services/chat"
	"github.com/mcoot/escaperoom/internal/services/game"
	"github.com/mcoot/escaperoom/internal/services/room"
)

// Services are the operations a session dispatches intents to
type Services struct {
	Rooms *room.Controller
	Games *game.Controller
	Chat  *chat.Service
}

// Session is the protocol state of one connection. A session starts
// unjoined; joining binds it to one player of one room until it leaves or
// the connection drops. Handle and Close must be called from one goroutine.
type Session struct {
	services Services
	hubs     *HubManager
	client   *Client
	logger   *slog.Logger

	hub      *Hub
	code     model.RoomCode
	playerID model.PlayerID
}

// NewSession creates an unjoined session for a client
func NewSession(services Services, hubs *HubManager, client *Client, logger *slog.Logger) *Session {
	return &Session{
		services: services,
		hubs:     hubs,
		client:   client,
		logger:   logger,
	}
}

// Joined reports whether the session is bound to a player. A session whose
// player left the room from another connection is unbound by the hub.
func (s *Session) Joined() bool {
	if s.hub != nil && s.client.PlayerID() != s.playerID {
		s.hub, s.code, s.playerID = nil, "", ""
	}
	return s.hub != nil
}

// Handle executes one intent. Failures are reported to this client only.
func (s *Session) Handle(ctx context.Context, env Envelope) {
	intent, _, err := DecodeIntent(env)
	label := intent.Type
	if err != nil {
		// Client-chosen names must not become label values
		label = "invalid"
	}
	metrics.IntentsTotal.WithLabelValues(label).Inc()
	if err == nil && !s.client.Allow() {
		err = fmt.Errorf("%w: too many intents", model.ErrValidationFailed)
	}
	if err == nil {
		err = s.dispatch(ctx, intent)
	}
	if err != nil {
		s.fail(intent, err)
	}
}

func (s *Session) dispatch(ctx context.Context, intent Intent) error {
	if intent.Type == IntentJoin {
		return s.join(ctx, intent)
	}
	if !s.Joined() {
		return fmt.Errorf("%w: join a room first", model.ErrValidationFailed)
	}

	switch intent.Type {
	case IntentLeave:
		return s.leave(ctx)
	case IntentChatSend:
		_, err := s.services.Chat.Send(ctx, s.code, s.playerID, intent.Text)
		return err
	case IntentStart:
		_, err := s.services.Games.StartGame(ctx, s.code, s.playerID)
		return err
	case IntentChangeScene:
		_, err := s.services.Games.ChangeScene(ctx, s.code, s.playerID, intent.Scene)
		return err
	case IntentMove, IntentSwapSlots, IntentUpdate:
		_, err := s.services.Games.ApplyPatch(ctx, s.code, s.playerID, intent.Enigma, intent.Patch)
		return err
	case IntentReset:
		_, err := s.services.Games.ResetEnigma(ctx, s.code, s.playerID, intent.Enigma)
		return err
	case IntentSubmit:
		_, err := s.services.Games.Submit(ctx, s.code, s.playerID, intent.Enigma)
		return err
	default:
		return fmt.Errorf("%w: unknown intent %q", model.ErrValidationFailed, intent.Type)
	}
}

func (s *Session) join(ctx context.Context, intent Intent) error {
	if s.Joined() {
		return fmt.Errorf("%w: already in room %s", model.ErrValidationFailed, s.code)
	}

	_, err := s.services.Rooms.Join(ctx, intent.Code, intent.Pseudo, func(r *model.Room, self model.Player) {
		frame, err := NewFrame(MsgJoined, joinedData{
			Room: response.RoomFromModel(r),
			Self: response.PlayerFromModel(self),
		}, nil)
		if err != nil {
			s.logger.Error("failed to encode snapshot", slog.String("error", err.Error()))
		} else {
			s.client.Enqueue(frame)
		}

		hub := s.hubs.GetOrCreateHub(r.Code)
		s.client.setPlayerID(self.ID)
		hub.Register(s.client)
		s.hub, s.code, s.playerID = hub, r.Code, self.ID
	})
	return err
}

func (s *Session) leave(ctx context.Context) error {
	code, playerID := s.code, s.playerID
	s.detach()
	return s.services.Rooms.Leave(ctx, code, playerID)
}

func (s *Session) detach() {
	if s.hub != nil {
		s.hub.Unregister(s.client)
	}
	s.client.setPlayerID("")
	s.hub, s.code, s.playerID = nil, "", ""
}

// Close handles the loss of the connection. The player is marked
// disconnected unless another connection of theirs is still registered.
func (s *Session) Close(ctx context.Context) {
	if !s.Joined() {
		return
	}
	hub, code, playerID := s.hub, s.code, s.playerID
	s.detach()
	if hub.HasPlayer(playerID) {
		return
	}

	err := s.services.Rooms.Disconnect(ctx, code, playerID)
	if err != nil && !errors.Is(err, model.ErrRoomNotFound) && !errors.Is(err, model.ErrNotFound) {
		s.logger.Error("failed to record disconnect",
			slog.String("room", string(code)),
			slog.String("player_id", string(playerID)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Session) fail(intent Intent, err error) {
	code := CodeFor(err)
	metrics.ErrorsTotal.WithLabelValues(string(code)).Inc()

	message := err.Error()
	if code == CodeInternal {
		s.logger.Error("intent failed",
			slog.String("intent", intent.Type),
			slog.String("room", string(s.code)),
			slog.String("error", err.Error()),
		)
		message = "internal error"
	}
	s.client.Enqueue(ErrorFrame(code, message))
}
