package realtime

import (
	"fmt"
	"log/slog"

	"github.com/mcoot/escaperoom/internal/api/response"
	"github.com/mcoot/escaperoom/internal/metrics"
	"github.com/mcoot/escaperoom/internal/model"
	"github.com/mcoot/escaperoom/internal/services/events"
)

// Broadcaster delivers room events to the room's hub
type Broadcaster struct {
	hubManager *HubManager
	logger     *slog.Logger
}

// Ensure Broadcaster implements Publisher
var _ events.Publisher = (*Broadcaster)(nil)

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(hubManager *HubManager, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		hubManager: hubManager,
		logger:     logger.With(slog.String("component", "broadcaster")),
	}
}

// Publish converts an event to a frame and hands it to the room's hub
func (b *Broadcaster) Publish(event model.Event) {
	metrics.BroadcastsTotal.WithLabelValues(string(event.Type)).Inc()
	b.recordFinish(event)

	if event.Type == model.EventRoomClosed {
		b.hubManager.RemoveHub(event.RoomCode)
		return
	}

	hub := b.hubManager.GetHub(event.RoomCode)
	if hub == nil {
		return
	}

	frame, err := EventFrame(event)
	if err != nil {
		b.logger.Error("failed to encode event",
			slog.String("room", string(event.RoomCode)),
			slog.String("event", string(event.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	if event.Recipient != "" {
		hub.SendTo(event.Recipient, frame)
		return
	}
	if p, ok := event.Payload.(model.PlayerPayload); ok && event.Type == model.EventPlayerLeft {
		hub.BroadcastDeparture(p.Player.ID, frame)
		return
	}
	hub.Broadcast(frame)
}

func (b *Broadcaster) recordFinish(event model.Event) {
	switch p := event.Payload.(type) {
	case model.GameOverPayload:
		metrics.GamesFinishedTotal.WithLabelValues(string(p.Reason)).Inc()
	case model.RoomUpdatedPayload:
		if tc, ok := p.Change.Data.(model.TimerChange); ok && tc.Reason == model.StopReasonCompleted {
			metrics.GamesFinishedTotal.WithLabelValues(string(tc.Reason)).Inc()
		}
	}
}

// EventFrame encodes a room event as the message clients receive
func EventFrame(event model.Event) (Frame, error) {
	switch p := event.Payload.(type) {
	case model.PlayerPayload:
		name := map[model.EventType]string{
			model.EventPlayerJoined:       MsgNewPlayer,
			model.EventPlayerReconnected:  MsgReconnected,
			model.EventPlayerDisconnected: MsgPlayerDisconnected,
			model.EventPlayerLeft:         MsgPlayerLeft,
		}[event.Type]
		if name == "" {
			break
		}
		return NewFrame(name, playerData{Player: response.PlayerFromModel(p.Player)}, nil)

	case model.HostChangedPayload:
		return NewFrame(MsgHostChanged, hostChangedData{PlayerID: string(p.NewHostID)}, nil)

	case model.SceneChangedPayload:
		return NewFrame(MsgSceneChanged, sceneData{Scene: string(p.Scene)}, nil)

	case model.RoomUpdatedPayload:
		if event.Type == model.EventGameStarted {
			return NewFrame(MsgGameStarted, nil, nil)
		}
		return NewFrame(MsgGameUpdate, updateData{
			Room:  response.RoomFromModel(p.Room),
			Event: changeData{Kind: p.Change.Kind, Data: p.Change.Data},
		}, nil)

	case model.GameOverPayload:
		return NewFrame(MsgGameOver, gameOverData{
			Room:   response.RoomFromModel(p.Room),
			Reason: string(p.Reason),
		}, nil)

	case model.MessagePostedPayload:
		msg := response.MessageFromModel(p.Message)
		return NewFrame(MsgChatMessage, messageData{Message: msg}, msg)
	}
	return Frame{}, fmt.Errorf("no message for event %s", event.Type)
}
