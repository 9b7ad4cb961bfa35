package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/escaperoom/internal/model"
	"github.com/mcoot/escaperoom/internal/testutil"
)

func testRoom() *model.Room {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return &model.Room{
		ID:           "room-id",
		Code:         "AB12C3",
		Started:      true,
		Timer:        3599,
		HostPlayerID: "alice-id",
		Players: []model.Player{
			{ID: "alice-id", Pseudo: "alice", IsHost: true, Connected: true, CurrentScene: model.SceneMain, JoinedAt: now},
		},
		CreatedAt: now,
	}
}

func decode(t *testing.T, raw []byte) (string, map[string]any) {
	t.Helper()
	var env struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	return env.Type, env.Data
}

func TestEventFrame(t *testing.T) {
	alice := testRoom().Players[0]

	tests := []struct {
		name       string
		event      model.Event
		current    string
		legacy     string
		wantFields []string
	}{
		{
			name:       "player joined",
			event:      model.Event{Type: model.EventPlayerJoined, Payload: model.PlayerPayload{Player: alice}},
			current:    "room.newPlayer",
			legacy:     "room:new-player",
			wantFields: []string{"player"},
		},
		{
			name:       "player reconnected",
			event:      model.Event{Type: model.EventPlayerReconnected, Payload: model.PlayerPayload{Player: alice}},
			current:    "room.reconnected",
			legacy:     "room:reconnected",
			wantFields: []string{"player"},
		},
		{
			name:       "player disconnected",
			event:      model.Event{Type: model.EventPlayerDisconnected, Payload: model.PlayerPayload{Player: alice}},
			current:    "room.playerDisconnected",
			legacy:     "room:player-disconnected",
			wantFields: []string{"player"},
		},
		{
			name:       "player left",
			event:      model.Event{Type: model.EventPlayerLeft, Payload: model.PlayerPayload{Player: alice}},
			current:    "room.playerLeft",
			legacy:     "room:player-left",
			wantFields: []string{"player"},
		},
		{
			name:       "host changed",
			event:      model.Event{Type: model.EventHostChanged, Payload: model.HostChangedPayload{OldHostID: "alice-id", NewHostID: "bob-id"}},
			current:    "room.hostChanged",
			legacy:     "room:host-changed",
			wantFields: []string{"playerId"},
		},
		{
			name:    "game started",
			event:   model.Event{Type: model.EventGameStarted, Payload: model.RoomUpdatedPayload{Room: testRoom()}},
			current: "game.started",
			legacy:  "game:started",
		},
		{
			name:       "scene changed",
			event:      model.Event{Type: model.EventSceneChanged, Payload: model.SceneChangedPayload{Scene: model.SceneMain}},
			current:    "game.sceneChanged",
			legacy:     "game:scene-changed",
			wantFields: []string{"scene"},
		},
		{
			name: "room updated",
			event: model.Event{Type: model.EventRoomUpdated, Payload: model.RoomUpdatedPayload{
				Room:   testRoom(),
				Change: model.Change{Kind: model.ChangeKindTimer, Data: model.TimerChange{Timer: 3599}},
			}},
			current:    "game.update",
			legacy:     "game:update",
			wantFields: []string{"room", "event"},
		},
		{
			name:       "game over",
			event:      model.Event{Type: model.EventGameOver, Payload: model.GameOverPayload{Room: testRoom(), Reason: model.StopReasonTimeout}},
			current:    "game.over",
			legacy:     "game:over",
			wantFields: []string{"room", "reason"},
		},
		{
			name: "message posted",
			event: model.Event{Type: model.EventMessagePosted, Payload: model.MessagePostedPayload{Message: model.Message{
				ID: "m1", AuthorID: "alice-id", AuthorPseudo: "alice", Text: "hello",
			}}},
			current:    "chat.newMessage",
			legacy:     "chat:new-message",
			wantFields: []string{"message"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EventFrame(tt.event)
			require.NoError(t, err)

			name, data := decode(t, frame.Bytes(false))
			assert.Equal(t, tt.current, name)
			for _, field := range tt.wantFields {
				assert.Contains(t, data, field)
			}

			name, _ = decode(t, frame.Bytes(true))
			assert.Equal(t, tt.legacy, name)
		})
	}
}

func TestEventFrameLegacyChatMessageIsBare(t *testing.T) {
	frame, err := EventFrame(model.Event{Type: model.EventMessagePosted, Payload: model.MessagePostedPayload{Message: model.Message{
		ID: "m1", AuthorID: "alice-id", AuthorPseudo: "alice", Text: "hello",
	}}})
	require.NoError(t, err)

	_, data := decode(t, frame.Bytes(true))
	assert.Equal(t, "hello", data["text"])
	assert.Equal(t, map[string]any{"id": "alice-id", "pseudo": "alice"}, data["author"])
}

func TestEventFrameRejectsUnknownEvents(t *testing.T) {
	_, err := EventFrame(model.Event{Type: model.EventRoomClosed})
	assert.Error(t, err)
}

func TestBroadcasterRoutesEvents(t *testing.T) {
	manager := NewHubManager(testutil.NopLogger())
	defer manager.CloseAll()
	b := NewBroadcaster(manager, testutil.NopLogger())

	hub := manager.GetOrCreateHub("AB12C3")
	alice := newTestClient("alice-id", false)
	bob := newTestClient("bob-id", false)
	hub.Register(alice)
	hub.Register(bob)

	b.Publish(model.Event{Type: model.EventGameStarted, RoomCode: "AB12C3", Payload: model.RoomUpdatedPayload{Room: testRoom()}})
	assert.Equal(t, MsgGameStarted, receive(t, alice))
	assert.Equal(t, MsgGameStarted, receive(t, bob))

	b.Publish(model.Event{
		Type:      model.EventSceneChanged,
		RoomCode:  "AB12C3",
		Recipient: "alice-id",
		Payload:   model.SceneChangedPayload{Scene: model.SceneEnigma1},
	})
	assert.Equal(t, MsgSceneChanged, receive(t, alice))
	assertNothingQueued(t, bob)

	// Events for rooms without a hub are dropped
	b.Publish(model.Event{Type: model.EventGameStarted, RoomCode: "XY34Z5", Payload: model.RoomUpdatedPayload{Room: testRoom()}})

	b.Publish(model.Event{Type: model.EventRoomClosed, RoomCode: "AB12C3"})
	assert.Nil(t, manager.GetHub("AB12C3"))
}
