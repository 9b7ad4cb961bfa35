package model

import "time"

// EventType identifies the type of event
type EventType string

const (
	// Presence events
	EventPlayerJoined       EventType = "player_joined"
	EventPlayerReconnected  EventType = "player_reconnected"
	EventPlayerDisconnected EventType = "player_disconnected"
	EventPlayerLeft         EventType = "player_left"
	EventHostChanged        EventType = "host_changed"
	EventRoomClosed         EventType = "room_closed"

	// Game events
	EventGameStarted  EventType = "game_started"
	EventSceneChanged EventType = "scene_changed"
	EventRoomUpdated  EventType = "room_updated"
	EventGameOver     EventType = "game_over"

	// Chat events
	EventMessagePosted EventType = "message_posted"
)

// Event is a room-wide notification. Events for one room are published in
// the order the room's mutations were applied.
type Event struct {
	Type      EventType
	Timestamp time.Time
	RoomCode  RoomCode
	PlayerID  PlayerID // The player who triggered or is affected
	Recipient PlayerID // Only this player receives the event; empty means the whole room
	Payload   any      // Type-specific data
}

// Change describes what a room update changed, so clients can apply it
// incrementally instead of diffing snapshots.
type Change struct {
	Kind string
	Data any
}

// Change kinds emitted by the game itself; puzzles emit "<enigma>:<op>" kinds.
const (
	ChangeKindTimer       = "game:timer"
	ChangeKindSceneChange = "game:scene-change"
)

// StopReason records why a room's countdown stopped
type StopReason string

const (
	StopReasonCompleted StopReason = "completed"
	StopReasonTimeout   StopReason = "timeout"
)

// PlayerPayload carries the player a presence event is about
type PlayerPayload struct {
	Player Player
}

// HostChangedPayload contains data for host changed events
type HostChangedPayload struct {
	OldHostID PlayerID
	NewHostID PlayerID
}

// SceneChangedPayload contains data for scene changed events
type SceneChangedPayload struct {
	Scene Scene
}

// TimerChange is the change data of a countdown tick
type TimerChange struct {
	Timer   int        `json:"timer"`
	Stopped bool       `json:"stopped"`
	Reason  StopReason `json:"reason,omitempty"`
}

// SubmitResult is the change data of a puzzle submission
type SubmitResult struct {
	Completed bool `json:"completed"`
}

// RoomUpdatedPayload carries a fresh snapshot and what changed
type RoomUpdatedPayload struct {
	Room   *Room
	Change Change
}

// GameOverPayload contains data for game over events
type GameOverPayload struct {
	Room   *Room
	Reason StopReason
}

// MessagePostedPayload contains data for chat events
type MessagePostedPayload struct {
	Message Message
}
