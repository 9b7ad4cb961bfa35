package response

import (
	"encoding/json"
	"time"

	"github.com/mcoot/escaperoom/internal/model"
)

// Field names follow the browser client, which predates this server.

// Player represents a player in responses and room snapshots
type Player struct {
	ID           string    `json:"id"`
	Pseudo       string    `json:"pseudo"`
	IsHost       bool      `json:"isHost"`
	Connected    bool      `json:"connected"`
	CurrentScene string    `json:"currentScene"`
	JoinedAt     time.Time `json:"joinedAt"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
}

// PlayerFromModel converts a model.Player to a response Player
func PlayerFromModel(p model.Player) Player {
	return Player{
		ID:           string(p.ID),
		Pseudo:       p.Pseudo,
		IsHost:       p.IsHost,
		Connected:    p.Connected,
		CurrentScene: string(p.CurrentScene),
		JoinedAt:     p.JoinedAt,
		LastSeenAt:   p.LastSeenAt,
	}
}

// Enigma is the state of one puzzle in a room snapshot
type Enigma struct {
	Completed bool            `json:"completed"`
	Version   int64           `json:"version"`
	State     json.RawMessage `json:"state"`
}

// Room is the full room snapshot sent after every change
type Room struct {
	ID           string            `json:"id"`
	Code         string            `json:"code"`
	Started      bool              `json:"started"`
	Timer        int               `json:"timer"`
	TimerStopped bool              `json:"timerStopped"`
	HostPlayerID string            `json:"hostPlayerId,omitempty"`
	Players      []Player          `json:"players"`
	Enigmas      map[string]Enigma `json:"enigmas"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// RoomFromModel converts a model.Room to a response Room
func RoomFromModel(r *model.Room) Room {
	players := make([]Player, len(r.Players))
	for i, p := range r.Players {
		players[i] = PlayerFromModel(p)
	}
	enigmas := make(map[string]Enigma, len(r.Enigmas))
	for _, e := range r.Enigmas {
		state := e.Data
		if len(state) == 0 {
			state = json.RawMessage("null")
		}
		enigmas[string(e.ID)] = Enigma{Completed: e.Completed, Version: e.Version, State: state}
	}
	return Room{
		ID:           string(r.ID),
		Code:         string(r.Code),
		Started:      r.Started,
		Timer:        r.Timer,
		TimerStopped: r.TimerStopped,
		HostPlayerID: string(r.HostPlayerID),
		Players:      players,
		Enigmas:      enigmas,
		CreatedAt:    r.CreatedAt,
	}
}

// Author identifies who wrote a message
type Author struct {
	ID     string `json:"id"`
	Pseudo string `json:"pseudo"`
}

// Message represents a chat message
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Author    Author    `json:"author"`
}

// MessageFromModel converts a model.Message to a response Message
func MessageFromModel(m model.Message) Message {
	return Message{
		ID:        string(m.ID),
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
		Author:    Author{ID: string(m.AuthorID), Pseudo: m.AuthorPseudo},
	}
}

// CreateRoomResponse is the response for room creation
type CreateRoomResponse struct {
	Code string `json:"code"`
}

// MessagesResponse is the response for message history
type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

// HealthResponse is the response for the health check
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Rooms   int    `json:"rooms"`
	Sockets int    `json:"sockets"`
}
