package sqlstore

import (
	"encoding/json"
	"time"

	"github.com/mcoot/escaperoom/internal/model"
)

type roomRecord struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Code         string    `gorm:"uniqueIndex;size:16;not null"`
	Started      bool      `gorm:"not null"`
	Timer        int       `gorm:"not null"`
	TimerStopped bool      `gorm:"not null"`
	HostPlayerID string    `gorm:"size:64"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

func (roomRecord) TableName() string { return "rooms" }

type playerRecord struct {
	ID           string    `gorm:"primaryKey;size:64"`
	RoomID       string    `gorm:"uniqueIndex:idx_players_room_pseudo,priority:1;size:64;not null"`
	Pseudo       string    `gorm:"uniqueIndex:idx_players_room_pseudo,priority:2;size:64;not null"`
	IsHost       bool      `gorm:"not null"`
	Connected    bool      `gorm:"not null"`
	CurrentScene string    `gorm:"size:32;not null"`
	JoinedAt     time.Time `gorm:"not null"`
	LastSeenAt   time.Time `gorm:"not null"`
}

func (playerRecord) TableName() string { return "players" }

type enigmaRecord struct {
	RoomID    string `gorm:"primaryKey;size:64"`
	EnigmaID  string `gorm:"primaryKey;size:32"`
	Completed bool   `gorm:"not null"`
	Version   int64  `gorm:"not null"`
	Data      string `gorm:"type:text;not null"`
}

func (enigmaRecord) TableName() string { return "enigmas" }

type messageRecord struct {
	Seq          uint      `gorm:"primaryKey;autoIncrement"`
	ID           string    `gorm:"uniqueIndex;size:64;not null"`
	RoomID       string    `gorm:"index:idx_messages_room;size:64;not null"`
	AuthorID     string    `gorm:"size:64;not null"`
	AuthorPseudo string    `gorm:"size:64;not null"`
	Text         string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
}

func (messageRecord) TableName() string { return "messages" }

// allRecords lists every table for migration
var allRecords = []any{&roomRecord{}, &playerRecord{}, &enigmaRecord{}, &messageRecord{}}

func toRoomRecord(room *model.Room) roomRecord {
	return roomRecord{
		ID:           string(room.ID),
		Code:         string(room.Code),
		Started:      room.Started,
		Timer:        room.Timer,
		TimerStopped: room.TimerStopped,
		HostPlayerID: string(room.HostPlayerID),
		CreatedAt:    room.CreatedAt,
		UpdatedAt:    room.UpdatedAt,
	}
}

func (r roomRecord) toModel() *model.Room {
	return &model.Room{
		ID:           model.RoomID(r.ID),
		Code:         model.RoomCode(r.Code),
		Started:      r.Started,
		Timer:        r.Timer,
		TimerStopped: r.TimerStopped,
		HostPlayerID: model.PlayerID(r.HostPlayerID),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func toPlayerRecord(roomID string, p *model.Player) playerRecord {
	return playerRecord{
		ID:           string(p.ID),
		RoomID:       roomID,
		Pseudo:       p.Pseudo,
		IsHost:       p.IsHost,
		Connected:    p.Connected,
		CurrentScene: string(p.CurrentScene),
		JoinedAt:     p.JoinedAt,
		LastSeenAt:   p.LastSeenAt,
	}
}

func (r playerRecord) toModel() model.Player {
	return model.Player{
		ID:           model.PlayerID(r.ID),
		Pseudo:       r.Pseudo,
		IsHost:       r.IsHost,
		Connected:    r.Connected,
		CurrentScene: model.Scene(r.CurrentScene),
		JoinedAt:     r.JoinedAt.UTC(),
		LastSeenAt:   r.LastSeenAt.UTC(),
	}
}

func toEnigmaRecord(roomID string, e *model.Enigma) enigmaRecord {
	return enigmaRecord{
		RoomID:    roomID,
		EnigmaID:  string(e.ID),
		Completed: e.Completed,
		Version:   e.Version,
		Data:      string(e.Data),
	}
}

func (r enigmaRecord) toModel() model.Enigma {
	return model.Enigma{
		ID:        model.EnigmaID(r.EnigmaID),
		Completed: r.Completed,
		Version:   r.Version,
		Data:      json.RawMessage(r.Data),
	}
}

func toMessageRecord(roomID string, m *model.Message) messageRecord {
	return messageRecord{
		ID:           string(m.ID),
		RoomID:       roomID,
		AuthorID:     string(m.AuthorID),
		AuthorPseudo: m.AuthorPseudo,
		Text:         m.Text,
		CreatedAt:    m.CreatedAt,
	}
}

func (r messageRecord) toModel(code model.RoomCode) model.Message {
	return model.Message{
		ID:           model.MessageID(r.ID),
		RoomID:       model.RoomID(r.RoomID),
		RoomCode:     code,
		AuthorID:     model.PlayerID(r.AuthorID),
		AuthorPseudo: r.AuthorPseudo,
		Text:         r.Text,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}
