package storage

import (
	"context"

	"github.com/mcoot/escaperoom/internal/model"
)

// Storage defines the interface for data persistence.
//
// Rooms are addressed by code. GetRoom always returns the full aggregate and
// callers own the returned value; nothing is shared with the backend.
type Storage interface {
	// Room operations

	// CreateRoom persists the room and its enigma states in one step.
	// Returns model.ErrRoomCodeTaken if the code is in use.
	CreateRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error)
	RoomExists(ctx context.Context, code model.RoomCode) (bool, error)
	// UpdateRoom writes the room-level fields (started, timer, stop flag, host).
	UpdateRoom(ctx context.Context, room *model.Room) error
	// DeleteRoom removes the room with its players, enigma states and messages.
	DeleteRoom(ctx context.Context, code model.RoomCode) error
	// DecrementTimer atomically lowers the timer by one second, never below
	// zero, and returns the new value.
	DecrementTimer(ctx context.Context, code model.RoomCode) (int, error)

	// Player operations

	// SavePlayer inserts or replaces a player. A host player is recorded
	// as the room's host in the same step.
	SavePlayer(ctx context.Context, code model.RoomCode, player *model.Player) error
	DeletePlayer(ctx context.Context, code model.RoomCode, id model.PlayerID) error
	// TransferHost moves the host flag from one player to another and records
	// the new host on the room in one step.
	TransferHost(ctx context.Context, code model.RoomCode, from, to model.PlayerID) error

	// Enigma operations

	// SaveEnigma writes the enigma state if its Version matches the stored
	// one, then increments Version. Returns model.ErrVersionConflict otherwise.
	SaveEnigma(ctx context.Context, code model.RoomCode, enigma *model.Enigma) error

	// Message operations
	AppendMessage(ctx context.Context, msg *model.Message) error
	// ListMessages returns up to limit of the most recent messages, oldest
	// first. A limit <= 0 returns all of them.
	ListMessages(ctx context.Context, code model.RoomCode, limit int) ([]model.Message, error)
}
