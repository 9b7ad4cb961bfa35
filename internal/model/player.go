package model

import "time"

// PlayerID uniquely identifies a player across the system
type PlayerID string

// Player is a participant in a room. Players are scoped to a single room and
// identified within it by their pseudo.
type Player struct {
	ID           PlayerID
	Pseudo       string
	IsHost       bool
	Connected    bool
	CurrentScene Scene
	JoinedAt     time.Time
	LastSeenAt   time.Time
}
