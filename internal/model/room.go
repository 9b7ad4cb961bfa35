package model

import (
	"sort"
	"time"
)

// RoomCode is a human-readable identifier for joining rooms
type RoomCode string

// RoomID is the internal identifier of a room
type RoomID string

// MaxPlayers is the capacity of a room
const MaxPlayers = 2

// Room is the aggregate that is loaded, mutated and broadcast as a unit:
// the room record, its players and one state per puzzle.
type Room struct {
	ID           RoomID
	Code         RoomCode
	Started      bool
	Timer        int // seconds remaining
	TimerStopped bool
	HostPlayerID PlayerID // empty while the room has no players
	Players      []Player // ordered by JoinedAt
	Enigmas      []Enigma // ordered by ID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GetHost returns the current host, or nil if none
func (r *Room) GetHost() *Player {
	for i := range r.Players {
		if r.Players[i].IsHost {
			return &r.Players[i]
		}
	}
	return nil
}

// GetPlayer returns the player with the given ID, or nil if not found
func (r *Room) GetPlayer(id PlayerID) *Player {
	for i := range r.Players {
		if r.Players[i].ID == id {
			return &r.Players[i]
		}
	}
	return nil
}

// GetPlayerByPseudo returns the player with the given pseudo, or nil if not found
func (r *Room) GetPlayerByPseudo(pseudo string) *Player {
	for i := range r.Players {
		if r.Players[i].Pseudo == pseudo {
			return &r.Players[i]
		}
	}
	return nil
}

// IsFull reports whether the room has reached capacity
func (r *Room) IsFull() bool {
	return len(r.Players) >= MaxPlayers
}

// SuccessorHost returns the player that inherits the host role when the
// given player leaves: the earliest-joined remaining player.
func (r *Room) SuccessorHost(leaving PlayerID) *Player {
	var next *Player
	for i := range r.Players {
		p := &r.Players[i]
		if p.ID == leaving {
			continue
		}
		if next == nil || p.JoinedAt.Before(next.JoinedAt) {
			next = p
		}
	}
	return next
}

// GetEnigma returns the state of the given puzzle, or nil if the room has none
func (r *Room) GetEnigma(id EnigmaID) *Enigma {
	for i := range r.Enigmas {
		if r.Enigmas[i].ID == id {
			return &r.Enigmas[i]
		}
	}
	return nil
}

// AllCompleted reports whether every listed puzzle is completed.
// A puzzle the room does not hold counts as not completed.
func (r *Room) AllCompleted(ids []EnigmaID) bool {
	for _, id := range ids {
		e := r.GetEnigma(id)
		if e == nil || !e.Completed {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the room
func (r *Room) Clone() *Room {
	clone := *r
	clone.Players = append([]Player(nil), r.Players...)
	clone.Enigmas = make([]Enigma, len(r.Enigmas))
	for i, e := range r.Enigmas {
		clone.Enigmas[i] = e.Clone()
	}
	return &clone
}

// SortPlayers orders players by join time
func SortPlayers(players []Player) {
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})
}

// SortEnigmas orders enigma states by ID
func SortEnigmas(enigmas []Enigma) {
	sort.Slice(enigmas, func(i, j int) bool {
		return enigmas[i].ID < enigmas[j].ID
	})
}
