package model

import "encoding/json"

// EnigmaID identifies a puzzle kind. Every room holds one state per registered puzzle.
type EnigmaID string

const (
	Enigma1 EnigmaID = "enigma1"
	Enigma2 EnigmaID = "enigma2"
	Enigma3 EnigmaID = "enigma3"
	Enigma4 EnigmaID = "enigma4"
)

// Enigma is the persisted state of one puzzle in one room.
// Data is owned by the puzzle strategy and opaque to storage.
type Enigma struct {
	ID        EnigmaID
	Completed bool
	Version   int64
	Data      json.RawMessage
}

// Clone returns a deep copy of the enigma
func (e Enigma) Clone() Enigma {
	clone := e
	if e.Data != nil {
		clone.Data = append(json.RawMessage(nil), e.Data...)
	}
	return clone
}
