package enigma

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/mcoot/escaperoom/internal/model"
)

// MaxSlotValueLength bounds a single slot assignment
const MaxSlotValueLength = 100

// DefaultLightingSolution is the lighting style of each photo, in order
var DefaultLightingSolution = []string{
	"Éclairage 3 points",
	"Low-key (film noir)",
	"High-key",
	"Contre-jour",
	"Lumière naturelle",
}

// DefaultRoleSolution is the character behind each role card, in order
var DefaultRoleSolution = []string{"jack", "molly", "caledon", "fabrizio", "rose", "lovejoy"}

// PhotoState is the state of the lighting puzzle
type PhotoState struct {
	Photos []string `json:"photos"`
}

// RoleState is the state of the casting puzzle
type RoleState struct {
	Roles []string `json:"roles"`
}

// Photos is the puzzle where players match each photo with its lighting
// technique. Reset leaves one empty slot per photo.
func Photos(solution []string) Puzzle {
	return Definition[PhotoState]{
		Name: model.Enigma2,
		New:  func() PhotoState { return PhotoState{Photos: []string{}} },
		Mutate: func(s *PhotoState, p Patch) (any, error) {
			slots, data, err := assignSlot(model.Enigma2, s.Photos, len(solution), p)
			if err != nil {
				return nil, err
			}
			s.Photos = slots
			return data, nil
		},
		Clear: func(s *PhotoState) {
			s.Photos = make([]string, len(solution))
		},
		IsSolved: func(s PhotoState) bool {
			return slices.Equal(s.Photos, solution)
		},
	}
}

// Roles is the puzzle where players cast each character. Reset empties
// every slot.
func Roles(solution []string) Puzzle {
	return Definition[RoleState]{
		Name: model.Enigma3,
		New:  func() RoleState { return RoleState{Roles: []string{}} },
		Mutate: func(s *RoleState, p Patch) (any, error) {
			slots, data, err := assignSlot(model.Enigma3, s.Roles, len(solution), p)
			if err != nil {
				return nil, err
			}
			s.Roles = slots
			return data, nil
		},
		Clear: func(s *RoleState) {
			s.Roles = []string{}
		},
		IsSolved: func(s RoleState) bool {
			return slices.Equal(s.Roles, solution)
		},
	}
}

// assignSlot sets slots[p.Index] to p.Value, padding with empty slots up
// to size so every slot before the assigned one exists.
func assignSlot(id model.EnigmaID, slots []string, size int, p Patch) ([]string, any, error) {
	if p.Op != OpUpdate {
		return nil, nil, unsupported(id, p.Op)
	}
	if p.Index < 0 || p.Index >= size {
		return nil, nil, fmt.Errorf("%w: slot %d is outside 0..%d", model.ErrValidationFailed, p.Index, size-1)
	}
	value := ""
	if p.Value != nil {
		value = *p.Value
	}
	if utf8.RuneCountInString(value) > MaxSlotValueLength {
		return nil, nil, fmt.Errorf("%w: slot value longer than %d characters", model.ErrValidationFailed, MaxSlotValueLength)
	}

	out := slices.Clone(slots)
	for len(out) < size {
		out = append(out, "")
	}
	out[p.Index] = value
	return out, map[string]any{"index": p.Index, "value": value}, nil
}
