package enigma

import (
	"fmt"
	"unicode/utf8"

	"github.com/mcoot/escaperoom/internal/model"
)

// AmbianceState is the state of the ambiance puzzle
type AmbianceState struct {
	Ambiance *string `json:"ambiance"`
}

// Ambiance is the mood-setting puzzle. It records the chosen ambiance but
// has no solution yet, so it never completes.
func Ambiance() Puzzle {
	return Definition[AmbianceState]{
		Name: model.Enigma4,
		New:  func() AmbianceState { return AmbianceState{} },
		Mutate: func(s *AmbianceState, p Patch) (any, error) {
			if p.Op != OpUpdate {
				return nil, unsupported(model.Enigma4, p.Op)
			}
			if p.Value != nil && utf8.RuneCountInString(*p.Value) > MaxSlotValueLength {
				return nil, fmt.Errorf("%w: ambiance longer than %d characters", model.ErrValidationFailed, MaxSlotValueLength)
			}
			s.Ambiance = p.Value
			return map[string]any{"value": p.Value}, nil
		},
		Clear: func(s *AmbianceState) {
			s.Ambiance = nil
		},
	}
}
