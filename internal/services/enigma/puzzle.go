// Package enigma defines the puzzles of the escape room as pluggable strategies.
package enigma

import (
	"encoding/json"
	"fmt"

	"github.com/mcoot/escaperoom/internal/model"
)

// Op names a patch operation
type Op string

const (
	OpMove   Op = "move"
	OpSwap   Op = "swap-slots"
	OpUpdate Op = "update"
)

// MoveItem places one draggable item at normalized coordinates
type MoveItem struct {
	Key string  `json:"key"`
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
}

// Patch is a bounded mutation requested by a client. Which fields are read
// depends on Op.
type Patch struct {
	Op    Op
	Items []MoveItem // OpMove
	A, B  string     // OpSwap
	Index int        // OpUpdate
	Value *string    // OpUpdate; nil clears
}

// Puzzle is the strategy behind one enigma. State is exchanged as the raw
// JSON kept in model.Enigma.Data so storage never needs to know its shape.
type Puzzle interface {
	ID() model.EnigmaID

	// Initial returns the state a new room starts with
	Initial() (json.RawMessage, error)

	// Apply mutates the state and returns it with the change data clients
	// receive alongside the snapshot
	Apply(state json.RawMessage, patch Patch) (json.RawMessage, any, error)

	// Reset clears player assignments. Completion is not part of the state.
	Reset(state json.RawMessage) (json.RawMessage, error)

	// Solved reports whether the state satisfies the solution
	Solved(state json.RawMessage) (bool, error)
}

// Definition builds a Puzzle from functions over a typed state
type Definition[S any] struct {
	Name     model.EnigmaID
	New      func() S
	Mutate   func(s *S, p Patch) (any, error)
	Clear    func(s *S)
	IsSolved func(s S) bool // nil means the puzzle can never be solved
}

// Ensure Definition implements Puzzle
var _ Puzzle = Definition[struct{}]{}

func (d Definition[S]) ID() model.EnigmaID {
	return d.Name
}

func (d Definition[S]) Initial() (json.RawMessage, error) {
	return json.Marshal(d.New())
}

func (d Definition[S]) Apply(state json.RawMessage, patch Patch) (json.RawMessage, any, error) {
	s, err := d.decode(state)
	if err != nil {
		return nil, nil, err
	}
	if d.Mutate == nil {
		return nil, nil, unsupported(d.Name, patch.Op)
	}
	data, err := d.Mutate(&s, patch)
	if err != nil {
		return nil, nil, err
	}
	out, err := json.Marshal(s)
	if err != nil {
		return nil, nil, err
	}
	return out, data, nil
}

func (d Definition[S]) Reset(state json.RawMessage) (json.RawMessage, error) {
	s, err := d.decode(state)
	if err != nil {
		return nil, err
	}
	if d.Clear != nil {
		d.Clear(&s)
	}
	return json.Marshal(s)
}

func (d Definition[S]) Solved(state json.RawMessage) (bool, error) {
	if d.IsSolved == nil {
		return false, nil
	}
	s, err := d.decode(state)
	if err != nil {
		return false, err
	}
	return d.IsSolved(s), nil
}

func (d Definition[S]) decode(state json.RawMessage) (S, error) {
	s := d.New()
	if len(state) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(state, &s); err != nil {
		return s, fmt.Errorf("decode %s state: %w", d.Name, err)
	}
	return s, nil
}

func unsupported(id model.EnigmaID, op Op) error {
	return fmt.Errorf("%w: %s does not support %q", model.ErrValidationFailed, id, op)
}

// ChangeKind names the change descriptor emitted for an operation on a puzzle
func ChangeKind(id model.EnigmaID, op string) string {
	return fmt.Sprintf("%s:%s", id, op)
}

// Change kind suffixes for operations that are not patches
const (
	KindReset        = "reset"
	KindSubmitResult = "submit-result"
)
