package enigma

import (
	"fmt"
	"math"

	"github.com/mcoot/escaperoom/internal/model"
)

// DefaultStoryboardOrder is the correct left-to-right order of the storyboards
var DefaultStoryboardOrder = []string{"image1", "image2", "image3", "image4", "image5", "image6"}

// Position is a point in normalized device coordinates, both axes in [-1, 1]
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Storyboard is one draggable image. Index is the slot it occupies;
// Position is where it was last dropped, nil while it sits in its slot.
type Storyboard struct {
	Name     string    `json:"name"`
	Position *Position `json:"position"`
	Index    int       `json:"index"`
}

// StoryboardState is the state of the storyboard ordering puzzle
type StoryboardState struct {
	Storyboards []Storyboard `json:"storyboards"`
}

func (s *StoryboardState) find(name string) *Storyboard {
	for i := range s.Storyboards {
		if s.Storyboards[i].Name == name {
			return &s.Storyboards[i]
		}
	}
	return nil
}

// Storyboards is the puzzle where players put film storyboards back in
// order. Storyboards start scrambled; the puzzle is solved when each one
// sits in the slot matching its place in order.
func Storyboards(order []string) Puzzle {
	return Definition[StoryboardState]{
		Name: model.Enigma1,
		New: func() StoryboardState {
			return StoryboardState{Storyboards: scrambled(order)}
		},
		Mutate: func(s *StoryboardState, p Patch) (any, error) {
			switch p.Op {
			case OpMove:
				return moveStoryboards(s, p.Items)
			case OpSwap:
				return swapStoryboards(s, p.A, p.B)
			default:
				return nil, unsupported(model.Enigma1, p.Op)
			}
		},
		Clear: func(s *StoryboardState) {
			s.Storyboards = scrambled(order)
		},
		IsSolved: func(s StoryboardState) bool {
			if len(s.Storyboards) != len(order) {
				return false
			}
			for want, name := range order {
				sb := s.find(name)
				if sb == nil || sb.Index != want {
					return false
				}
			}
			return true
		},
	}
}

// scrambled deals the storyboards into slots rotated by half the row, so the
// starting layout is never already solved.
func scrambled(order []string) []Storyboard {
	n := len(order)
	boards := make([]Storyboard, n)
	for i, name := range order {
		boards[i] = Storyboard{Name: name, Index: (i + n/2) % n}
	}
	return boards
}

func moveStoryboards(s *StoryboardState, items []MoveItem) (any, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: move needs at least one item", model.ErrValidationFailed)
	}
	// Validate everything first so a bad item leaves the state untouched
	for _, item := range items {
		if s.find(item.Key) == nil {
			return nil, fmt.Errorf("%w: storyboard %q", model.ErrNotFound, item.Key)
		}
		if !normalized(item.X) || !normalized(item.Y) {
			return nil, fmt.Errorf("%w: position of %q is outside [-1, 1]", model.ErrValidationFailed, item.Key)
		}
	}
	for _, item := range items {
		s.find(item.Key).Position = &Position{X: item.X, Y: item.Y}
	}
	return items, nil
}

func swapStoryboards(s *StoryboardState, a, b string) (any, error) {
	if a == b {
		return nil, fmt.Errorf("%w: cannot swap %q with itself", model.ErrValidationFailed, a)
	}
	first, second := s.find(a), s.find(b)
	if first == nil {
		return nil, fmt.Errorf("%w: storyboard %q", model.ErrNotFound, a)
	}
	if second == nil {
		return nil, fmt.Errorf("%w: storyboard %q", model.ErrNotFound, b)
	}
	first.Index, second.Index = second.Index, first.Index
	first.Position, second.Position = second.Position, first.Position
	return map[string]string{"slot1": a, "slot2": b}, nil
}

func normalized(v float64) bool {
	return !math.IsNaN(v) && v >= -1 && v <= 1
}
