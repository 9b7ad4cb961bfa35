package enigma

import (
	"fmt"
	"sort"

	"github.com/mcoot/escaperoom/internal/model"
)

// Registry maps enigma IDs to their puzzle strategies
type Registry struct {
	puzzles map[model.EnigmaID]Puzzle
	ids     []model.EnigmaID
}

// NewRegistry creates a registry holding the given puzzles.
// Registering the same ID twice panics.
func NewRegistry(puzzles ...Puzzle) *Registry {
	r := &Registry{puzzles: make(map[model.EnigmaID]Puzzle, len(puzzles))}
	for _, p := range puzzles {
		if _, dup := r.puzzles[p.ID()]; dup {
			panic(fmt.Sprintf("enigma: puzzle %s registered twice", p.ID()))
		}
		r.puzzles[p.ID()] = p
		r.ids = append(r.ids, p.ID())
	}
	sort.Slice(r.ids, func(i, j int) bool { return r.ids[i] < r.ids[j] })
	return r
}

// DefaultRegistry holds the four puzzles of the game with their solutions
func DefaultRegistry() *Registry {
	return NewRegistry(
		Storyboards(DefaultStoryboardOrder),
		Photos(DefaultLightingSolution),
		Roles(DefaultRoleSolution),
		Ambiance(),
	)
}

// Get returns the puzzle registered under id
func (r *Registry) Get(id model.EnigmaID) (Puzzle, error) {
	p, ok := r.puzzles[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown enigma %q", model.ErrValidationFailed, id)
	}
	return p, nil
}

// Has reports whether id is registered
func (r *Registry) Has(id model.EnigmaID) bool {
	_, ok := r.puzzles[id]
	return ok
}

// IDs returns every registered ID in order
func (r *Registry) IDs() []model.EnigmaID {
	return append([]model.EnigmaID(nil), r.ids...)
}

// InitialStates returns a fresh, uncompleted state for every puzzle
func (r *Registry) InitialStates() ([]model.Enigma, error) {
	states := make([]model.Enigma, 0, len(r.ids))
	for _, id := range r.ids {
		data, err := r.puzzles[id].Initial()
		if err != nil {
			return nil, fmt.Errorf("initial state of %s: %w", id, err)
		}
		states = append(states, model.Enigma{ID: id, Data: data})
	}
	return states, nil
}
