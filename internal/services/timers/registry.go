// Package timers keeps cancellable timers addressed by stable keys.
package timers

import (
	"fmt"
	"sync"
	"time"

	"github.com/mcoot/escaperoom/internal/dependencies/clock"
	"github.com/mcoot/escaperoom/internal/model"
)

// Key addresses one pending timer
type Key string

// RoomDeletionKey addresses the pending teardown of an empty room
func RoomDeletionKey(code model.RoomCode) Key {
	return Key(fmt.Sprintf("room-deletion:%s", code))
}

// PlayerRemovalKey addresses the grace timer of a disconnected player
func PlayerRemovalKey(code model.RoomCode, id model.PlayerID) Key {
	return Key(fmt.Sprintf("player-removal:%s:%s", code, id))
}

// TickKey addresses the countdown loop of a room
func TickKey(code model.RoomCode) Key {
	return Key(fmt.Sprintf("tick:%s", code))
}

type entry struct {
	timer clock.Timer
	gen   uint64
}

// Registry holds at most one pending timer per key. Scheduling a key that is
// already pending replaces the old timer.
type Registry struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[Key]entry
	gen     uint64
}

// New creates an empty Registry
func New(clk clock.Clock) *Registry {
	return &Registry{
		clock:   clk,
		entries: make(map[Key]entry),
	}
}

// Schedule arranges for fn to run after d, cancelling any timer already
// pending under key.
func (r *Registry) Schedule(key Key, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[key]; ok {
		old.timer.Stop()
	}

	r.gen++
	gen := r.gen
	timer := r.clock.AfterFunc(d, func() {
		r.mu.Lock()
		current, ok := r.entries[key]
		if !ok || current.gen != gen {
			// Replaced or cancelled after it had already fired
			r.mu.Unlock()
			return
		}
		delete(r.entries, key)
		r.mu.Unlock()

		fn()
	})
	r.entries[key] = entry{timer: timer, gen: gen}
}

// Cancel stops the timer pending under key. It reports whether one was pending.
func (r *Registry) Cancel(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.entries, key)
	return true
}

// Pending reports whether a timer is pending under key
func (r *Registry) Pending(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Len returns the number of pending timers
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
