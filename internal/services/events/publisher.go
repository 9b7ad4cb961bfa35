// Package events carries room notifications from the services to transports.
package events

import (
	"sync"

	"github.com/mcoot/escaperoom/internal/model"
)

// Publisher delivers room events to whoever is listening on the room.
// Publish must not block on slow listeners; it is called while the room's
// queue is held so that delivery order matches mutation order.
type Publisher interface {
	Publish(event model.Event)
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(model.Event) {}

// Recorder keeps every published event, for tests
type Recorder struct {
	mu     sync.Mutex
	events []model.Event
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(event model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything published so far
func (r *Recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

// Types returns the type of every published event, in order
func (r *Recorder) Types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]model.EventType, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

// OfType returns the published events of the given type
func (r *Recorder) OfType(t model.EventType) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets every recorded event
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
