// Package roomqueue runs work for a room one task at a time, in submission order.
package roomqueue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/mcoot/escaperoom/internal/metrics"
	"github.com/mcoot/escaperoom/internal/model"
)

// ErrTaskPanicked is returned by Do when the task panicked. The queue keeps
// serving the room afterwards.
var ErrTaskPanicked = errors.New("room task panicked")

// Task is a unit of work executed on a room's queue
type Task func(ctx context.Context) error

type pendingTask struct {
	ctx  context.Context
	fn   Task
	done chan error
}

type worker struct {
	pending []pendingTask
}

// Queue serializes tasks per room. Each room with pending work gets a worker
// goroutine that drains its tasks in FIFO order and exits once idle, so
// rooms never leak goroutines.
//
// Tasks must not submit to the queue of their own room; that would deadlock.
type Queue struct {
	mu      sync.Mutex
	workers map[model.RoomCode]*worker
}

// New creates an empty Queue
func New() *Queue {
	return &Queue{workers: make(map[model.RoomCode]*worker)}
}

// Do runs fn on the room's queue and waits for it to finish.
// If ctx is cancelled while waiting the task still runs, but Do returns ctx.Err().
func (q *Queue) Do(ctx context.Context, code model.RoomCode, fn Task) error {
	t := pendingTask{ctx: ctx, fn: fn, done: make(chan error, 1)}

	q.mu.Lock()
	w, ok := q.workers[code]
	if !ok {
		w = &worker{}
		q.workers[code] = w
	}
	w.pending = append(w.pending, t)
	q.mu.Unlock()

	if !ok {
		go q.run(code, w)
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of rooms with queued or running work
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.workers)
}

func (q *Queue) run(code model.RoomCode, w *worker) {
	for {
		q.mu.Lock()
		if len(w.pending) == 0 {
			delete(q.workers, code)
			q.mu.Unlock()
			return
		}
		t := w.pending[0]
		w.pending = w.pending[1:]
		q.mu.Unlock()

		t.done <- execute(t)
	}
}

func execute(t pendingTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PanicsTotal.Inc()
			err = fmt.Errorf("%w: %v\n%s", ErrTaskPanicked, r, debug.Stack())
		}
	}()
	return t.fn(t.ctx)
}
