// Package dispatch provides a concurrency-safe FIFO handoff between a
// transport-locked reader loop and the goroutine that actually invokes
// user callbacks, so callbacks never run while an arena mutex is held.
package dispatch

import (
	"sync"

	"github.com/eapache/queue"
)

// Queue is a blocking FIFO of pending work items.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	closed bool
}

// New returns an empty, open Queue.
func New() *Queue {
	d := &Queue{q: queue.New()}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Push enqueues item. It is a no-op once the queue is closed.
func (d *Queue) Push(item any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.q.Add(item)
	d.cond.Signal()
}

// Pop blocks until an item is available or the queue is closed, in which
// case ok is false.
func (d *Queue) Pop() (item any, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.q.Length() == 0 && !d.closed {
		d.cond.Wait()
	}
	if d.q.Length() == 0 {
		return nil, false
	}
	v := d.q.Peek()
	d.q.Remove()
	return v, true
}

// Close wakes every blocked Pop; subsequent Pops drain whatever remains
// then return ok=false.
func (d *Queue) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cond.Broadcast()
}
