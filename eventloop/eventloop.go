// Package eventloop drives every async completion in this module through a
// single goroutine. All of the HTTP stack's state machines (connections,
// streams, the client) are Event implementations dispatched here, so their
// bodies never run concurrently with one another — the cooperative,
// single-threaded model the HTTP components assume.
package eventloop

import (
	"errors"
	"runtime"
	"sync"
)

// ErrClosed is returned by Send once the loop has been stopped.
var ErrClosed = errors.New("eventloop: loop is closed")

// Event is receiving notification from loop with Handle() call.
type Event interface {
	Handle()
}

// FuncEvent adapts a plain closure to Event, for one-off loop-affine work
// (e.g. an ioreactor completion) that doesn't warrant its own type.
type FuncEvent func()

// Handle implements Event.
func (f FuncEvent) Handle() { f() }

//go:generate mockgen -destination=./eventloop_mock.go -self_package "github.com/compose-http/asynchttp/eventloop" -package=eventloop . EventLoop

// EventLoop is interface for event loops.
// Start starting events processing
// Send adding event to loop
type EventLoop interface {
	Start() error
	Send(Event) error
	// Post is shorthand for Send(FuncEvent(fn)).
	Post(fn func()) error
	// Stop drains no further events and unblocks Start's goroutine once the
	// current queue is empty. Stop is idempotent.
	Stop()
}

// ChanLoop is implementation of EventLoop based on channels.
type ChanLoop struct {
	events chan Event
	once   sync.Once
	stop   sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewChanLoop returns ChanLoop with internal channel buffer set to q.
func NewChanLoop(q int) EventLoop {
	return &ChanLoop{
		events: make(chan Event, q),
	}
}

// Start starting to read events from channel in separate goroutines.
// All calls after first is no-op.
func (el *ChanLoop) Start() error {
	go el.once.Do(func() {
		// allocate whole OS thread, so nothing can get scheduled over eventloop
		runtime.LockOSThread()
		for ev := range el.events {
			ev.Handle()
		}
	})
	return nil
}

// Send sends event to channel. Will block if buffer is full.
func (el *ChanLoop) Send(ev Event) error {
	el.mu.RLock()
	defer el.mu.RUnlock()
	if el.closed {
		return ErrClosed
	}
	el.events <- ev
	return nil
}

// Post enqueues fn as a FuncEvent.
func (el *ChanLoop) Post(fn func()) error {
	return el.Send(FuncEvent(fn))
}

// Stop closes the event channel; the dispatch goroutine exits after
// draining whatever was already enqueued. Safe to call multiple times and
// safe to call before Start.
func (el *ChanLoop) Stop() {
	el.stop.Do(func() {
		el.mu.Lock()
		el.closed = true
		close(el.events)
		el.mu.Unlock()
	})
}
