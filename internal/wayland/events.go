// Package wayland owns the compositor connection and the machinery that
// turns its callback-driven protocol dispatch into one ordered event stream:
// the connection bootstrap, the unbounded event queue, the shared-state
// guard and the reactor that races the socket pump against the application
// handler.
package wayland

import (
	"context"
	"sync"

	"github.com/eapache/queue"

	"github.com/bnema/shaderlock/internal/protocols"
)

// Event is one entry in the stream delivered to the application handler.
// All variants are produced at protocol-dispatch time, in dispatch order.
type Event interface {
	isEvent()
}

// NewOutput announces a display (either just-connected or at startup).
type NewOutput struct {
	Output *protocols.Output
}

// RedrawRequested asks for a new frame on a surface.
type RedrawRequested struct {
	Surface *protocols.Surface
}

// NewSeatCapability announces an input method on a seat.
type NewSeatCapability struct {
	Seat       *protocols.Seat
	Capability uint32
}

// RemoveSeatCapability retracts an input method from a seat.
type RemoveSeatCapability struct {
	Seat       *protocols.Seat
	Capability uint32
}

// KeyPressed is one key-down, with the shift state at press time.
type KeyPressed struct {
	Code  uint32
	Shift bool
}

// SessionLocked reports the compositor granted the session lock.
type SessionLocked struct{}

// SessionLockFinished reports the lock ended, either refused up front or
// revoked later. Fatal either way: input is no longer inhibited.
type SessionLockFinished struct{}

// ConfigureLockSurface carries the negotiated size for a lock surface.
// The surface must not be rendered to before its first configure.
type ConfigureLockSurface struct {
	Surface *protocols.SessionLockSurface
	Width   uint32
	Height  uint32
}

// ExitSync reports that every request sent before the exit sync marker,
// including the unlock, has been processed by the server.
type ExitSync struct{}

func (NewOutput) isEvent()            {}
func (RedrawRequested) isEvent()      {}
func (NewSeatCapability) isEvent()    {}
func (RemoveSeatCapability) isEvent() {}
func (KeyPressed) isEvent()           {}
func (SessionLocked) isEvent()        {}
func (SessionLockFinished) isEvent()  {}
func (ConfigureLockSurface) isEvent() {}
func (ExitSync) isEvent()             {}

// EventQueue is an unbounded FIFO with any number of producers (protocol
// callbacks) and exactly one consumer (the application handler). Push never
// blocks, so protocol dispatch can never stall on a slow handler.
type EventQueue struct {
	mu     sync.Mutex
	items  *queue.Queue
	wakeup chan struct{}
}

// NewEventQueue creates an empty queue
func NewEventQueue() *EventQueue {
	return &EventQueue{
		items:  queue.New(),
		wakeup: make(chan struct{}, 1),
	}
}

// Push appends an event. Safe to call from any goroutine.
func (q *EventQueue) Push(ev Event) {
	q.mu.Lock()
	q.items.Add(ev)
	q.mu.Unlock()

	select {
	case q.wakeup <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available or the context ends
func (q *EventQueue) Next(ctx context.Context) (Event, error) {
	for {
		q.mu.Lock()
		if q.items.Length() > 0 {
			ev := q.items.Remove().(Event)
			q.mu.Unlock()
			return ev, nil
		}
		q.mu.Unlock()

		select {
		case <-q.wakeup:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len reports the number of queued events
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}
