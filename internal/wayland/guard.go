package wayland

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// Guard hands out exclusive access to a shared state value, but only for the
// duration of a closure. Both the dispatch callbacks and the application
// handler go through the same guard, so neither side can hold a reference to
// the state across a suspension point.
//
// Contention between the two tasks blocks normally. Re-entering Access from
// the goroutine already inside it is a programming bug equivalent to a
// double borrow and panics rather than deadlocking silently.
type Guard[T any] struct {
	mu    sync.Mutex
	owner atomic.Int64 // goroutine holding the guard, 0 when free
	state *T
}

// NewGuard wraps state in a guard. The caller must drop its own reference
// and reach the state through Access only.
func NewGuard[T any](state *T) *Guard[T] {
	return &Guard[T]{state: state}
}

// Access runs f with exclusive access to the guarded state
func (g *Guard[T]) Access(f func(*T)) {
	gid := goroutineID()
	if g.owner.Load() == gid {
		panic("wayland: state guard re-entered from the goroutine holding it")
	}

	g.mu.Lock()
	g.owner.Store(gid)
	defer func() {
		g.owner.Store(0)
		g.mu.Unlock()
	}()

	f(g.state)
}

// goroutineID parses the current goroutine id from the stack header. Used
// only for the double-borrow check, never for scheduling decisions.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Header shape: "goroutine 123 [running]:"
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		panic(fmt.Sprintf("unexpected stack header: %q", buf[:n]))
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		panic(fmt.Sprintf("unexpected goroutine id %q: %v", fields[1], err))
	}
	return id
}
