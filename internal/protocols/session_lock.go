package protocols

import (
	"github.com/bnema/wlturbo/wl"
)

// Protocol interface names for ext-session-lock
const (
	SessionLockManagerInterface = "ext_session_lock_manager_v1"
	SessionLockManagerVersion   = 1
)

// SessionLockManager creates session locks
type SessionLockManager struct {
	wl.BaseProxy
}

// NewSessionLockManager creates a new session lock manager proxy. The ID is
// set by Registry.Bind.
func NewSessionLockManager(ctx *wl.Context) *SessionLockManager {
	m := &SessionLockManager{}
	m.SetContext(ctx)
	return m
}

// Lock requests exclusive control of all outputs and input. The compositor
// answers with either a locked or a finished event on the returned object.
func (m *SessionLockManager) Lock() (*SessionLock, error) {
	l := newSessionLock(m.Context())

	// Opcode 1: lock
	const opcode = 1
	if err := m.Context().SendRequest(m, opcode, l); err != nil {
		m.Context().Unregister(l)
		return nil, err
	}
	return l, nil
}

// Destroy destroys the manager
func (m *SessionLockManager) Destroy() error {
	// Opcode 0: destroy
	const opcode = 0
	err := m.Context().SendRequest(m, opcode)
	m.Context().Unregister(m)
	return err
}

// Dispatch handles incoming events (manager has no events)
func (m *SessionLockManager) Dispatch(event *wl.Event) {
}

// SessionLock is one lock attempt and, once locked, the held lock itself
type SessionLock struct {
	wl.BaseProxy

	lockedHandler   func()
	finishedHandler func()
}

func newSessionLock(ctx *wl.Context) *SessionLock {
	l := &SessionLock{}
	l.SetContext(ctx)
	id := ctx.AllocateID()
	l.SetID(id)
	ctx.Register(l)
	return l
}

// SetLockedHandler sets the handler for the locked event
func (l *SessionLock) SetLockedHandler(handler func()) {
	l.lockedHandler = handler
}

// SetFinishedHandler sets the handler for the finished event
func (l *SessionLock) SetFinishedHandler(handler func()) {
	l.finishedHandler = handler
}

// GetLockSurface assigns a surface to an output while locked
func (l *SessionLock) GetLockSurface(surface *Surface, output *Output) (*SessionLockSurface, error) {
	s := newSessionLockSurface(l.Context())

	// Opcode 1: get_lock_surface
	const opcode = 1
	if err := l.Context().SendRequest(l, opcode, s, surface, output); err != nil {
		l.Context().Unregister(s)
		return nil, err
	}
	return s, nil
}

// UnlockAndDestroy releases the lock and destroys the object. Only valid
// after the locked event; the client must sync afterwards before exiting.
func (l *SessionLock) UnlockAndDestroy() error {
	// Opcode 2: unlock_and_destroy
	const opcode = 2
	err := l.Context().SendRequest(l, opcode)
	l.Context().Unregister(l)
	return err
}

// Destroy destroys a lock that never reached the locked state
func (l *SessionLock) Destroy() error {
	// Opcode 0: destroy
	const opcode = 0
	err := l.Context().SendRequest(l, opcode)
	l.Context().Unregister(l)
	return err
}

// Dispatch handles incoming events
func (l *SessionLock) Dispatch(event *wl.Event) {
	switch event.Opcode {
	case 0: // locked
		if l.lockedHandler != nil {
			l.lockedHandler()
		}
	case 1: // finished
		if l.finishedHandler != nil {
			l.finishedHandler()
		}
	}
}

// SessionLockSurface is the lock-screen surface for one output
type SessionLockSurface struct {
	wl.BaseProxy

	configureHandler func(serial, width, height uint32)
}

func newSessionLockSurface(ctx *wl.Context) *SessionLockSurface {
	s := &SessionLockSurface{}
	s.SetContext(ctx)
	id := ctx.AllocateID()
	s.SetID(id)
	ctx.Register(s)
	return s
}

// SetConfigureHandler sets the handler for configure events
func (s *SessionLockSurface) SetConfigureHandler(handler func(serial, width, height uint32)) {
	s.configureHandler = handler
}

// AckConfigure acknowledges a configure event
func (s *SessionLockSurface) AckConfigure(serial uint32) error {
	// Opcode 1: ack_configure
	const opcode = 1
	return s.Context().SendRequest(s, opcode, serial)
}

// Destroy destroys the lock surface
func (s *SessionLockSurface) Destroy() error {
	// Opcode 0: destroy
	const opcode = 0
	err := s.Context().SendRequest(s, opcode)
	s.Context().Unregister(s)
	return err
}

// Dispatch handles incoming events
func (s *SessionLockSurface) Dispatch(event *wl.Event) {
	switch event.Opcode {
	case 0: // configure
		serial := event.Uint32()
		width := event.Uint32()
		height := event.Uint32()
		if s.configureHandler != nil {
			s.configureHandler(serial, width, height)
		}
	}
}
