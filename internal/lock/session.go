// Package lock drives the session lock lifecycle against the compositor.
package lock

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bnema/shaderlock/internal/logger"
	"github.com/bnema/shaderlock/internal/protocols"
	"github.com/bnema/shaderlock/internal/wayland"
)

// State is the lock lifecycle position. Transitions only move forward:
// Idle -> Requested -> Locked -> Unlocking -> Finished, with Requested ->
// Failed when the compositor refuses the lock.
type State int

const (
	StateIdle State = iota
	StateRequested
	StateLocked
	StateUnlocking
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequested:
		return "requested"
	case StateLocked:
		return "locked"
	case StateUnlocking:
		return "unlocking"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrNotLocked is returned for operations that require the compositor to
// have confirmed the lock first.
var ErrNotLocked = errors.New("session is not locked")

// ErrSessionFinished means the compositor ended the lock without us asking:
// either it refused the request outright or revoked a held lock. Fatal to
// the locker, since input is no longer inhibited.
var ErrSessionFinished = errors.New("session lock finished by the compositor")

// Session owns one ext-session-lock object and its lifecycle state. The
// mutex covers state transitions, which happen both from protocol dispatch
// and from the application handler.
type Session struct {
	queue      *wayland.EventQueue
	compositor *protocols.Compositor
	manager    *protocols.SessionLockManager

	mu    sync.Mutex
	lock  *protocols.SessionLock
	state State
}

// NewSession creates an idle session. Lock must be called to engage it.
func NewSession(queue *wayland.EventQueue, compositor *protocols.Compositor, manager *protocols.SessionLockManager) *Session {
	return &Session{queue: queue, compositor: compositor, manager: manager}
}

// State reports the current lifecycle position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Lock asks the compositor to lock the session. Confirmation arrives later
// as a SessionLocked event; refusal as SessionLockFinished without a
// preceding SessionLocked.
func (s *Session) Lock() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("locking from state %s", s.state)
	}

	lock, err := s.manager.Lock()
	if err != nil {
		return fmt.Errorf("requesting session lock: %w", err)
	}
	s.lock = lock
	s.state = StateRequested

	lock.SetLockedHandler(s.onLocked)
	lock.SetFinishedHandler(s.onFinished)
	return nil
}

func (s *Session) onLocked() {
	s.mu.Lock()
	if s.state != StateRequested {
		state := s.state
		s.mu.Unlock()
		logger.Warn("locked event in unexpected state", "state", state.String())
		return
	}
	s.state = StateLocked
	s.mu.Unlock()
	s.queue.Push(wayland.SessionLocked{})
}

func (s *Session) onFinished() {
	s.mu.Lock()
	if s.state == StateRequested {
		// The compositor refused: another locker holds the session or
		// locking is not permitted right now.
		s.state = StateFailed
	} else {
		s.state = StateFinished
	}
	s.mu.Unlock()
	s.queue.Push(wayland.SessionLockFinished{})
}

// CreateSurface builds a lock surface covering output. Only valid once the
// compositor has confirmed the lock; until then no surface may exist.
func (s *Session) CreateSurface(output *protocols.Output) (*Surface, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLocked {
		return nil, ErrNotLocked
	}

	wlSurface, err := s.compositor.CreateSurface()
	if err != nil {
		return nil, fmt.Errorf("creating surface: %w", err)
	}
	lockSurface, err := s.lock.GetLockSurface(wlSurface, output)
	if err != nil {
		return nil, fmt.Errorf("creating lock surface: %w", err)
	}

	surf := &Surface{wl: wlSurface, lock: lockSurface, output: output}
	lockSurface.SetConfigureHandler(func(serial, width, height uint32) {
		if err := lockSurface.AckConfigure(serial); err != nil {
			logger.Error("acking lock surface configure", "err", err)
			return
		}
		surf.mu.Lock()
		surf.configured = true
		surf.width = width
		surf.height = height
		surf.mu.Unlock()
		s.queue.Push(wayland.ConfigureLockSurface{
			Surface: lockSurface,
			Width:   width,
			Height:  height,
		})
	})
	return surf, nil
}

// Unlock tears the lock down and schedules exitSync so the unlock request
// is known to have reached the compositor before the connection closes.
func (s *Session) Unlock(exitSync func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLocked {
		return ErrNotLocked
	}
	if err := s.lock.UnlockAndDestroy(); err != nil {
		return fmt.Errorf("unlocking session: %w", err)
	}
	s.state = StateUnlocking
	if err := exitSync(); err != nil {
		return fmt.Errorf("syncing after unlock: %w", err)
	}
	return nil
}

// Surface is one lock surface and the wl_surface beneath it. Drawing is not
// allowed until the first configure has been acknowledged.
type Surface struct {
	wl     *protocols.Surface
	lock   *protocols.SessionLockSurface
	output *protocols.Output

	mu         sync.Mutex
	configured bool
	width      uint32
	height     uint32
}

// Wl returns the underlying wl_surface for attach/damage/commit.
func (s *Surface) Wl() *protocols.Surface { return s.wl }

// LockSurface returns the protocol object, used to correlate configure
// events back to this surface.
func (s *Surface) LockSurface() *protocols.SessionLockSurface { return s.lock }

// Output returns the output this surface covers.
func (s *Surface) Output() *protocols.Output { return s.output }

// Configured reports whether the first configure was acknowledged. Attaching
// a buffer before that is a protocol error.
func (s *Surface) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configured
}

// Size returns the compositor-assigned dimensions from the last configure.
func (s *Surface) Size() (width, height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Destroy releases the lock surface and its wl_surface.
func (s *Surface) Destroy() error {
	err := s.lock.Destroy()
	if werr := s.wl.Destroy(); err == nil {
		err = werr
	}
	return err
}
