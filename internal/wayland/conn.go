package wayland

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/wlturbo/wl"

	"github.com/bnema/shaderlock/internal/logger"
	"github.com/bnema/shaderlock/internal/protocols"
)

// Conn is the process-wide compositor connection. It owns the socket, the
// registry and the bound globals, and implements Transport for the reactor.
// There is exactly one Conn per run; its lifetime is the reactor's lifetime.
type Conn struct {
	display  *wl.Display
	wctx     *wl.Context
	registry *wl.Registry

	queue *EventQueue

	compositor  *protocols.Compositor
	shm         *protocols.Shm
	seat        *protocols.Seat
	screencopy  *protocols.ScreencopyManager
	lockManager *protocols.SessionLockManager

	mu        sync.Mutex
	globalErr error

	dispatchCh   chan error
	dispatchOnce sync.Once
	closed       chan struct{}
	closeOnce    sync.Once
}

// Connect dials the compositor named by WAYLAND_DISPLAY, discovers the
// globals this client needs and binds them. Outputs announced now and later
// are surfaced as NewOutput events on the queue.
func Connect(queue *EventQueue) (*Conn, error) {
	display, err := wl.Connect("")
	if err != nil {
		return nil, fmt.Errorf("connecting to Wayland compositor: %w", err)
	}

	c := &Conn{
		display:    display,
		wctx:       display.Context(),
		queue:      queue,
		dispatchCh: make(chan error),
		closed:     make(chan struct{}),
	}

	c.registry = display.GetRegistry()
	c.registry.AddGlobalHandler(c)

	// Two roundtrips: the first delivers the globals, the second any events
	// generated by the binds the global handler performed.
	if err := display.Roundtrip(); err != nil {
		return nil, fmt.Errorf("initial registry roundtrip: %w", err)
	}
	if err := c.takeGlobalErr(); err != nil {
		return nil, fmt.Errorf("binding globals: %w", err)
	}
	if err := display.Roundtrip(); err != nil {
		return nil, fmt.Errorf("second registry roundtrip: %w", err)
	}
	if err := c.takeGlobalErr(); err != nil {
		return nil, fmt.Errorf("binding globals: %w", err)
	}

	// A compositor without these cannot run a lock screen at all. This is a
	// compatibility failure, not a per-request one.
	var missing []string
	if c.compositor == nil {
		missing = append(missing, protocols.CompositorInterface)
	}
	if c.shm == nil {
		missing = append(missing, protocols.ShmInterface)
	}
	if c.seat == nil {
		missing = append(missing, protocols.SeatInterface)
	}
	if c.screencopy == nil {
		missing = append(missing, protocols.ScreencopyManagerInterface)
	}
	if c.lockManager == nil {
		missing = append(missing, protocols.SessionLockManagerInterface)
	}
	if len(missing) > 0 {
		_ = c.Close()
		return nil, fmt.Errorf("compositor does not support required globals: %v", missing)
	}

	return c, nil
}

// HandleRegistryGlobal implements wl.RegistryGlobalHandler
func (c *Conn) HandleRegistryGlobal(event wl.RegistryGlobalEvent) {
	switch event.Interface {
	case protocols.CompositorInterface:
		compositor := protocols.NewCompositor(c.wctx)
		if err := c.bind(event, 4, compositor); err == nil {
			c.compositor = compositor
		}
	case protocols.ShmInterface:
		shm := protocols.NewShm(c.wctx)
		if err := c.bind(event, 1, shm); err == nil {
			c.shm = shm
		}
	case protocols.SeatInterface:
		if c.seat != nil {
			// One seat is all a lock screen listens to.
			return
		}
		seat := protocols.NewSeat(c.wctx)
		if err := c.bind(event, 5, seat); err == nil {
			c.seat = seat
			var prev uint32
			seat.SetCapabilitiesHandler(func(caps uint32) {
				// The event carries the full bitmask; diff against the last
				// one so additions and removals arrive separately.
				for bit := uint32(1); bit <= caps|prev; bit <<= 1 {
					switch {
					case caps&bit != 0 && prev&bit == 0:
						c.queue.Push(NewSeatCapability{Seat: seat, Capability: bit})
					case caps&bit == 0 && prev&bit != 0:
						c.queue.Push(RemoveSeatCapability{Seat: seat, Capability: bit})
					}
				}
				prev = caps
			})
		}
	case protocols.OutputInterface:
		output := protocols.NewOutput(c.wctx, event.Name)
		if err := c.bind(event, 3, output); err == nil {
			logger.Debug("new output", "name", event.Name)
			c.queue.Push(NewOutput{Output: output})
		}
	case protocols.ScreencopyManagerInterface:
		manager := protocols.NewScreencopyManager(c.wctx)
		if err := c.bind(event, protocols.ScreencopyManagerVersion, manager); err == nil {
			c.screencopy = manager
		}
	case protocols.SessionLockManagerInterface:
		manager := protocols.NewSessionLockManager(c.wctx)
		if err := c.bind(event, protocols.SessionLockManagerVersion, manager); err == nil {
			c.lockManager = manager
		}
	}
}

func (c *Conn) bind(event wl.RegistryGlobalEvent, version uint32, proxy wl.Proxy) error {
	if event.Version < version {
		version = event.Version
	}
	if err := c.registry.Bind(event.Name, event.Interface, version, proxy); err != nil {
		c.mu.Lock()
		c.globalErr = errors.Join(c.globalErr,
			fmt.Errorf("unable to bind %s: %w", event.Interface, err))
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Conn) takeGlobalErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.globalErr
	c.globalErr = nil
	return err
}

// Compositor returns the bound wl_compositor
func (c *Conn) Compositor() *protocols.Compositor { return c.compositor }

// Shm returns the bound wl_shm
func (c *Conn) Shm() *protocols.Shm { return c.shm }

// Seat returns the bound wl_seat
func (c *Conn) Seat() *protocols.Seat { return c.seat }

// Screencopy returns the bound screencopy manager
func (c *Conn) Screencopy() *protocols.ScreencopyManager { return c.screencopy }

// LockManager returns the bound session lock manager
func (c *Conn) LockManager() *protocols.SessionLockManager { return c.lockManager }

// Queue returns the event queue callbacks push into
func (c *Conn) Queue() *EventQueue { return c.queue }

// ExitSync sends a wl_display.sync marker whose completion is delivered as
// an ExitSync event: once it arrives, every request issued before it,
// including an unlock, has been processed by the server.
func (c *Conn) ExitSync() error {
	cb, err := protocols.NewDisplaySync(c.wctx, c.display)
	if err != nil {
		return fmt.Errorf("sending exit sync: %w", err)
	}
	cb.SetDoneHandler(func(uint32) {
		c.queue.Push(ExitSync{})
	})
	return nil
}

// Roundtrip blocks until the server has processed all prior requests. Only
// safe during bootstrap, before the reactor starts dispatching.
func (c *Conn) Roundtrip() error {
	return c.display.Roundtrip()
}

// Flush implements Transport. The client library writes requests to the
// socket as they are issued, so there is never anything left to flush here.
func (c *Conn) Flush() error {
	return nil
}

// DispatchOnce implements Transport: wait up to timeout for one batch of
// compositor messages and run their callbacks.
func (c *Conn) DispatchOnce(timeout time.Duration) (bool, error) {
	c.dispatchOnce.Do(c.startDispatcher)

	select {
	case err := <-c.dispatchCh:
		if err != nil {
			return false, err
		}
		return true, nil
	case <-time.After(timeout):
		return false, nil
	case <-c.closed:
		return false, errors.New("connection closed")
	}
}

// startDispatcher begins reading the socket on a dedicated goroutine. Until
// this runs, the connection is only driven by explicit roundtrips, which is
// what the bootstrap phase needs.
func (c *Conn) startDispatcher() {
	go func() {
		for {
			err := c.display.Dispatch()
			select {
			case c.dispatchCh <- err:
			case <-c.closed:
				return
			}
			if err != nil {
				return
			}
		}
	}()
}

// Close tears down the connection
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	if c.wctx != nil {
		return c.wctx.Close()
	}
	return nil
}
