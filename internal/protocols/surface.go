package protocols

import (
	"github.com/bnema/wlturbo/wl"
)

// Compositor creates surfaces
type Compositor struct {
	wl.BaseProxy
}

// NewCompositor creates a new compositor proxy. The ID is set by Registry.Bind.
func NewCompositor(ctx *wl.Context) *Compositor {
	c := &Compositor{}
	c.SetContext(ctx)
	return c
}

// CreateSurface creates a new surface
func (c *Compositor) CreateSurface() (*Surface, error) {
	s := newSurface(c.Context())

	// Opcode 0: create_surface
	const opcode = 0
	if err := c.Context().SendRequest(c, opcode, s); err != nil {
		c.Context().Unregister(s)
		return nil, err
	}
	return s, nil
}

// Dispatch handles incoming events (compositor has no events)
func (c *Compositor) Dispatch(event *wl.Event) {
}

// Surface represents one drawable wl_surface
type Surface struct {
	wl.BaseProxy
}

func newSurface(ctx *wl.Context) *Surface {
	s := &Surface{}
	s.SetContext(ctx)
	id := ctx.AllocateID()
	s.SetID(id)
	ctx.Register(s)
	return s
}

// Attach sets the buffer displayed on the next commit
func (s *Surface) Attach(buffer *Buffer, x, y int32) error {
	// Opcode 1: attach
	const opcode = 1
	return s.Context().SendRequest(s, opcode, buffer, x, y)
}

// Damage marks a region as needing repaint
func (s *Surface) Damage(x, y, width, height int32) error {
	// Opcode 2: damage
	const opcode = 2
	return s.Context().SendRequest(s, opcode, x, y, width, height)
}

// Frame requests a callback for the next time the compositor is ready for a
// new frame on this surface.
func (s *Surface) Frame() (*Callback, error) {
	cb := newCallback(s.Context())

	// Opcode 3: frame
	const opcode = 3
	if err := s.Context().SendRequest(s, opcode, cb); err != nil {
		s.Context().Unregister(cb)
		return nil, err
	}
	return cb, nil
}

// Commit atomically applies all pending surface state
func (s *Surface) Commit() error {
	// Opcode 6: commit
	const opcode = 6
	return s.Context().SendRequest(s, opcode)
}

// Destroy destroys the surface
func (s *Surface) Destroy() error {
	// Opcode 0: destroy
	const opcode = 0
	err := s.Context().SendRequest(s, opcode)
	s.Context().Unregister(s)
	return err
}

// Dispatch handles incoming events (enter/leave/preferred scale are ignored)
func (s *Surface) Dispatch(event *wl.Event) {
}

// Callback is a single-shot wl_callback
type Callback struct {
	wl.BaseProxy

	doneHandler func(data uint32)
}

func newCallback(ctx *wl.Context) *Callback {
	cb := &Callback{}
	cb.SetContext(ctx)
	id := ctx.AllocateID()
	cb.SetID(id)
	ctx.Register(cb)
	return cb
}

// NewDisplaySync issues a wl_display.sync round-trip marker. The done event
// fires once every request sent before it has been processed by the server.
func NewDisplaySync(ctx *wl.Context, display *wl.Display) (*Callback, error) {
	cb := newCallback(ctx)

	// Opcode 0 on wl_display: sync
	const opcode = 0
	if err := display.SendRequest(display.ID(), opcode, cb); err != nil {
		ctx.Unregister(cb)
		return nil, err
	}
	return cb, nil
}

// SetDoneHandler sets the handler for the done event
func (cb *Callback) SetDoneHandler(handler func(data uint32)) {
	cb.doneHandler = handler
}

// Dispatch handles incoming events
func (cb *Callback) Dispatch(event *wl.Event) {
	switch event.Opcode {
	case 0: // done
		data := event.Uint32()
		if cb.doneHandler != nil {
			cb.doneHandler(data)
		}
		// A callback fires exactly once
		cb.Context().Unregister(cb)
	}
}
