// Package protocols contains hand-written Wayland protocol bindings for the
// interfaces the locker drives: core objects the client library does not
// wrap for us plus the wlr-screencopy and ext-session-lock extensions.
//
// Every proxy follows the same shape: a wl.BaseProxy embed, request methods
// built on Context.SendRequest with the protocol opcode, handler slots for
// events, and a Dispatch switch decoding event arguments in wire order.
package protocols

import (
	"github.com/bnema/wlturbo/wl"
)

// Protocol interface names for core globals
const (
	OutputInterface     = "wl_output"
	SeatInterface       = "wl_seat"
	CompositorInterface = "wl_compositor"
	ShmInterface        = "wl_shm"
)

// Output transforms, as reported by the geometry event
const (
	TransformNormal     = 0
	Transform90         = 1
	Transform180        = 2
	Transform270        = 3
	TransformFlipped    = 4
	TransformFlipped90  = 5
	TransformFlipped180 = 6
	TransformFlipped270 = 7
)

// Output represents one physical display advertised by the compositor.
type Output struct {
	wl.BaseProxy

	// Registry name the output was bound from; stable for its lifetime.
	Name uint32

	geometryHandler func(x, y, transform int32)
	modeHandler     func(flags uint32, width, height, refresh int32)
	doneHandler     func()
}

// NewOutput creates a new output proxy. The ID is set by Registry.Bind.
func NewOutput(ctx *wl.Context, name uint32) *Output {
	o := &Output{Name: name}
	o.SetContext(ctx)
	return o
}

// SetGeometryHandler sets the handler for geometry events
func (o *Output) SetGeometryHandler(handler func(x, y, transform int32)) {
	o.geometryHandler = handler
}

// SetModeHandler sets the handler for mode events
func (o *Output) SetModeHandler(handler func(flags uint32, width, height, refresh int32)) {
	o.modeHandler = handler
}

// SetDoneHandler sets the handler for done events
func (o *Output) SetDoneHandler(handler func()) {
	o.doneHandler = handler
}

// Release releases the output (since version 3)
func (o *Output) Release() error {
	// Opcode 0: release
	const opcode = 0
	err := o.Context().SendRequest(o, opcode)
	o.Context().Unregister(o)
	return err
}

// Dispatch handles incoming events
func (o *Output) Dispatch(event *wl.Event) {
	switch event.Opcode {
	case 0: // geometry
		x := event.Int32()
		y := event.Int32()
		_ = event.Int32()  // physical_width
		_ = event.Int32()  // physical_height
		_ = event.Int32()  // subpixel
		_ = event.String() // make
		_ = event.String() // model
		transform := event.Int32()
		if o.geometryHandler != nil {
			o.geometryHandler(x, y, transform)
		}
	case 1: // mode
		flags := event.Uint32()
		width := event.Int32()
		height := event.Int32()
		refresh := event.Int32()
		if o.modeHandler != nil {
			o.modeHandler(flags, width, height, refresh)
		}
	case 2: // done
		if o.doneHandler != nil {
			o.doneHandler()
		}
	case 3: // scale
	case 4: // name (since version 4)
	case 5: // description (since version 4)
	}
}
