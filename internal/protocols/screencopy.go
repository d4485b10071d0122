package protocols

import (
	"github.com/bnema/wlturbo/wl"
)

// Protocol interface names for wlr-screencopy
const (
	ScreencopyManagerInterface = "zwlr_screencopy_manager_v1"

	// ScreencopyManagerVersion is pinned to 3: that is the first version
	// sending the buffer_done event the capture handshake relies on.
	ScreencopyManagerVersion = 3
)

// Frame flag bits from the flags event
const (
	ScreencopyFlagYInvert = 1
)

// ScreencopyManager issues capture requests
type ScreencopyManager struct {
	wl.BaseProxy
}

// NewScreencopyManager creates a new screencopy manager proxy. The ID is set
// by Registry.Bind.
func NewScreencopyManager(ctx *wl.Context) *ScreencopyManager {
	m := &ScreencopyManager{}
	m.SetContext(ctx)
	return m
}

// CaptureOutput starts capturing one frame of the given output. The cursor
// is never composited into a lock screen grab.
func (m *ScreencopyManager) CaptureOutput(output *Output) (*ScreencopyFrame, error) {
	f := newScreencopyFrame(m.Context())

	// Opcode 0: capture_output (frame, overlay_cursor, output)
	const opcode = 0
	const overlayCursor = int32(0)
	if err := m.Context().SendRequest(m, opcode, f, overlayCursor, output); err != nil {
		m.Context().Unregister(f)
		return nil, err
	}
	return f, nil
}

// Destroy destroys the manager
func (m *ScreencopyManager) Destroy() error {
	// Opcode 2: destroy
	const opcode = 2
	err := m.Context().SendRequest(m, opcode)
	m.Context().Unregister(m)
	return err
}

// Dispatch handles incoming events (manager has no events)
func (m *ScreencopyManager) Dispatch(event *wl.Event) {
}

// ScreencopyFrame is one in-flight capture. Event sequence: one or more
// buffer/linux_dmabuf advertisements, one flags, one buffer_done, then
// exactly one of ready or failed.
type ScreencopyFrame struct {
	wl.BaseProxy

	bufferHandler      func(format, width, height, stride uint32)
	linuxDmabufHandler func(format, width, height uint32)
	flagsHandler       func(flags uint32)
	bufferDoneHandler  func()
	readyHandler       func()
	failedHandler      func()
}

func newScreencopyFrame(ctx *wl.Context) *ScreencopyFrame {
	f := &ScreencopyFrame{}
	f.SetContext(ctx)
	id := ctx.AllocateID()
	f.SetID(id)
	ctx.Register(f)
	return f
}

// SetBufferHandler sets the handler for shm buffer advertisements
func (f *ScreencopyFrame) SetBufferHandler(handler func(format, width, height, stride uint32)) {
	f.bufferHandler = handler
}

// SetLinuxDmabufHandler sets the handler for dmabuf advertisements
func (f *ScreencopyFrame) SetLinuxDmabufHandler(handler func(format, width, height uint32)) {
	f.linuxDmabufHandler = handler
}

// SetFlagsHandler sets the handler for the flags event
func (f *ScreencopyFrame) SetFlagsHandler(handler func(flags uint32)) {
	f.flagsHandler = handler
}

// SetBufferDoneHandler sets the handler for the buffer_done event
func (f *ScreencopyFrame) SetBufferDoneHandler(handler func()) {
	f.bufferDoneHandler = handler
}

// SetReadyHandler sets the handler for the ready event
func (f *ScreencopyFrame) SetReadyHandler(handler func()) {
	f.readyHandler = handler
}

// SetFailedHandler sets the handler for the failed event
func (f *ScreencopyFrame) SetFailedHandler(handler func()) {
	f.failedHandler = handler
}

// Copy asks the compositor to write the frame into the given buffer
func (f *ScreencopyFrame) Copy(buffer *Buffer) error {
	// Opcode 0: copy
	const opcode = 0
	return f.Context().SendRequest(f, opcode, buffer)
}

// Destroy destroys the frame object
func (f *ScreencopyFrame) Destroy() error {
	// Opcode 1: destroy
	const opcode = 1
	err := f.Context().SendRequest(f, opcode)
	f.Context().Unregister(f)
	return err
}

// Dispatch handles incoming events
func (f *ScreencopyFrame) Dispatch(event *wl.Event) {
	switch event.Opcode {
	case 0: // buffer
		format := event.Uint32()
		width := event.Uint32()
		height := event.Uint32()
		stride := event.Uint32()
		if f.bufferHandler != nil {
			f.bufferHandler(format, width, height, stride)
		}
	case 1: // flags
		flags := event.Uint32()
		if f.flagsHandler != nil {
			f.flagsHandler(flags)
		}
	case 2: // ready
		if f.readyHandler != nil {
			f.readyHandler()
		}
	case 3: // failed
		if f.failedHandler != nil {
			f.failedHandler()
		}
	case 4: // damage (copy_with_damage is never requested)
	case 5: // linux_dmabuf
		format := event.Uint32()
		width := event.Uint32()
		height := event.Uint32()
		if f.linuxDmabufHandler != nil {
			f.linuxDmabufHandler(format, width, height)
		}
	case 6: // buffer_done
		if f.bufferDoneHandler != nil {
			f.bufferDoneHandler()
		}
	}
}
