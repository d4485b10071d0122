package protocols

import (
	"github.com/bnema/wlturbo/wl"
)

// Seat capability bits from the capabilities event
const (
	SeatCapabilityPointer  = 1
	SeatCapabilityKeyboard = 2
	SeatCapabilityTouch    = 4
)

// Key states from the wl_keyboard key event
const (
	KeyStateReleased = 0
	KeyStatePressed  = 1
)

// Seat represents a group of input devices
type Seat struct {
	wl.BaseProxy

	capabilitiesHandler func(capabilities uint32)
}

// NewSeat creates a new seat proxy. The ID is set by Registry.Bind.
func NewSeat(ctx *wl.Context) *Seat {
	s := &Seat{}
	s.SetContext(ctx)
	return s
}

// SetCapabilitiesHandler sets the handler for capability change events
func (s *Seat) SetCapabilitiesHandler(handler func(capabilities uint32)) {
	s.capabilitiesHandler = handler
}

// GetKeyboard creates a keyboard object for this seat. The caller must only
// do this after the seat advertised the keyboard capability.
func (s *Seat) GetKeyboard() (*Keyboard, error) {
	k := newKeyboard(s.Context())

	// Opcode 1: get_keyboard
	const opcode = 1
	if err := s.Context().SendRequest(s, opcode, k); err != nil {
		s.Context().Unregister(k)
		return nil, err
	}
	return k, nil
}

// Release releases the seat (since version 5)
func (s *Seat) Release() error {
	// Opcode 3: release
	const opcode = 3
	err := s.Context().SendRequest(s, opcode)
	s.Context().Unregister(s)
	return err
}

// Dispatch handles incoming events
func (s *Seat) Dispatch(event *wl.Event) {
	switch event.Opcode {
	case 0: // capabilities
		caps := event.Uint32()
		if s.capabilitiesHandler != nil {
			s.capabilitiesHandler(caps)
		}
	case 1: // name
	}
}

// Keyboard represents one wl_keyboard object.
//
// The keymap event's file descriptor is deliberately not consumed: the
// locker does table-driven keycode translation and never compiles a keymap.
type Keyboard struct {
	wl.BaseProxy

	keyHandler       func(serial, time, key, state uint32)
	modifiersHandler func(depressed, latched, locked, group uint32)
}

func newKeyboard(ctx *wl.Context) *Keyboard {
	k := &Keyboard{}
	k.SetContext(ctx)
	id := ctx.AllocateID()
	k.SetID(id)
	ctx.Register(k)
	return k
}

// SetKeyHandler sets the handler for key events
func (k *Keyboard) SetKeyHandler(handler func(serial, time, key, state uint32)) {
	k.keyHandler = handler
}

// SetModifiersHandler sets the handler for modifier state events
func (k *Keyboard) SetModifiersHandler(handler func(depressed, latched, locked, group uint32)) {
	k.modifiersHandler = handler
}

// Release releases the keyboard (since version 3)
func (k *Keyboard) Release() error {
	// Opcode 0: release
	const opcode = 0
	err := k.Context().SendRequest(k, opcode)
	k.Context().Unregister(k)
	return err
}

// Dispatch handles incoming events
func (k *Keyboard) Dispatch(event *wl.Event) {
	switch event.Opcode {
	case 0: // keymap (format, fd, size); fd arrives out of band and is unused
	case 1: // enter
	case 2: // leave
	case 3: // key
		serial := event.Uint32()
		time := event.Uint32()
		key := event.Uint32()
		state := event.Uint32()
		if k.keyHandler != nil {
			k.keyHandler(serial, time, key, state)
		}
	case 4: // modifiers
		_ = event.Uint32() // serial
		depressed := event.Uint32()
		latched := event.Uint32()
		locked := event.Uint32()
		group := event.Uint32()
		if k.modifiersHandler != nil {
			k.modifiersHandler(depressed, latched, locked, group)
		}
	case 5: // repeat_info (since version 4)
	}
}
