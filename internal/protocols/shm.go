package protocols

import (
	"github.com/bnema/wlturbo/wl"
)

// Pixel formats from wl_shm
const (
	FormatArgb8888 = 0
	FormatXrgb8888 = 1
)

// Shm is the shared-memory global
type Shm struct {
	wl.BaseProxy
}

// NewShm creates a new shm proxy. The ID is set by Registry.Bind.
func NewShm(ctx *wl.Context) *Shm {
	s := &Shm{}
	s.SetContext(ctx)
	return s
}

// CreatePool shares a file descriptor with the compositor as a buffer pool
func (s *Shm) CreatePool(fd int, size int32) (*ShmPool, error) {
	p := newShmPool(s.Context())

	// Opcode 0: create_pool
	const opcode = 0
	if err := s.Context().SendRequestWithFDs(s, opcode, []int{fd}, p, uintptr(fd), size); err != nil {
		s.Context().Unregister(p)
		return nil, err
	}
	return p, nil
}

// Dispatch handles incoming events (advertised formats are ignored; every
// compositor must support argb8888 and xrgb8888)
func (s *Shm) Dispatch(event *wl.Event) {
}

// ShmPool is a compositor-visible window onto a shared file
type ShmPool struct {
	wl.BaseProxy
}

func newShmPool(ctx *wl.Context) *ShmPool {
	p := &ShmPool{}
	p.SetContext(ctx)
	id := ctx.AllocateID()
	p.SetID(id)
	ctx.Register(p)
	return p
}

// CreateBuffer carves a buffer out of the pool
func (p *ShmPool) CreateBuffer(offset, width, height, stride int32, format uint32) (*Buffer, error) {
	b := newBuffer(p.Context())

	// Opcode 0: create_buffer
	const opcode = 0
	if err := p.Context().SendRequest(p, opcode, b, offset, width, height, stride, format); err != nil {
		p.Context().Unregister(b)
		return nil, err
	}
	return b, nil
}

// Resize grows the pool. Shrinking is a protocol error on the server side.
func (p *ShmPool) Resize(size int32) error {
	// Opcode 2: resize
	const opcode = 2
	return p.Context().SendRequest(p, opcode, size)
}

// Destroy destroys the pool. Buffers created from it survive until released.
func (p *ShmPool) Destroy() error {
	// Opcode 1: destroy
	const opcode = 1
	err := p.Context().SendRequest(p, opcode)
	p.Context().Unregister(p)
	return err
}

// Dispatch handles incoming events (pool has no events)
func (p *ShmPool) Dispatch(event *wl.Event) {
}

// Buffer is one compositor-visible pixel buffer
type Buffer struct {
	wl.BaseProxy

	releaseHandler func()
}

func newBuffer(ctx *wl.Context) *Buffer {
	b := &Buffer{}
	b.SetContext(ctx)
	id := ctx.AllocateID()
	b.SetID(id)
	ctx.Register(b)
	return b
}

// SetReleaseHandler sets the handler for the release event
func (b *Buffer) SetReleaseHandler(handler func()) {
	b.releaseHandler = handler
}

// Destroy destroys the buffer
func (b *Buffer) Destroy() error {
	// Opcode 0: destroy
	const opcode = 0
	err := b.Context().SendRequest(b, opcode)
	b.Context().Unregister(b)
	return err
}

// Dispatch handles incoming events
func (b *Buffer) Dispatch(event *wl.Event) {
	switch event.Opcode {
	case 0: // release
		if b.releaseHandler != nil {
			b.releaseHandler()
		}
	}
}
