// Package shm allocates compositor-visible pixel buffers backed by
// anonymous shared memory.
package shm

import (
	"fmt"

	"github.com/bnema/wlturbo/wl"
	"golang.org/x/sys/unix"

	"github.com/bnema/shaderlock/internal/protocols"
)

// Pool creates shared-memory buffers against one wl_shm global. Each buffer
// gets its own anonymous file and wl_shm_pool: capture and render buffers
// have disjoint lifetimes, so there is nothing to win by packing them into
// one file and remapping on growth.
type Pool struct {
	shm *protocols.Shm
}

// NewPool creates a buffer pool over the bound wl_shm global
func NewPool(shm *protocols.Shm) *Pool {
	return &Pool{shm: shm}
}

// CreateBuffer allocates a buffer of the given geometry. The returned buffer
// is mapped read/write in this process and attachable compositor-side.
func (p *Pool) CreateBuffer(width, height, stride int32, format uint32) (*Buffer, error) {
	if width <= 0 || height <= 0 || stride < width*4 {
		return nil, fmt.Errorf("invalid buffer geometry %dx%d stride %d", width, height, stride)
	}
	size := stride * height

	fd, err := wl.CreateAnonymousFile(int64(size))
	if err != nil {
		return nil, fmt.Errorf("creating anonymous shm file: %w", err)
	}

	data, err := wl.MapMemory(fd, int(size))
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mapping shm file: %w", err)
	}

	wlPool, err := p.shm.CreatePool(fd, size)
	if err != nil {
		_ = wl.UnmapMemory(data)
		_ = unix.Close(fd)
		return nil, fmt.Errorf("creating wl_shm_pool: %w", err)
	}

	wlBuffer, err := wlPool.CreateBuffer(0, width, height, stride, format)
	if err != nil {
		_ = wlPool.Destroy()
		_ = wl.UnmapMemory(data)
		_ = unix.Close(fd)
		return nil, fmt.Errorf("creating wl_buffer: %w", err)
	}

	// The pool object is no longer needed once the buffer exists; the
	// backing memory stays alive until the buffer is destroyed.
	if err := wlPool.Destroy(); err != nil {
		return nil, fmt.Errorf("destroying wl_shm_pool: %w", err)
	}

	return &Buffer{
		buffer: wlBuffer,
		fd:     fd,
		data:   data,
		width:  width,
		height: height,
		stride: stride,
		format: format,
	}, nil
}

// Buffer is one shared-memory pixel buffer
type Buffer struct {
	buffer *protocols.Buffer
	fd     int
	data   []byte

	width, height, stride int32
	format                uint32
}

// WlBuffer returns the protocol object to attach or copy into
func (b *Buffer) WlBuffer() *protocols.Buffer { return b.buffer }

// Bytes returns the mapped pixel memory
func (b *Buffer) Bytes() []byte { return b.data }

// Width returns the buffer width in pixels
func (b *Buffer) Width() int32 { return b.width }

// Height returns the buffer height in pixels
func (b *Buffer) Height() int32 { return b.height }

// Stride returns the bytes per row
func (b *Buffer) Stride() int32 { return b.stride }

// Format returns the wl_shm pixel format tag
func (b *Buffer) Format() uint32 { return b.format }

// Destroy releases the protocol object and the backing memory
func (b *Buffer) Destroy() error {
	var first error
	if err := b.buffer.Destroy(); err != nil {
		first = err
	}
	if b.data != nil {
		if err := wl.UnmapMemory(b.data); err != nil && first == nil {
			first = err
		}
		b.data = nil
	}
	if b.fd >= 0 {
		if err := unix.Close(b.fd); err != nil && first == nil {
			first = err
		}
		b.fd = -1
	}
	return first
}
