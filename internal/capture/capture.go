// Package capture turns the multi-callback screencopy handshake into a
// single awaitable completion per request.
//
// Per frame the compositor sends: zero or more buffer-format advertisements
// (the first shared-memory one is retained, dmabuf ones are accepted and
// ignored), zero or more flags events (last wins), one buffer-done marking
// all geometry known, then exactly one of ready or failed. Anything else is
// a protocol violation and treated as a fatal bug, not a recoverable error:
// it means this client and the server disagree about the wire state.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/shaderlock/internal/logger"
	"github.com/bnema/shaderlock/internal/protocols"
)

// ErrCaptureFailed is resolved into a pending capture when the compositor
// reports the copy failed. Recoverable at the granularity of that output.
var ErrCaptureFailed = errors.New("screencopy failed")

// BufferInfo describes a buffer the compositor can copy a frame into. It is
// known mid-handshake and needed before backing memory can be sized.
type BufferInfo struct {
	Width  uint32
	Height uint32
	Stride uint32
	Format uint32
}

// BufferHandle is an allocated compositor-visible buffer.
type BufferHandle interface {
	WlBuffer() *protocols.Buffer
	Bytes() []byte
	Destroy() error
}

// BufferSource allocates buffers matching a BufferInfo. Implemented by the
// shm pool in production and by fakes in tests.
type BufferSource interface {
	CreateBuffer(info BufferInfo) (BufferHandle, error)
}

// Frame is the protocol-facing slice of a screencopy frame object.
type Frame interface {
	Copy(buffer *protocols.Buffer) error
	Destroy() error
}

// Flusher pushes queued requests to the server mid-handshake, so the copy
// request reaches the compositor before the next dispatch wait.
type Flusher interface {
	Flush() error
}

// Grabber issues capture requests against the screencopy manager.
type Grabber struct {
	manager *protocols.ScreencopyManager
	source  BufferSource
	flusher Flusher
}

// NewGrabber creates a grabber. source allocates the pixel buffers the
// compositor copies into.
func NewGrabber(manager *protocols.ScreencopyManager, source BufferSource, flusher Flusher) *Grabber {
	return &Grabber{manager: manager, source: source, flusher: flusher}
}

// Capture starts capturing one frame of output and returns the pending
// completion. The protocol exchange is driven entirely by reactor dispatch;
// the caller only awaits.
func (g *Grabber) Capture(output *protocols.Output) (*Pending, error) {
	frame, err := g.manager.CaptureOutput(output)
	if err != nil {
		return nil, fmt.Errorf("requesting capture: %w", err)
	}

	p := newPending(frame, g.source, g.flusher)
	frame.SetBufferHandler(p.handleBuffer)
	frame.SetLinuxDmabufHandler(p.handleLinuxDmabuf)
	frame.SetFlagsHandler(p.handleFlags)
	frame.SetBufferDoneHandler(p.handleBufferDone)
	frame.SetReadyHandler(p.handleReady)
	frame.SetFailedHandler(p.handleFailed)

	if err := g.flusher.Flush(); err != nil {
		return nil, fmt.Errorf("flushing capture request: %w", err)
	}
	return p, nil
}

type result struct {
	buffer *Buffer
	err    error
}

// Pending is the single-use completion slot for one capture request: one
// writer at callback time, one reader at await time. Exactly one resolution
// happens per request; a second terminal callback panics.
type Pending struct {
	frame   Frame
	source  BufferSource
	flusher Flusher

	info     *BufferInfo
	yInvert  bool
	buffer   BufferHandle
	resolved bool

	done chan result
}

func newPending(frame Frame, source BufferSource, flusher Flusher) *Pending {
	return &Pending{
		frame:   frame,
		source:  source,
		flusher: flusher,
		done:    make(chan result, 1),
	}
}

// Await blocks until the capture resolves or the context ends. The buffer is
// consumed exactly once.
func (p *Pending) Await(ctx context.Context) (*Buffer, error) {
	select {
	case res := <-p.done:
		return res.buffer, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handleBuffer retains the first shared-memory buffer advertisement.
func (p *Pending) handleBuffer(format, width, height, stride uint32) {
	if p.info != nil {
		return
	}
	switch format {
	case protocols.FormatArgb8888, protocols.FormatXrgb8888:
		p.info = &BufferInfo{Width: width, Height: height, Stride: stride, Format: format}
	default:
		logger.Debug("ignoring buffer advertisement", "format", format)
	}
}

// handleLinuxDmabuf accepts and ignores dmabuf advertisements; this client
// only copies into shared memory.
func (p *Pending) handleLinuxDmabuf(format, width, height uint32) {
}

// handleFlags records orientation hints. The last flags event wins.
func (p *Pending) handleFlags(flags uint32) {
	p.yInvert = flags&protocols.ScreencopyFlagYInvert != 0
}

// handleBufferDone allocates the retained geometry and starts the copy.
func (p *Pending) handleBufferDone() {
	if p.info == nil {
		panic("screencopy: buffer_done without a usable buffer advertisement")
	}

	buffer, err := p.source.CreateBuffer(*p.info)
	if err != nil {
		p.release()
		p.resolve(result{err: fmt.Errorf("allocating capture buffer: %w", err)})
		return
	}
	p.buffer = buffer

	if err := p.frame.Copy(buffer.WlBuffer()); err != nil {
		p.release()
		p.resolve(result{err: fmt.Errorf("requesting frame copy: %w", err)})
		return
	}
	if err := p.flusher.Flush(); err != nil {
		p.release()
		p.resolve(result{err: fmt.Errorf("flushing frame copy: %w", err)})
	}
}

// handleReady assembles the finished buffer and resolves the completion.
func (p *Pending) handleReady() {
	if p.buffer == nil {
		panic("screencopy: ready before buffer_done")
	}

	bytes := make([]byte, len(p.buffer.Bytes()))
	copy(bytes, p.buffer.Bytes())
	buf := NewBuffer(*p.info, bytes, p.yInvert)

	p.release()
	p.resolve(result{buffer: buf})
}

// handleFailed resolves the completion with a per-request error.
func (p *Pending) handleFailed() {
	p.release()
	p.resolve(result{err: ErrCaptureFailed})
}

func (p *Pending) resolve(res result) {
	if p.resolved {
		panic("screencopy: capture resolved twice")
	}
	p.resolved = true
	p.done <- res
}

func (p *Pending) release() {
	if p.buffer != nil {
		if err := p.buffer.Destroy(); err != nil {
			logger.Warn("destroying capture buffer", "err", err)
		}
		p.buffer = nil
	}
	if err := p.frame.Destroy(); err != nil {
		logger.Warn("destroying screencopy frame", "err", err)
	}
}

// Buffer is a fully assembled screenshot: pixel bytes, geometry and the
// orientation needed to draw it the right way up. Immutable after assembly.
type Buffer struct {
	Info BufferInfo

	// Transform is the output rotation class. Screencopy delivers frames in
	// the output's unrotated coordinate space, so this stays normal today;
	// the matrix logic handles the full range regardless.
	Transform int32

	// YInvert reports the frame arrived vertically inverted.
	YInvert bool

	data []byte
}

// NewBuffer assembles a captured frame from raw pixel data. Frames arrive
// in the output's unrotated space, so the transform starts at normal.
func NewBuffer(info BufferInfo, data []byte, yInvert bool) *Buffer {
	return &Buffer{
		Info:      info,
		Transform: protocols.TransformNormal,
		YInvert:   yInvert,
		data:      data,
	}
}

// Bytes returns the pixel data
func (b *Buffer) Bytes() []byte { return b.data }

// TransformMatrix returns the column-major 4x4 matrix mapping the captured
// frame into render space: rotation by the transform's quarter turns plus a
// horizontal flip, xor-ed with the y-invert flag.
func (b *Buffer) TransformMatrix() [16]float32 {
	var quarters int
	switch b.Transform {
	case protocols.TransformNormal, protocols.TransformFlipped:
		quarters = 0
	case protocols.Transform90, protocols.TransformFlipped90:
		quarters = 1
	case protocols.Transform180, protocols.TransformFlipped180:
		quarters = 2
	case protocols.Transform270, protocols.TransformFlipped270:
		quarters = 3
	default:
		panic(fmt.Sprintf("unsupported output transform %d", b.Transform))
	}

	flipped := b.Transform == protocols.TransformFlipped ||
		b.Transform == protocols.TransformFlipped90 ||
		b.Transform == protocols.TransformFlipped180 ||
		b.Transform == protocols.TransformFlipped270
	flip := flipped != b.YInvert

	// cos/sin for quarter turns; exact values, no float drift.
	cos := [4]float32{1, 0, -1, 0}[quarters]
	sin := [4]float32{0, 1, 0, -1}[quarters]

	sx := float32(1)
	if flip {
		sx = -1
	}

	// Rz(angle) * Scale(sx, 1, 1), column-major.
	return [16]float32{
		cos * sx, sin * sx, 0, 0,
		-sin, cos, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}
