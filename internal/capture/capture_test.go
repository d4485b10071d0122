package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/shaderlock/internal/protocols"
)

type fakeFrame struct {
	copied    *protocols.Buffer
	copyErr   error
	destroyed bool
}

func (f *fakeFrame) Copy(buffer *protocols.Buffer) error {
	if f.copyErr != nil {
		return f.copyErr
	}
	f.copied = buffer
	return nil
}

func (f *fakeFrame) Destroy() error {
	f.destroyed = true
	return nil
}

type fakeBuffer struct {
	data      []byte
	destroyed bool
}

func (b *fakeBuffer) WlBuffer() *protocols.Buffer { return nil }
func (b *fakeBuffer) Bytes() []byte               { return b.data }
func (b *fakeBuffer) Destroy() error {
	b.destroyed = true
	return nil
}

type fakeSource struct {
	infos     []BufferInfo
	buffers   []*fakeBuffer
	createErr error
}

func (s *fakeSource) CreateBuffer(info BufferInfo) (BufferHandle, error) {
	s.infos = append(s.infos, info)
	if s.createErr != nil {
		return nil, s.createErr
	}
	buf := &fakeBuffer{data: make([]byte, info.Stride*info.Height)}
	s.buffers = append(s.buffers, buf)
	return buf, nil
}

type fakeFlusher struct {
	err error
}

func (f fakeFlusher) Flush() error { return f.err }

func newTestPending(t *testing.T) (*Pending, *fakeFrame, *fakeSource) {
	t.Helper()
	frame := &fakeFrame{}
	source := &fakeSource{}
	return newPending(frame, source, fakeFlusher{}), frame, source
}

func await(t *testing.T, p *Pending) (*Buffer, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return p.Await(ctx)
}

func TestCaptureHappyPath(t *testing.T) {
	p, frame, source := newTestPending(t)

	p.handleBuffer(protocols.FormatXrgb8888, 4, 2, 16)
	p.handleFlags(0)
	p.handleBufferDone()

	require.Len(t, source.infos, 1)
	assert.Equal(t, BufferInfo{Width: 4, Height: 2, Stride: 16, Format: protocols.FormatXrgb8888}, source.infos[0])

	source.buffers[0].data[0] = 0x42
	p.handleReady()

	buf, err := await(t, p)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), buf.Bytes()[0])
	assert.EqualValues(t, protocols.TransformNormal, buf.Transform)
	assert.False(t, buf.YInvert)

	assert.True(t, frame.destroyed)
	assert.True(t, source.buffers[0].destroyed)
}

func TestCaptureRetainsFirstUsableAdvertisement(t *testing.T) {
	p, _, source := newTestPending(t)

	// An unknown format is skipped; of the usable ones, the first wins.
	p.handleBuffer(0x3231564e, 4, 4, 16)
	p.handleBuffer(protocols.FormatArgb8888, 8, 8, 32)
	p.handleBuffer(protocols.FormatXrgb8888, 16, 16, 64)
	p.handleLinuxDmabuf(0x34325258, 8, 8)
	p.handleBufferDone()

	require.Len(t, source.infos, 1)
	assert.EqualValues(t, protocols.FormatArgb8888, source.infos[0].Format)
	assert.Equal(t, uint32(8), source.infos[0].Width)
}

func TestCaptureFlagsLastWins(t *testing.T) {
	p, _, _ := newTestPending(t)

	p.handleBuffer(protocols.FormatXrgb8888, 2, 2, 8)
	p.handleFlags(protocols.ScreencopyFlagYInvert)
	p.handleFlags(0)
	p.handleFlags(protocols.ScreencopyFlagYInvert)
	p.handleBufferDone()
	p.handleReady()

	buf, err := await(t, p)
	require.NoError(t, err)
	assert.True(t, buf.YInvert)
}

func TestCaptureFailed(t *testing.T) {
	p, frame, _ := newTestPending(t)

	p.handleBuffer(protocols.FormatXrgb8888, 2, 2, 8)
	p.handleFailed()

	_, err := await(t, p)
	require.ErrorIs(t, err, ErrCaptureFailed)
	assert.True(t, frame.destroyed)
}

func TestCaptureReleasesOnAllocationFailure(t *testing.T) {
	frame := &fakeFrame{}
	source := &fakeSource{createErr: errors.New("pool exhausted")}
	p := newPending(frame, source, fakeFlusher{})

	p.handleBuffer(protocols.FormatXrgb8888, 2, 2, 8)
	p.handleBufferDone()

	_, err := await(t, p)
	require.ErrorContains(t, err, "allocating capture buffer")
	assert.True(t, frame.destroyed)
}

func TestCaptureReleasesOnCopyFailure(t *testing.T) {
	frame := &fakeFrame{copyErr: errors.New("display gone")}
	source := &fakeSource{}
	p := newPending(frame, source, fakeFlusher{})

	p.handleBuffer(protocols.FormatXrgb8888, 2, 2, 8)
	p.handleBufferDone()

	_, err := await(t, p)
	require.ErrorContains(t, err, "requesting frame copy")
	assert.True(t, frame.destroyed)
	require.Len(t, source.buffers, 1)
	assert.True(t, source.buffers[0].destroyed)
}

func TestCaptureReleasesOnFlushFailure(t *testing.T) {
	frame := &fakeFrame{}
	source := &fakeSource{}
	p := newPending(frame, source, fakeFlusher{err: errors.New("broken pipe")})

	p.handleBuffer(protocols.FormatXrgb8888, 2, 2, 8)
	p.handleBufferDone()

	_, err := await(t, p)
	require.ErrorContains(t, err, "flushing frame copy")
	assert.True(t, frame.destroyed)
	require.Len(t, source.buffers, 1)
	assert.True(t, source.buffers[0].destroyed)
}

func TestConcurrentCapturesStayIndependent(t *testing.T) {
	a, _, aSource := newTestPending(t)
	b, _, _ := newTestPending(t)

	// Interleave two handshakes; one fails, the other still completes.
	a.handleBuffer(protocols.FormatXrgb8888, 2, 2, 8)
	b.handleBuffer(protocols.FormatXrgb8888, 4, 4, 16)
	b.handleFailed()
	a.handleBufferDone()
	a.handleReady()

	_, err := await(t, b)
	require.ErrorIs(t, err, ErrCaptureFailed)

	buf, err := await(t, a)
	require.NoError(t, err)
	assert.Len(t, buf.Bytes(), len(aSource.buffers[0].data))
}

func TestCaptureProtocolViolationsPanic(t *testing.T) {
	t.Run("ready before buffer_done", func(t *testing.T) {
		p, _, _ := newTestPending(t)
		p.handleBuffer(protocols.FormatXrgb8888, 2, 2, 8)
		assert.Panics(t, func() { p.handleReady() })
	})

	t.Run("buffer_done without advertisement", func(t *testing.T) {
		p, _, _ := newTestPending(t)
		assert.Panics(t, func() { p.handleBufferDone() })
	})

	t.Run("double resolution", func(t *testing.T) {
		p, _, _ := newTestPending(t)
		p.handleBuffer(protocols.FormatXrgb8888, 2, 2, 8)
		p.handleFailed()
		assert.Panics(t, func() { p.handleFailed() })
	})
}

func TestCaptureAwaitHonorsContext(t *testing.T) {
	p, _, _ := newTestPending(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransformMatrix(t *testing.T) {
	tests := []struct {
		name      string
		transform int32
		yInvert   bool
		want      [16]float32
	}{
		{
			name:      "normal",
			transform: protocols.TransformNormal,
			want: [16]float32{
				1, 0, 0, 0,
				0, 1, 0, 0,
				0, 0, 1, 0,
				0, 0, 0, 1,
			},
		},
		{
			name:      "normal y-inverted",
			transform: protocols.TransformNormal,
			yInvert:   true,
			want: [16]float32{
				-1, 0, 0, 0,
				0, 1, 0, 0,
				0, 0, 1, 0,
				0, 0, 0, 1,
			},
		},
		{
			name:      "quarter turn",
			transform: protocols.Transform90,
			want: [16]float32{
				0, 1, 0, 0,
				-1, 0, 0, 0,
				0, 0, 1, 0,
				0, 0, 0, 1,
			},
		},
		{
			name:      "half turn",
			transform: protocols.Transform180,
			want: [16]float32{
				-1, 0, 0, 0,
				0, -1, 0, 0,
				0, 0, 1, 0,
				0, 0, 0, 1,
			},
		},
		{
			name:      "flipped cancels y-invert",
			transform: protocols.TransformFlipped,
			yInvert:   true,
			want: [16]float32{
				1, 0, 0, 0,
				0, 1, 0, 0,
				0, 0, 1, 0,
				0, 0, 0, 1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &Buffer{Transform: tt.transform, YInvert: tt.yInvert}
			assert.Equal(t, tt.want, buf.TransformMatrix())
		})
	}
}
