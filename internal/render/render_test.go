package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/shaderlock/internal/capture"
)

func captureBuffer(width, height uint32, fill byte, yInvert bool) *capture.Buffer {
	data := make([]byte, width*height*4)
	for i := range data {
		data[i] = fill
	}
	return capture.NewBuffer(capture.BufferInfo{
		Width:  width,
		Height: height,
		Stride: width * 4,
		Format: 1,
	}, data, yInvert)
}

func TestScreenshotFullBrightness(t *testing.T) {
	r := NewScreenshot(captureBuffer(4, 4, 0x80, false), nil)

	dst := make([]byte, 4*4*4)
	require.NoError(t, r.Render(dst, 4, 4, 16, 1.0))

	assert.Equal(t, byte(0x80), dst[0])
	assert.Equal(t, byte(0xff), dst[3], "output must be opaque")
}

func TestScreenshotDims(t *testing.T) {
	r := NewScreenshot(captureBuffer(2, 2, 0x80, false), nil)

	dst := make([]byte, 2*2*4)
	require.NoError(t, r.Render(dst, 2, 2, 8, 0.5))

	assert.Equal(t, byte(0x40), dst[0])

	require.NoError(t, r.Render(dst, 2, 2, 8, 0))
	assert.Equal(t, byte(0), dst[0])
	assert.Equal(t, byte(0xff), dst[3])
}

func TestScreenshotScalesToSurface(t *testing.T) {
	// 2x2 source rendered onto a 4x4 surface must still fill every pixel.
	r := NewScreenshot(captureBuffer(2, 2, 0xaa, false), nil)

	dst := make([]byte, 4*4*4)
	require.NoError(t, r.Render(dst, 4, 4, 16, 1.0))

	for px := 0; px < 16; px++ {
		assert.Equal(t, byte(0xaa), dst[px*4], "pixel %d", px)
	}
}

func TestScreenshotYInvert(t *testing.T) {
	// Source top row dark, bottom row bright.
	shot := captureBuffer(2, 2, 0, false)
	copy(shot.Bytes()[8:], []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})

	t.Run("upright", func(t *testing.T) {
		dst := make([]byte, 2*2*4)
		require.NoError(t, NewScreenshot(shot, nil).Render(dst, 2, 2, 8, 1.0))
		assert.Equal(t, byte(0x00), dst[0], "top-left stays dark")
		assert.Equal(t, byte(0xff), dst[8], "bottom-left stays bright")
	})

	t.Run("inverted", func(t *testing.T) {
		inv := capture.NewBuffer(shot.Info, shot.Bytes(), true)
		dst := make([]byte, 2*2*4)
		require.NoError(t, NewScreenshot(inv, nil).Render(dst, 2, 2, 8, 1.0))
		assert.Equal(t, byte(0xff), dst[0], "rows swap when inverted")
		assert.Equal(t, byte(0x00), dst[8])
	})
}

func TestScreenshotRejectsBadGeometry(t *testing.T) {
	r := NewScreenshot(captureBuffer(2, 2, 0, false), nil)

	assert.Error(t, r.Render(make([]byte, 16), 2, 2, 4, 1.0), "stride too small")
	assert.Error(t, r.Render(make([]byte, 4), 2, 2, 8, 1.0), "buffer too small")
}

func TestScreenshotIconOverlay(t *testing.T) {
	icon := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			icon.Set(x, y, color.RGBA{R: 0xff, A: 0xff})
		}
	}

	r := NewScreenshot(captureBuffer(4, 4, 0, false), icon)
	dst := make([]byte, 4*4*4)
	require.NoError(t, r.Render(dst, 4, 4, 16, 1.0))

	// Center pixel (1,1) carries the icon's red; corner (0,0) does not.
	center := dst[(1*16)+(1*4):]
	assert.Equal(t, byte(0xff), center[2], "red channel set in center")
	assert.Equal(t, byte(0), dst[2], "corner untouched")
}

func TestSolid(t *testing.T) {
	r := &Solid{B: 0x10, G: 0x20, R: 0x30}

	dst := make([]byte, 2*2*4)
	require.NoError(t, r.Render(dst, 2, 2, 8, 1.0))
	assert.Equal(t, []byte{0x10, 0x20, 0x30, 0xff}, dst[:4])

	require.NoError(t, r.Render(dst, 2, 2, 8, 0.5))
	assert.Equal(t, byte(0x08), dst[0])
}
