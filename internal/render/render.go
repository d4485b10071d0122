// Package render draws lock surface contents into shared-memory buffers.
//
// The compositor hands every lock surface a size at configure time; the
// renderer fills a buffer of that size from the captured screenshot,
// darkening it towards black as the idle fade progresses.
package render

import (
	"fmt"
	"image"

	"github.com/bnema/shaderlock/internal/capture"
)

// Renderer produces one frame of lock surface content.
type Renderer interface {
	// Render fills dst, a 32-bit-per-pixel buffer of the given geometry.
	// brightness runs from 1 (screenshot as captured) down to 0 (black).
	Render(dst []byte, width, height, stride uint32, brightness float64) error
}

// Screenshot renders a captured frame, scaled to the surface and dimmed,
// with an optional icon composited in the centre.
type Screenshot struct {
	shot *capture.Buffer
	icon image.Image
}

// NewScreenshot creates a renderer over one captured frame. icon may be nil.
func NewScreenshot(shot *capture.Buffer, icon image.Image) *Screenshot {
	return &Screenshot{shot: shot, icon: icon}
}

// Render scales the screenshot to the destination with nearest-neighbour
// sampling, honouring the capture's vertical inversion, and multiplies the
// colour channels by brightness.
func (r *Screenshot) Render(dst []byte, width, height, stride uint32, brightness float64) error {
	if stride < width*4 {
		return fmt.Errorf("stride %d too small for width %d", stride, width)
	}
	if uint32(len(dst)) < stride*height {
		return fmt.Errorf("buffer %d bytes, need %d", len(dst), stride*height)
	}
	if brightness < 0 {
		brightness = 0
	} else if brightness > 1 {
		brightness = 1
	}

	src := r.shot.Bytes()
	info := r.shot.Info
	if info.Width == 0 || info.Height == 0 {
		return fmt.Errorf("empty screenshot %dx%d", info.Width, info.Height)
	}

	scale := uint32(brightness * 256)
	for y := uint32(0); y < height; y++ {
		sy := y * info.Height / height
		if r.shot.YInvert {
			sy = info.Height - 1 - sy
		}
		srcRow := src[sy*info.Stride:]
		dstRow := dst[y*stride:]
		for x := uint32(0); x < width; x++ {
			sx := x * info.Width / width
			s := srcRow[sx*4 : sx*4+4]
			d := dstRow[x*4 : x*4+4]
			d[0] = byte(uint32(s[0]) * scale >> 8)
			d[1] = byte(uint32(s[1]) * scale >> 8)
			d[2] = byte(uint32(s[2]) * scale >> 8)
			d[3] = 0xff
		}
	}

	if r.icon != nil {
		compositeCenter(dst, width, height, stride, r.icon)
	}
	return nil
}

// compositeCenter alpha-blends img over the centre of dst.
func compositeCenter(dst []byte, width, height, stride uint32, img image.Image) {
	bounds := img.Bounds()
	iw, ih := bounds.Dx(), bounds.Dy()
	if iw <= 0 || ih <= 0 || uint32(iw) > width || uint32(ih) > height {
		return
	}
	ox := (int(width) - iw) / 2
	oy := (int(height) - ih) / 2

	for y := 0; y < ih; y++ {
		row := dst[uint32(oy+y)*stride:]
		for x := 0; x < iw; x++ {
			sr, sg, sb, sa := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			if sa == 0 {
				continue
			}
			d := row[(ox+x)*4 : (ox+x)*4+4]
			// Premultiplied 16-bit source over opaque 8-bit destination.
			inv := 0xffff - sa
			d[0] = byte((sb + uint32(d[0])*inv/0xff) >> 8)
			d[1] = byte((sg + uint32(d[1])*inv/0xff) >> 8)
			d[2] = byte((sr + uint32(d[2])*inv/0xff) >> 8)
		}
	}
}

// Solid renders a uniform colour, used when no screenshot is available for
// an output.
type Solid struct {
	// B, G, R are the colour channels in buffer byte order.
	B, G, R byte
}

// Render fills dst with the colour scaled by brightness.
func (r *Solid) Render(dst []byte, width, height, stride uint32, brightness float64) error {
	if stride < width*4 {
		return fmt.Errorf("stride %d too small for width %d", stride, width)
	}
	if brightness < 0 {
		brightness = 0
	} else if brightness > 1 {
		brightness = 1
	}
	scale := uint32(brightness * 256)
	b := byte(uint32(r.B) * scale >> 8)
	g := byte(uint32(r.G) * scale >> 8)
	rr := byte(uint32(r.R) * scale >> 8)
	for y := uint32(0); y < height; y++ {
		row := dst[y*stride:]
		for x := uint32(0); x < width; x++ {
			d := row[x*4 : x*4+4]
			d[0] = b
			d[1] = g
			d[2] = rr
			d[3] = 0xff
		}
	}
	return nil
}
