// Package rimage holds the raw frame type that moves through the pipeline and the pixel stages
// that operate on it.
package rimage

import (
	"fmt"
	"image"

	"github.com/pkg/errors"
)

// PixelFormat describes the channel layout of a Frame's bytes.
type PixelFormat int

// The supported pixel formats. Every format is 8 bits per channel.
const (
	RGB24 PixelFormat = iota
	BGR24
	Gray8
)

// ErrFormatMismatch is returned when a frame's pixel format or dimensions do not match what a
// stage requires.
var ErrFormatMismatch = errors.New("frame format or size mismatch")

// BytesPerPixel returns the number of bytes one pixel occupies.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case RGB24, BGR24:
		return 3
	case Gray8:
		return 1
	default:
		return 0
	}
}

func (f PixelFormat) String() string {
	switch f {
	case RGB24:
		return "rgb24"
	case BGR24:
		return "bgr24"
	case Gray8:
		return "gray8"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// Frame is an owned raster of pixels. Row y starts at Data[y*Stride] and holds
// Width*Format.BytesPerPixel() meaningful bytes; any remaining bytes up to Stride are padding.
type Frame struct {
	Width  int
	Height int
	Format PixelFormat
	Stride int
	Data   []byte
}

// NewFrame allocates a zeroed, tightly packed frame.
func NewFrame(width, height int, format PixelFormat) *Frame {
	return NewFrameWithStride(width, height, format, width*format.BytesPerPixel())
}

// NewFrameWithStride allocates a zeroed frame whose rows are stride bytes apart. A stride smaller
// than a packed row is raised to the packed row length.
func NewFrameWithStride(width, height int, format PixelFormat, stride int) *Frame {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	if minStride := width * format.BytesPerPixel(); stride < minStride {
		stride = minStride
	}
	return &Frame{
		Width:  width,
		Height: height,
		Format: format,
		Stride: stride,
		Data:   make([]byte, stride*height),
	}
}

// FrameFromBytes wraps data as a packed frame, validating its length.
func FrameFromBytes(width, height int, format PixelFormat, data []byte) (*Frame, error) {
	f := &Frame{Width: width, Height: height, Format: format, Stride: width * format.BytesPerPixel(), Data: data}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks the layout invariants of the frame.
func (f *Frame) Validate() error {
	if f == nil {
		return errors.New("nil frame")
	}
	bpp := f.Format.BytesPerPixel()
	if bpp == 0 {
		return errors.Errorf("unknown pixel format %v", f.Format)
	}
	if f.Width < 0 || f.Height < 0 {
		return errors.Errorf("negative frame dimensions %dx%d", f.Width, f.Height)
	}
	if f.Stride < f.Width*bpp {
		return errors.Errorf("stride %d is smaller than a row of %d %v pixels", f.Stride, f.Width, f.Format)
	}
	if len(f.Data) < f.Stride*f.Height {
		return errors.Errorf("frame data holds %d bytes, need %d", len(f.Data), f.Stride*f.Height)
	}
	return nil
}

// Bounds returns the frame rectangle anchored at the origin.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Row returns the meaningful bytes of row y.
func (f *Frame) Row(y int) []byte {
	start := y * f.Stride
	return f.Data[start : start+f.Width*f.Format.BytesPerPixel()]
}

// Pixel returns the channel bytes of the pixel at (x, y) in the frame's own channel order.
func (f *Frame) Pixel(x, y int) []byte {
	bpp := f.Format.BytesPerPixel()
	start := y*f.Stride + x*bpp
	return f.Data[start : start+bpp]
}

// Clone returns a packed deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := NewFrame(f.Width, f.Height, f.Format)
	for y := 0; y < f.Height; y++ {
		copy(out.Row(y), f.Row(y))
	}
	return out
}

// SameLayout reports whether other has the same format and dimensions. Strides may differ.
func (f *Frame) SameLayout(other *Frame) bool {
	return f.Format == other.Format && f.Width == other.Width && f.Height == other.Height
}

// checkSameLayout returns ErrFormatMismatch with context when dst does not match src.
func checkSameLayout(src, dst *Frame) error {
	if dst == nil {
		return errors.Wrap(ErrFormatMismatch, "nil destination frame")
	}
	if !src.SameLayout(dst) {
		return errors.Wrapf(ErrFormatMismatch, "expected %v %dx%d but got %v %dx%d",
			src.Format, src.Width, src.Height, dst.Format, dst.Width, dst.Height)
	}
	return nil
}
