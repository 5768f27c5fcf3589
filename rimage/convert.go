package rimage

import (
	"image"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"go.viam.com/augment/utils"
)

// BT.601 luma weights scaled by 1<<14, the same fixed-point coefficients OpenCV uses for its
// RGB to gray conversion.
const (
	lumaR     = 4899
	lumaG     = 9617
	lumaB     = 1868
	lumaShift = 14
	lumaRound = 1 << (lumaShift - 1)
)

// Luma returns the integer BT.601 luminance of an RGB triple.
func Luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*lumaR + uint32(g)*lumaG + uint32(b)*lumaB + lumaRound) >> lumaShift)
}

// ToGray converts a 3-channel frame to a packed Gray8 frame, honoring the frame's channel order.
// A Gray8 input is copied.
func ToGray(src *Frame) (*Frame, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	switch src.Format {
	case Gray8:
		return src.Clone(), nil
	case RGB24, BGR24:
	default:
		return nil, errors.Wrapf(ErrFormatMismatch, "cannot convert %v to gray", src.Format)
	}

	rIdx, bIdx := 0, 2
	if src.Format == BGR24 {
		rIdx, bIdx = 2, 0
	}
	out := NewFrame(src.Width, src.Height, Gray8)
	utils.ParallelForEachRow(src.Height, func(y int) {
		in := src.Row(y)
		row := out.Row(y)
		for x := range row {
			p := in[x*3 : x*3+3]
			row[x] = Luma(p[rIdx], p[1], p[bIdx])
		}
	})
	return out, nil
}

// ExpandGray writes a Gray8 frame into dst, replicating the gray value into every channel of
// dst's format. dst must have the same dimensions as gray.
func ExpandGray(gray, dst *Frame) error {
	if gray.Format != Gray8 {
		return errors.Wrapf(ErrFormatMismatch, "expected gray8 source but got %v", gray.Format)
	}
	if dst == nil || dst.Width != gray.Width || dst.Height != gray.Height {
		return errors.Wrap(ErrFormatMismatch, "destination size differs from the gray source")
	}
	if err := dst.Validate(); err != nil {
		return err
	}
	bpp := dst.Format.BytesPerPixel()
	utils.ParallelForEachRow(gray.Height, func(y int) {
		in := gray.Row(y)
		row := dst.Row(y)
		for x, v := range in {
			for c := 0; c < bpp; c++ {
				row[x*bpp+c] = v
			}
		}
	})
	return nil
}

// SwapRedBlue converts between RGB24 and BGR24.
func SwapRedBlue(src *Frame) (*Frame, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	var format PixelFormat
	switch src.Format {
	case RGB24:
		format = BGR24
	case BGR24:
		format = RGB24
	default:
		return nil, errors.Wrapf(ErrFormatMismatch, "cannot swap channels of %v", src.Format)
	}
	out := NewFrame(src.Width, src.Height, format)
	utils.ParallelForEachRow(src.Height, func(y int) {
		in := src.Row(y)
		row := out.Row(y)
		for x := 0; x < src.Width; x++ {
			row[x*3], row[x*3+1], row[x*3+2] = in[x*3+2], in[x*3+1], in[x*3]
		}
	})
	return out, nil
}

// FrameFromImage converts any image.Image into a packed RGB24 frame. Alpha is discarded.
func FrameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Copy(rgba, image.Point{}, img, b, draw.Src, nil)
	}
	out := NewFrame(b.Dx(), b.Dy(), RGB24)
	utils.ParallelForEachRow(out.Height, func(y int) {
		in := rgba.Pix[y*rgba.Stride:]
		row := out.Row(y)
		for x := 0; x < out.Width; x++ {
			copy(row[x*3:x*3+3], in[x*4:x*4+3])
		}
	})
	return out
}

// ToImage converts the frame into an opaque *image.RGBA.
func ToImage(f *Frame) (*image.RGBA, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	img := image.NewRGBA(f.Bounds())
	bpp := f.Format.BytesPerPixel()
	utils.ParallelForEachRow(f.Height, func(y int) {
		in := f.Row(y)
		out := img.Pix[y*img.Stride:]
		for x := 0; x < f.Width; x++ {
			o := out[x*4 : x*4+4]
			p := in[x*bpp : x*bpp+bpp]
			switch f.Format {
			case RGB24:
				o[0], o[1], o[2] = p[0], p[1], p[2]
			case BGR24:
				o[0], o[1], o[2] = p[2], p[1], p[0]
			case Gray8:
				o[0], o[1], o[2] = p[0], p[0], p[0]
			}
			o[3] = 0xff
		}
	})
	return img, nil
}

// SplitChannels returns one packed Gray8 frame per channel of src, in src's channel order.
func SplitChannels(src *Frame) ([]*Frame, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	bpp := src.Format.BytesPerPixel()
	planes := make([]*Frame, bpp)
	for c := range planes {
		planes[c] = NewFrame(src.Width, src.Height, Gray8)
	}
	utils.ParallelForEachRow(src.Height, func(y int) {
		in := src.Row(y)
		for c, plane := range planes {
			row := plane.Row(y)
			for x := range row {
				row[x] = in[x*bpp+c]
			}
		}
	})
	return planes, nil
}

// MergeChannels interleaves Gray8 planes into a packed frame of the given format. The number of
// planes must match the format's channel count.
func MergeChannels(planes []*Frame, format PixelFormat) (*Frame, error) {
	bpp := format.BytesPerPixel()
	if len(planes) != bpp || bpp == 0 {
		return nil, errors.Wrapf(ErrFormatMismatch, "%v needs %d planes, got %d", format, bpp, len(planes))
	}
	w, h := planes[0].Width, planes[0].Height
	for _, p := range planes {
		if p.Format != Gray8 || p.Width != w || p.Height != h {
			return nil, errors.Wrap(ErrFormatMismatch, "planes must be gray8 frames of equal size")
		}
	}
	out := NewFrame(w, h, format)
	utils.ParallelForEachRow(h, func(y int) {
		row := out.Row(y)
		for c, plane := range planes {
			in := plane.Row(y)
			for x, v := range in {
				row[x*bpp+c] = v
			}
		}
	})
	return out, nil
}
