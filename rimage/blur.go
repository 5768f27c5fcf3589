package rimage

import (
	"github.com/pkg/errors"

	"go.viam.com/augment/utils"
)

// BoxBlur averages every pixel of a Gray8 frame over a k×k window centered on it. Pixels outside
// the frame count as zero and the sum is always divided by k², so borders darken. k must be a
// positive odd number.
func BoxBlur(src *Frame, k int) (*Frame, error) {
	if src.Format != Gray8 {
		return nil, errors.Wrapf(ErrFormatMismatch, "box blur expects gray8 but got %v", src.Format)
	}
	if k <= 0 || k%2 == 0 {
		return nil, errors.Errorf("box blur kernel size must be a positive odd number, got %d", k)
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	w, h := src.Width, src.Height
	r := k / 2

	// Horizontal window sums, zero padded.
	horiz := make([]uint32, w*h)
	utils.ParallelForEachRow(h, func(y int) {
		in := src.Row(y)
		out := horiz[y*w : (y+1)*w]
		var sum uint32
		for x := 0; x < r && x < w; x++ {
			sum += uint32(in[x])
		}
		for x := 0; x < w; x++ {
			if x+r < w {
				sum += uint32(in[x+r])
			}
			if x-r-1 >= 0 {
				sum -= uint32(in[x-r-1])
			}
			out[x] = sum
		}
	})

	area := uint32(k * k)
	out := NewFrame(w, h, Gray8)
	utils.ParallelForEachRow(h, func(y int) {
		row := out.Row(y)
		y0 := utils.ClampInt(y-r, 0, h-1)
		y1 := utils.ClampInt(y+r, 0, h-1)
		for x := 0; x < w; x++ {
			var sum uint32
			for yy := y0; yy <= y1; yy++ {
				sum += horiz[yy*w+x]
			}
			row[x] = uint8((sum*2 + area) / (2 * area))
		}
	})
	return out, nil
}

// Threshold maps every Gray8 pixel at or above t to 255 and every other pixel to 0.
func Threshold(src *Frame, t uint8) (*Frame, error) {
	if src.Format != Gray8 {
		return nil, errors.Wrapf(ErrFormatMismatch, "threshold expects gray8 but got %v", src.Format)
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	out := NewFrame(src.Width, src.Height, Gray8)
	utils.ParallelForEachRow(src.Height, func(y int) {
		in := src.Row(y)
		row := out.Row(y)
		for x, v := range in {
			if v >= t {
				row[x] = 255
			}
		}
	})
	return out, nil
}
