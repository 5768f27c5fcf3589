package rimage

import (
	"github.com/pkg/errors"

	"go.viam.com/augment/utils"
)

// Erode applies a size×size rectangular minimum filter to a Gray8 frame, iterations times.
// Neighbors outside the frame are ignored, so borders do not erode on their own.
func Erode(src *Frame, size, iterations int) (*Frame, error) {
	return morph(src, size, iterations, func(a, b uint8) bool { return b < a })
}

// Dilate applies a size×size rectangular maximum filter to a Gray8 frame, iterations times.
// Neighbors outside the frame are ignored.
func Dilate(src *Frame, size, iterations int) (*Frame, error) {
	return morph(src, size, iterations, func(a, b uint8) bool { return b > a })
}

// morph runs the separable rectangular filter where better(cur, candidate) reports whether the
// candidate replaces the current extreme.
func morph(src *Frame, size, iterations int, better func(a, b uint8) bool) (*Frame, error) {
	if src.Format != Gray8 {
		return nil, errors.Wrapf(ErrFormatMismatch, "morphology expects gray8 but got %v", src.Format)
	}
	if size <= 0 || size%2 == 0 {
		return nil, errors.Errorf("structuring element size must be a positive odd number, got %d", size)
	}
	if iterations < 0 {
		return nil, errors.Errorf("iterations must not be negative, got %d", iterations)
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}

	cur := src.Clone()
	if cur.Width == 0 || cur.Height == 0 {
		return cur, nil
	}
	r := size / 2
	w, h := cur.Width, cur.Height
	tmp := NewFrame(w, h, Gray8)
	for i := 0; i < iterations; i++ {
		utils.ParallelForEachRow(h, func(y int) {
			in := cur.Row(y)
			out := tmp.Row(y)
			for x := 0; x < w; x++ {
				best := in[x]
				for xx := utils.ClampInt(x-r, 0, w-1); xx <= utils.ClampInt(x+r, 0, w-1); xx++ {
					if better(best, in[xx]) {
						best = in[xx]
					}
				}
				out[x] = best
			}
		})
		utils.ParallelForEachRow(h, func(y int) {
			out := cur.Row(y)
			y0, y1 := utils.ClampInt(y-r, 0, h-1), utils.ClampInt(y+r, 0, h-1)
			for x := 0; x < w; x++ {
				best := tmp.Data[y*tmp.Stride+x]
				for yy := y0; yy <= y1; yy++ {
					if v := tmp.Data[yy*tmp.Stride+x]; better(best, v) {
						best = v
					}
				}
				out[x] = best
			}
		})
	}
	return cur, nil
}
