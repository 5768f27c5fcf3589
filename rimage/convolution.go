package rimage

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/augment/utils"
)

// Kernel is a convolution matrix with an odd number of rows and columns.
type Kernel struct {
	*mat.Dense
}

// NewKernel builds a kernel from row-major values.
func NewKernel(rows, cols int, values []float64) (Kernel, error) {
	if rows <= 0 || cols <= 0 || rows%2 == 0 || cols%2 == 0 {
		return Kernel{}, errors.Errorf("kernel dimensions must be positive and odd, got %dx%d", rows, cols)
	}
	if len(values) != rows*cols {
		return Kernel{}, errors.Errorf("kernel of %dx%d needs %d values, got %d", rows, cols, rows*cols, len(values))
	}
	return Kernel{mat.NewDense(rows, cols, values)}, nil
}

// GetSobelX returns the Sobel kernel in the x direction.
func GetSobelX() Kernel {
	return Kernel{mat.NewDense(3, 3, []float64{
		-1, 0, 1,
		-2, 0, 2,
		-1, 0, 1,
	})}
}

// GetSobelY returns the Sobel kernel in the y direction.
func GetSobelY() Kernel {
	return Kernel{mat.NewDense(3, 3, []float64{
		-1, -2, -1,
		0, 0, 0,
		1, 2, 1,
	})}
}

// ConvolveGray applies the kernel to a Gray8 frame and returns the unclamped response as a
// rows×cols matrix (rows = frame height). Out-of-frame pixels replicate the nearest edge.
func ConvolveGray(src *Frame, kernel Kernel) (*mat.Dense, error) {
	if src.Format != Gray8 {
		return nil, errors.Wrapf(ErrFormatMismatch, "convolution expects gray8 but got %v", src.Format)
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	kr, kc := kernel.Dims()
	ar, ac := kr/2, kc/2
	w, h := src.Width, src.Height
	result := mat.NewDense(max(h, 1), max(w, 1), nil)
	if w == 0 || h == 0 {
		return result, nil
	}
	utils.ParallelForEachRow(h, func(y int) {
		for x := 0; x < w; x++ {
			sum := 0.0
			for ky := 0; ky < kr; ky++ {
				row := src.Row(utils.ClampInt(y+ky-ar, 0, h-1))
				for kx := 0; kx < kc; kx++ {
					sum += float64(row[utils.ClampInt(x+kx-ac, 0, w-1)]) * kernel.At(ky, kx)
				}
			}
			result.Set(y, x, sum)
		}
	})
	return result, nil
}

// SobelMagnitude returns the gradient magnitude of a Gray8 frame, saturated to 0-255.
func SobelMagnitude(src *Frame) (*Frame, error) {
	gx, err := ConvolveGray(src, GetSobelX())
	if err != nil {
		return nil, err
	}
	gy, err := ConvolveGray(src, GetSobelY())
	if err != nil {
		return nil, err
	}
	out := NewFrame(src.Width, src.Height, Gray8)
	utils.ParallelForEachRow(src.Height, func(y int) {
		row := out.Row(y)
		for x := range row {
			row[x] = utils.ClampToUint8(math.Hypot(gx.At(y, x), gy.At(y, x)))
		}
	})
	return out, nil
}
