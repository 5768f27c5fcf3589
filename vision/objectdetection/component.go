package objectdetection

import (
	"image"

	"github.com/pkg/errors"

	"go.viam.com/augment/rimage"
)

// ConnectedComponent is one 4-connected region of foreground pixels. Left and Top are the
// inclusive top-left corner of the bounding box and Area is the number of foreground pixels,
// which is at most Width*Height.
type ConnectedComponent struct {
	Left   int
	Top    int
	Width  int
	Height int
	Area   int
}

// Bounds returns the bounding box as a half-open rectangle.
func (c ConnectedComponent) Bounds() image.Rectangle {
	return image.Rect(c.Left, c.Top, c.Left+c.Width, c.Top+c.Height)
}

// LabelComponents finds the 4-connected regions of non-zero pixels in a Gray8 mask. Components
// are returned in the order their first pixel is met scanning rows top to bottom, left to right.
// The background is not reported.
func LabelComponents(mask *rimage.Frame) ([]ConnectedComponent, error) {
	if mask.Format != rimage.Gray8 {
		return nil, errors.Wrapf(rimage.ErrFormatMismatch, "labeling expects a gray8 mask but got %v", mask.Format)
	}
	if err := mask.Validate(); err != nil {
		return nil, err
	}
	w, h := mask.Width, mask.Height
	seen := make([]bool, w*h)
	var queue []image.Point
	components := []ConnectedComponent{}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if seen[y*w+x] || mask.Data[y*mask.Stride+x] == 0 {
				continue
			}
			seen[y*w+x] = true
			queue = append(queue[:0], image.Point{x, y})
			x0, y0, x1, y1 := x, y, x, y // inclusive bounding box
			area := 0
			for len(queue) != 0 {
				pt := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				area++
				x0, x1 = min(x0, pt.X), max(x1, pt.X)
				y0, y1 = min(y0, pt.Y), max(y1, pt.Y)
				for _, n := range [4]image.Point{{pt.X, pt.Y - 1}, {pt.X, pt.Y + 1}, {pt.X - 1, pt.Y}, {pt.X + 1, pt.Y}} {
					if n.X < 0 || n.Y < 0 || n.X >= w || n.Y >= h {
						continue
					}
					idx := n.Y*w + n.X
					if seen[idx] || mask.Data[n.Y*mask.Stride+n.X] == 0 {
						continue
					}
					seen[idx] = true
					queue = append(queue, n)
				}
			}
			components = append(components, ConnectedComponent{
				Left:   x0,
				Top:    y0,
				Width:  x1 - x0 + 1,
				Height: y1 - y0 + 1,
				Area:   area,
			})
		}
	}
	return components, nil
}
