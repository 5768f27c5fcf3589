package filters

import (
	"image"

	"github.com/pkg/errors"

	"go.viam.com/augment/rimage"
	"go.viam.com/augment/utils"
)

// EdgesConfig configures the edge filter. Gradient magnitudes at or above High are edges; those
// at or above Low are edges only when connected to a strong edge.
type EdgesConfig struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

type edges struct {
	low, high uint8
}

func newEdges(attributes utils.AttributeMap) (FrameFilter, error) {
	cfg := EdgesConfig{Low: 50, High: 150}
	if err := utils.DecodeInto(attributes, &cfg, true); err != nil {
		return nil, err
	}
	if cfg.Low < 0 || cfg.High > 255 || cfg.Low > cfg.High {
		return nil, errors.Errorf("edge thresholds must satisfy 0 <= low <= high <= 255, got %v and %v", cfg.Low, cfg.High)
	}
	return &edges{low: utils.ClampToUint8(cfg.Low), high: utils.ClampToUint8(cfg.High)}, nil
}

func (e *edges) Name() string { return EdgesName }

// Apply renders the Sobel edges of the frame as white on black with hysteresis thresholding.
func (e *edges) Apply(frame *rimage.Frame) (*rimage.Frame, error) {
	gray, err := rimage.ToGray(frame)
	if err != nil {
		return nil, err
	}
	mag, err := rimage.SobelMagnitude(gray)
	if err != nil {
		return nil, err
	}
	mask := e.hysteresis(mag)
	out := rimage.NewFrame(frame.Width, frame.Height, frame.Format)
	if err := rimage.ExpandGray(mask, out); err != nil {
		return nil, err
	}
	return out, nil
}

// hysteresis keeps strong pixels and every weak pixel 8-connected to one.
func (e *edges) hysteresis(mag *rimage.Frame) *rimage.Frame {
	w, h := mag.Width, mag.Height
	out := rimage.NewFrame(w, h, rimage.Gray8)
	var stack []image.Point
	for y := 0; y < h; y++ {
		for x, v := range mag.Row(y) {
			if v >= e.high && out.Data[y*w+x] == 0 {
				out.Data[y*w+x] = 255
				stack = append(stack, image.Pt(x, y))
			}
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := p.X+dx, p.Y+dy
						if nx < 0 || ny < 0 || nx >= w || ny >= h || out.Data[ny*w+nx] != 0 {
							continue
						}
						if mag.Data[ny*mag.Stride+nx] >= e.low {
							out.Data[ny*w+nx] = 255
							stack = append(stack, image.Pt(nx, ny))
						}
					}
				}
			}
		}
	}
	return out
}
