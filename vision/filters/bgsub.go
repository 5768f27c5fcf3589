package filters

import (
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/augment/rimage"
	"go.viam.com/augment/utils"
)

// BgSubConfig configures the background subtractor. The background is a running average of the
// luminance that moves towards each new frame by LearningRate. Pixels that differ from it by at
// least Threshold are foreground.
type BgSubConfig struct {
	LearningRate float64 `json:"learning_rate"`
	Threshold    float64 `json:"threshold"`
}

type backgroundSubtractor struct {
	rate      float64
	threshold float64

	mu         sync.Mutex
	w, h       int
	background []float64
	current    []float64
}

func newBackgroundSubtractor(attributes utils.AttributeMap) (FrameFilter, error) {
	cfg := BgSubConfig{LearningRate: 0.05, Threshold: 30}
	if err := utils.DecodeInto(attributes, &cfg, true); err != nil {
		return nil, err
	}
	if cfg.LearningRate <= 0 || cfg.LearningRate > 1 {
		return nil, errors.Errorf("learning_rate must be in (0, 1], got %v", cfg.LearningRate)
	}
	if cfg.Threshold < 0 {
		return nil, errors.Errorf("threshold must not be negative, got %v", cfg.Threshold)
	}
	return &backgroundSubtractor{rate: cfg.LearningRate, threshold: cfg.Threshold}, nil
}

func (b *backgroundSubtractor) Name() string { return BgSubName }

// Apply returns the foreground mask of the frame, expanded to the frame's format, and then folds
// the frame into the background. The first frame, and the first after a size change, only seeds
// the background.
func (b *backgroundSubtractor) Apply(frame *rimage.Frame) (*rimage.Frame, error) {
	gray, err := rimage.ToGray(frame)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := gray.Width * gray.Height
	if b.background == nil || b.w != gray.Width || b.h != gray.Height {
		b.w, b.h = gray.Width, gray.Height
		b.background = make([]float64, n)
		b.current = make([]float64, n)
		for i, v := range gray.Data[:n] {
			b.background[i] = float64(v)
		}
	}
	for i, v := range gray.Data[:n] {
		b.current[i] = float64(v)
	}

	mask := rimage.NewFrame(gray.Width, gray.Height, rimage.Gray8)
	for i, v := range b.current {
		d := v - b.background[i]
		if d >= b.threshold || -d >= b.threshold {
			mask.Data[i] = 255
		}
	}

	floats.Scale(1-b.rate, b.background)
	floats.AddScaled(b.background, b.rate, b.current)

	out := rimage.NewFrame(frame.Width, frame.Height, frame.Format)
	if err := rimage.ExpandGray(mask, out); err != nil {
		return nil, err
	}
	return out, nil
}
