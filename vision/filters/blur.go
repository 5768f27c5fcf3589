package filters

import (
	"github.com/pkg/errors"

	"go.viam.com/augment/rimage"
	"go.viam.com/augment/utils"
)

// BlurConfig configures the box blur filter.
type BlurConfig struct {
	KernelSize int `json:"kernel_size"`
}

type blur struct {
	k int
}

func newBlur(attributes utils.AttributeMap) (FrameFilter, error) {
	cfg := BlurConfig{KernelSize: 5}
	if err := utils.DecodeInto(attributes, &cfg, true); err != nil {
		return nil, err
	}
	if cfg.KernelSize <= 0 || cfg.KernelSize%2 == 0 {
		return nil, errors.Errorf("kernel_size must be a positive odd number, got %d", cfg.KernelSize)
	}
	return &blur{k: cfg.KernelSize}, nil
}

func (b *blur) Name() string { return BlurName }

// Apply box blurs every channel independently.
func (b *blur) Apply(frame *rimage.Frame) (*rimage.Frame, error) {
	return perPlane(frame, func(plane *rimage.Frame) (*rimage.Frame, error) {
		return rimage.BoxBlur(plane, b.k)
	})
}
