package filters

import (
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"go.viam.com/augment/rimage"
	"go.viam.com/augment/utils"
)

// DenoiseConfig configures the gaussian denoise filter.
type DenoiseConfig struct {
	Sigma float64 `json:"sigma"`
}

type denoise struct {
	sigma float64
}

func newDenoise(attributes utils.AttributeMap) (FrameFilter, error) {
	cfg := DenoiseConfig{Sigma: 1.5}
	if err := utils.DecodeInto(attributes, &cfg, true); err != nil {
		return nil, err
	}
	if cfg.Sigma <= 0 {
		return nil, errors.Errorf("sigma must be positive, got %v", cfg.Sigma)
	}
	return &denoise{sigma: cfg.Sigma}, nil
}

func (d *denoise) Name() string { return DenoiseName }

// Apply smooths the frame with a gaussian of the configured sigma.
func (d *denoise) Apply(frame *rimage.Frame) (*rimage.Frame, error) {
	img, err := rimage.ToImage(frame)
	if err != nil {
		return nil, err
	}
	return fromImage(imaging.Blur(img, d.sigma), frame.Format)
}
