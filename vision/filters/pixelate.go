package filters

import (
	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"go.viam.com/augment/rimage"
	"go.viam.com/augment/utils"
)

// PixelateConfig configures the pixelate filter.
type PixelateConfig struct {
	BlockSize int `json:"block_size"`
	// GridSize, when set, resizes every frame to GridSize x GridSize cells whatever its size and
	// takes precedence over BlockSize.
	GridSize int `json:"grid_size"`
}

type pixelate struct {
	block int
	grid  int
}

func newPixelate(attributes utils.AttributeMap) (FrameFilter, error) {
	cfg := PixelateConfig{BlockSize: 8}
	if err := utils.DecodeInto(attributes, &cfg, true); err != nil {
		return nil, err
	}
	if cfg.BlockSize <= 0 {
		return nil, errors.Errorf("block_size must be positive, got %d", cfg.BlockSize)
	}
	if cfg.GridSize < 0 {
		return nil, errors.Errorf("grid_size must not be negative, got %d", cfg.GridSize)
	}
	return &pixelate{block: cfg.BlockSize, grid: cfg.GridSize}, nil
}

func (p *pixelate) Name() string { return PixelateName }

// Apply downsamples the frame to the grid, or by the block size, and scales it back up without
// interpolation.
func (p *pixelate) Apply(frame *rimage.Frame) (*rimage.Frame, error) {
	img, err := rimage.ToImage(frame)
	if err != nil {
		return nil, err
	}
	if frame.Width == 0 || frame.Height == 0 {
		return frame.Clone(), nil
	}
	w, h := max(frame.Width/p.block, 1), max(frame.Height/p.block, 1)
	if p.grid > 0 {
		w, h = p.grid, p.grid
	}
	small := resize.Resize(uint(w), uint(h), img, resize.Bilinear)
	large := resize.Resize(uint(frame.Width), uint(frame.Height), small, resize.NearestNeighbor)
	return fromImage(large, frame.Format)
}
