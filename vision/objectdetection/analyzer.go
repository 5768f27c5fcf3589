// Package objectdetection finds bright regions in video frames.
package objectdetection

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/augment/rimage"
	"go.viam.com/augment/utils"
)

// Detector finds connected bright regions in a 3-channel frame. When vis is non-nil it must
// match the frame's format and size and is overwritten with the cleaned binary mask.
type Detector interface {
	Analyze(frame, vis *rimage.Frame) ([]ConnectedComponent, error)
}

// AnalyzerConfig tunes the pixel pipeline.
type AnalyzerConfig struct {
	BlurSize         int   `json:"blur_size"`
	Threshold        uint8 `json:"threshold"`
	KernelSize       int   `json:"kernel_size"`
	ErodeIterations  int   `json:"erode_iterations"`
	DilateIterations int   `json:"dilate_iterations"`
}

// DefaultAnalyzerConfig returns the tuning used for bright object tracking: an 11×11 blur, a
// threshold of 230, and a 3×3 opening with two erosions and four dilations.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		BlurSize:         11,
		Threshold:        230,
		KernelSize:       3,
		ErodeIterations:  2,
		DilateIterations: 4,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg AnalyzerConfig) Validate() error {
	if cfg.BlurSize <= 0 || cfg.BlurSize%2 == 0 {
		return errors.Errorf("blur_size must be a positive odd number, got %d", cfg.BlurSize)
	}
	if cfg.KernelSize <= 0 || cfg.KernelSize%2 == 0 {
		return errors.Errorf("kernel_size must be a positive odd number, got %d", cfg.KernelSize)
	}
	if cfg.ErodeIterations < 0 || cfg.DilateIterations < 0 {
		return errors.New("morphology iterations must not be negative")
	}
	return nil
}

// Analyzer is the built-in Detector. It keeps no state between frames and is safe for
// concurrent use.
type Analyzer struct {
	cfg   AnalyzerConfig
	posts []Postprocessor
}

// NewAnalyzer returns an Analyzer running the given pipeline followed by the postprocessors in
// order.
func NewAnalyzer(cfg AnalyzerConfig, posts ...Postprocessor) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{cfg: cfg, posts: posts}, nil
}

// Mask runs the pixel stages and returns the cleaned binary mask of the frame.
func (a *Analyzer) Mask(frame *rimage.Frame) (*rimage.Frame, error) {
	if err := checkInput(frame); err != nil {
		return nil, err
	}
	gray, err := rimage.ToGray(frame)
	if err != nil {
		return nil, err
	}
	blurred, err := rimage.BoxBlur(gray, a.cfg.BlurSize)
	if err != nil {
		return nil, err
	}
	mask, err := rimage.Threshold(blurred, a.cfg.Threshold)
	if err != nil {
		return nil, err
	}
	mask, err = rimage.Erode(mask, a.cfg.KernelSize, a.cfg.ErodeIterations)
	if err != nil {
		return nil, err
	}
	return rimage.Dilate(mask, a.cfg.KernelSize, a.cfg.DilateIterations)
}

// Analyze implements Detector.
func (a *Analyzer) Analyze(frame, vis *rimage.Frame) ([]ConnectedComponent, error) {
	if err := checkInput(frame); err != nil {
		return nil, err
	}
	if err := checkVisualization(frame, vis); err != nil {
		return nil, err
	}
	mask, err := a.Mask(frame)
	if err != nil {
		return nil, err
	}
	components, err := LabelComponents(mask)
	if err != nil {
		return nil, err
	}
	if vis != nil {
		if err := rimage.ExpandGray(mask, vis); err != nil {
			return nil, err
		}
	}
	for _, p := range a.posts {
		components = p(components)
	}
	return components, nil
}

func checkInput(frame *rimage.Frame) error {
	if frame == nil {
		return errors.New("nil frame")
	}
	if err := frame.Validate(); err != nil {
		return err
	}
	if frame.Format.BytesPerPixel() != 3 {
		return errors.Wrapf(rimage.ErrFormatMismatch, "analysis expects a 3-channel frame but got %v", frame.Format)
	}
	return nil
}

func checkVisualization(frame, vis *rimage.Frame) error {
	if vis == nil {
		return nil
	}
	if !frame.SameLayout(vis) {
		return errors.Wrapf(rimage.ErrFormatMismatch, "visualization frame is %v %dx%d but input is %v %dx%d",
			vis.Format, vis.Width, vis.Height, frame.Format, frame.Width, frame.Height)
	}
	return vis.Validate()
}

// BackendBuiltin names the pure Go Analyzer.
const BackendBuiltin = "builtin"

// DetectorConstructor builds a Detector backend.
type DetectorConstructor func(cfg AnalyzerConfig, posts ...Postprocessor) (Detector, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]DetectorConstructor{
		BackendBuiltin: func(cfg AnalyzerConfig, posts ...Postprocessor) (Detector, error) {
			return NewAnalyzer(cfg, posts...)
		},
	}
)

// RegisterBackend makes a Detector backend available by name. It is called from init functions of
// optional backends.
func RegisterBackend(name string, constructor DetectorConstructor) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = constructor
}

// Backends returns the sorted names of the available detector backends.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDetector builds the named backend. An empty name selects the built-in Analyzer.
func NewDetector(backend string, cfg AnalyzerConfig, posts ...Postprocessor) (Detector, error) {
	if backend == "" {
		backend = BackendBuiltin
	}
	backendsMu.RLock()
	constructor, ok := backends[backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, utils.NewUnknownNameError("analyzer backend", backend, Backends())
	}
	return constructor(cfg, posts...)
}
