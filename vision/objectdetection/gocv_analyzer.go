//go:build gocv

package objectdetection

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"go.uber.org/multierr"

	"go.viam.com/augment/rimage"
)

// BackendGoCV names the OpenCV backed Detector.
const BackendGoCV = "gocv"

func init() {
	RegisterBackend(BackendGoCV, func(cfg AnalyzerConfig, posts ...Postprocessor) (Detector, error) {
		return NewGoCVAnalyzer(cfg, posts...)
	})
}

// GoCVAnalyzer runs the same pipeline as Analyzer through OpenCV.
type GoCVAnalyzer struct {
	cfg   AnalyzerConfig
	posts []Postprocessor
}

// NewGoCVAnalyzer returns an OpenCV backed Detector.
func NewGoCVAnalyzer(cfg AnalyzerConfig, posts ...Postprocessor) (*GoCVAnalyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &GoCVAnalyzer{cfg: cfg, posts: posts}, nil
}

// Analyze implements Detector.
func (a *GoCVAnalyzer) Analyze(frame, vis *rimage.Frame) (_ []ConnectedComponent, err error) {
	if err := checkInput(frame); err != nil {
		return nil, err
	}
	if err := checkVisualization(frame, vis); err != nil {
		return nil, err
	}
	packed := frame.Clone()
	src, err := gocv.NewMatFromBytes(packed.Height, packed.Width, gocv.MatTypeCV8UC3, packed.Data)
	if err != nil {
		return nil, errors.Wrap(err, "wrapping frame")
	}
	gray := gocv.NewMat()
	padded := gocv.NewMat()
	blurred := gocv.NewMat()
	mask := gocv.NewMat()
	labels := gocv.NewMat()
	stats := gocv.NewMat()
	centroids := gocv.NewMat()
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(a.cfg.KernelSize, a.cfg.KernelSize))
	defer func() {
		for _, m := range []*gocv.Mat{&src, &gray, &padded, &blurred, &mask, &labels, &stats, &centroids, &kernel} {
			err = multierr.Combine(err, m.Close())
		}
	}()

	code := gocv.ColorRGBToGray
	if frame.Format == rimage.BGR24 {
		code = gocv.ColorBGRToGray
	}
	gocv.CvtColor(src, &gray, code)

	// Pad with zeros so the blur sees a constant border, then crop back.
	r := a.cfg.BlurSize / 2
	gocv.CopyMakeBorder(gray, &padded, r, r, r, r, gocv.BorderConstant, color.RGBA{})
	gocv.Blur(padded, &blurred, image.Pt(a.cfg.BlurSize, a.cfg.BlurSize))
	cropped := blurred.Region(image.Rect(r, r, r+frame.Width, r+frame.Height))
	defer func() { err = multierr.Combine(err, cropped.Close()) }()

	// OpenCV's binary threshold is strict, so shift by one to keep values equal to the threshold.
	gocv.Threshold(cropped, &mask, float32(a.cfg.Threshold)-1, 255, gocv.ThresholdBinary)
	for i := 0; i < a.cfg.ErodeIterations; i++ {
		gocv.Erode(mask, &mask, kernel)
	}
	for i := 0; i < a.cfg.DilateIterations; i++ {
		gocv.Dilate(mask, &mask, kernel)
	}

	n := gocv.ConnectedComponentsWithStatsWithParams(mask, &labels, &stats, &centroids, 4, gocv.MatTypeCV32S, gocv.CCL_DEFAULT)
	components := make([]ConnectedComponent, 0, n)
	for label := 1; label < n; label++ {
		components = append(components, ConnectedComponent{
			Left:   int(stats.GetIntAt(label, int(gocv.CC_STAT_LEFT))),
			Top:    int(stats.GetIntAt(label, int(gocv.CC_STAT_TOP))),
			Width:  int(stats.GetIntAt(label, int(gocv.CC_STAT_WIDTH))),
			Height: int(stats.GetIntAt(label, int(gocv.CC_STAT_HEIGHT))),
			Area:   int(stats.GetIntAt(label, int(gocv.CC_STAT_AREA))),
		})
	}

	if vis != nil {
		maskFrame, ferr := rimage.FrameFromBytes(frame.Width, frame.Height, rimage.Gray8, mask.ToBytes())
		if ferr != nil {
			return nil, ferr
		}
		if ferr := rimage.ExpandGray(maskFrame, vis); ferr != nil {
			return nil, ferr
		}
	}
	for _, p := range a.posts {
		components = p(components)
	}
	return components, nil
}
