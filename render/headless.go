package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/augment/logging"
	"go.viam.com/augment/rimage"
	"go.viam.com/augment/vision/objectdetection"
)

// HeadlessOptions configure a HeadlessRenderer.
type HeadlessOptions struct {
	// Width and Height are the reported drawable size. Zero uses the size of the first frame.
	Width, Height int
	// SnapshotDir receives annotated snapshots when set.
	SnapshotDir string
	// SnapshotFormat is one of rimage.ImageFormats. Empty writes PNG.
	SnapshotFormat string
	// SnapshotEvery writes every nth new frame. Zero or one writes every frame.
	SnapshotEvery int
	// MaxFrames closes the surface after this many new frames. Zero never closes it.
	MaxFrames int
}

// HeadlessRenderer stands in for a display. It logs detections and program changes and can
// write annotated snapshots of the frames it is given.
type HeadlessRenderer struct {
	opts   HeadlessOptions
	ext    string
	logger logging.Logger

	mu          sync.Mutex
	width       int
	height      int
	frames      int
	snapshots   []string
	programErrs map[string]string
	generations map[string]uint64
}

// NewHeadlessRenderer creates the snapshot directory if one is configured.
func NewHeadlessRenderer(opts HeadlessOptions, logger logging.Logger) (*HeadlessRenderer, error) {
	ext, err := rimage.FormatExtension(opts.SnapshotFormat)
	if err != nil {
		return nil, err
	}
	if opts.SnapshotDir != "" {
		if err := os.MkdirAll(opts.SnapshotDir, 0o750); err != nil {
			return nil, errors.Wrap(err, "creating snapshot directory")
		}
	}
	return &HeadlessRenderer{
		opts:        opts,
		ext:         ext,
		logger:      logger,
		width:       opts.Width,
		height:      opts.Height,
		programErrs: map[string]string{},
		generations: map[string]uint64{},
	}, nil
}

// Size implements Renderer.
func (r *HeadlessRenderer) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

// Draw implements Renderer.
func (r *HeadlessRenderer) Draw(ctx context.Context, out *TickOutput) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logPrograms(out.Programs)
	if !out.NewFrame {
		return nil
	}
	r.frames++
	if r.width == 0 || r.height == 0 {
		r.width, r.height = out.Frame.Width, out.Frame.Height
	}
	boxes := lo.Map(out.Components, func(c objectdetection.ConnectedComponent, _ int) string {
		return c.Bounds().String()
	})
	r.logger.Debugw("frame analyzed", "frame", r.frames, "components", len(out.Components), "boxes", boxes)
	if r.opts.SnapshotDir != "" && (r.frames-1)%max(r.opts.SnapshotEvery, 1) == 0 {
		if err := r.snapshot(out); err != nil {
			return err
		}
	}
	if r.opts.MaxFrames > 0 && r.frames >= r.opts.MaxFrames {
		return ErrSurfaceClosed
	}
	return nil
}

func (r *HeadlessRenderer) logPrograms(states []ProgramState) {
	for _, s := range states {
		if s.Err != nil {
			msg := s.Err.Error()
			if r.programErrs[s.Name] != msg {
				r.logger.Warnw("program unavailable", "program", s.Name, "error", msg)
				r.programErrs[s.Name] = msg
			}
			continue
		}
		delete(r.programErrs, s.Name)
		if r.generations[s.Name] != s.Generation {
			r.logger.Infow("drawing with program", "program", s.Name, "generation", s.Generation,
				"uniforms", len(s.Program.Uniforms))
			r.generations[s.Name] = s.Generation
		}
	}
}

func (r *HeadlessRenderer) snapshot(out *TickOutput) error {
	annotations := lo.Map(out.Components, func(c objectdetection.ConnectedComponent, i int) rimage.Annotation {
		return rimage.Annotation{Box: c.Bounds(), Label: fmt.Sprintf("#%d %dpx", i, c.Area)}
	})
	img, err := rimage.Annotate(out.Frame, annotations)
	if err != nil {
		return errors.Wrap(err, "annotating snapshot")
	}
	path := filepath.Join(r.opts.SnapshotDir, fmt.Sprintf("frame-%06d%s", r.frames, r.ext))
	if err := rimage.WriteImageFile(path, img); err != nil {
		return errors.Wrapf(err, "writing snapshot %q", path)
	}
	r.snapshots = append(r.snapshots, path)

	if out.Visualization != nil {
		mask, err := rimage.ToImage(out.Visualization)
		if err != nil {
			return err
		}
		maskPath := filepath.Join(r.opts.SnapshotDir, fmt.Sprintf("mask-%06d%s", r.frames, r.ext))
		if err := rimage.WriteImageFile(maskPath, mask); err != nil {
			return errors.Wrapf(err, "writing snapshot %q", maskPath)
		}
		r.snapshots = append(r.snapshots, maskPath)
	}
	return nil
}

// Frames returns how many new frames have been drawn.
func (r *HeadlessRenderer) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Snapshots returns the paths written so far.
func (r *HeadlessRenderer) Snapshots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.snapshots...)
}
