// Package render drives the per-tick consumer side of the pipeline: it takes decoded frames off
// the channel, filters, analyzes and caches them, and hands the result to a Renderer at a fixed
// cadence.
package render

import (
	"context"
	"image"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/augment/gostream"
	"go.viam.com/augment/logging"
	"go.viam.com/augment/rimage"
	"go.viam.com/augment/shaders"
	"go.viam.com/augment/vision/filters"
	"go.viam.com/augment/vision/objectdetection"
)

// ErrSurfaceClosed is returned by a Renderer when its display has gone away. It ends the loop
// without error.
var ErrSurfaceClosed = errors.New("render surface closed")

// Renderer draws the output of each tick.
type Renderer interface {
	// Size returns the drawable size in pixels.
	Size() (width, height int)
	Draw(ctx context.Context, out *TickOutput) error
}

// Producer is the frame source feeding the loop. *gostream.FrameSource implements it.
type Producer interface {
	Start(sink gostream.FrameSink) error
	Err() <-chan error
	Stop()
}

// LoopStats receives per-tick measurements.
type LoopStats interface {
	FrameAnalyzed(elapsed time.Duration, components int)
	ChannelState(backlog int, dropped uint64)
	TickOverrun()
}

// Uniforms are the values every program is drawn with.
type Uniforms struct {
	// Resolution is width, height and height/width of the drawable.
	Resolution mgl32.Vec3
	// Time is seconds since the loop started.
	Time  float32
	Video *image.RGBA
}

// ProgramState is the state of one program at the time of the tick. Exactly one of Program and
// Err is set.
type ProgramState struct {
	Name       string
	Program    *shaders.Program
	Err        error
	Generation uint64
}

// TickOutput is what the loop produces each tick.
type TickOutput struct {
	Tick    uint64
	Elapsed time.Duration
	// NewFrame is set when a frame arrived this tick. Frame, Visualization, Components and
	// Overlays are only populated then.
	NewFrame      bool
	Frame         *rimage.Frame
	Visualization *rimage.Frame
	Components    []objectdetection.ConnectedComponent
	Overlays      []Quad
	// Texture is the most recent frame converted for display. It is nil until the first frame.
	Texture  *image.RGBA
	Panels   []PanelDraw
	Programs []ProgramState
	Uniforms Uniforms
}

// LoopConfig wires the pieces of a Loop together. Producer, Channel, Detector and Renderer are
// required.
type LoopConfig struct {
	Producer Producer
	Channel  *gostream.FrameChannel
	// Filter is applied to frames before display. Nil displays frames unchanged.
	Filter   filters.FrameFilter
	Detector objectdetection.Detector
	// Visualize fills TickOutput.Visualization with the detection mask.
	Visualize    bool
	Programs     []*shaders.ProgramHandle
	Renderer     Renderer
	Pacer        *Pacer
	SplitScreen  bool
	OverlayPanel Quad
	Clock        clock.Clock
	Stats        LoopStats
}

// Loop is the single-threaded consumer. Everything it does within a tick runs synchronously; the
// only suspension is the pacing wait at the end of the tick.
type Loop struct {
	cfg    LoopConfig
	panels []PanelDraw
	cache  *CachedValue[*rimage.Frame, *image.RGBA]
	logger logging.Logger
}

// NewLoop validates cfg and returns a loop ready to Run.
func NewLoop(cfg LoopConfig, logger logging.Logger) (*Loop, error) {
	switch {
	case cfg.Producer == nil:
		return nil, errors.New("loop needs a frame producer")
	case cfg.Channel == nil:
		return nil, errors.New("loop needs a frame channel")
	case cfg.Detector == nil:
		return nil, errors.New("loop needs a detector")
	case cfg.Renderer == nil:
		return nil, errors.New("loop needs a renderer")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Pacer == nil {
		cfg.Pacer = NewPacer(DefaultTargetTick, cfg.Clock)
	}
	if cfg.OverlayPanel == (Quad{}) {
		cfg.OverlayPanel = PanelLowerLeft
	}
	return &Loop{cfg: cfg, panels: Layout(cfg.SplitScreen), logger: logger}, nil
}

// Run starts the producer and ticks until ctx is done or the renderer reports ErrSurfaceClosed,
// both of which return nil. A failure of the producer, the filter, the detector or the renderer
// ends the loop with that error. On return the producer has been stopped and the channel closed.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.cfg.Producer.Start(l.cfg.Channel); err != nil {
		return errors.Wrap(err, "starting frame source")
	}
	defer func() {
		l.cfg.Producer.Stop()
		l.cfg.Channel.Close()
	}()

	producerErrs := l.cfg.Producer.Err()
	start := l.cfg.Clock.Now()
	for tick := uint64(0); ; tick++ {
		if ctx.Err() != nil {
			return nil
		}
		select {
		case err, ok := <-producerErrs:
			if ok {
				return errors.Wrap(err, "frame source failed")
			}
			producerErrs = nil
		default:
		}

		tickStart := l.cfg.Clock.Now()
		out, err := l.tick(tick, tickStart.Sub(start))
		if err != nil {
			return err
		}
		if err := l.cfg.Renderer.Draw(ctx, out); err != nil {
			if errors.Is(err, ErrSurfaceClosed) {
				l.logger.Infow("render surface closed, stopping", "ticks", tick+1)
				return nil
			}
			return errors.Wrap(err, "drawing")
		}

		work := l.cfg.Clock.Since(tickStart)
		if work > l.cfg.Pacer.Target() && l.cfg.Stats != nil {
			l.cfg.Stats.TickOverrun()
		}
		if err := l.cfg.Pacer.Wait(ctx, work); err != nil {
			return nil
		}
	}
}

// tick runs one step of the pipeline: poll programs, take at most one frame, filter and cache it
// for display, analyze it, and gather everything for the renderer.
func (l *Loop) tick(n uint64, elapsed time.Duration) (*TickOutput, error) {
	for _, p := range l.cfg.Programs {
		p.Poll()
	}

	out := &TickOutput{Tick: n, Elapsed: elapsed, Panels: l.panels}
	frame, ok := l.cfg.Channel.TryRecv()
	if l.cfg.Stats != nil {
		l.cfg.Stats.ChannelState(l.cfg.Channel.Len(), l.cfg.Channel.Dropped())
	}
	if ok {
		if err := l.consume(frame, out); err != nil {
			return nil, err
		}
	}
	if l.cache != nil {
		out.Texture = l.cache.Current()
	}

	out.Programs = lo.Map(l.cfg.Programs, func(p *shaders.ProgramHandle, _ int) ProgramState {
		prog, err := p.Current()
		return ProgramState{Name: p.Name(), Program: prog, Err: err, Generation: p.Generation()}
	})

	w, h := l.cfg.Renderer.Size()
	out.Uniforms = Uniforms{
		Resolution: mgl32.Vec3{float32(w), float32(h), aspect(w, h)},
		Time:       float32(elapsed.Seconds()),
		Video:      out.Texture,
	}
	return out, nil
}

func (l *Loop) consume(frame *rimage.Frame, out *TickOutput) error {
	display := frame
	if l.cfg.Filter != nil {
		filtered, err := l.cfg.Filter.Apply(frame)
		if err != nil {
			return errors.Wrapf(err, "applying %s filter", l.cfg.Filter.Name())
		}
		display = filtered
	}
	if err := display.Validate(); err != nil {
		return err
	}
	if l.cache == nil {
		l.cache = NewCachedValue(display, texture)
	} else {
		l.cache.Update(display)
	}

	var vis *rimage.Frame
	if l.cfg.Visualize {
		vis = rimage.NewFrame(frame.Width, frame.Height, frame.Format)
	}
	analysisStart := l.cfg.Clock.Now()
	components, err := l.cfg.Detector.Analyze(frame, vis)
	if err != nil {
		return errors.Wrap(err, "analyzing frame")
	}
	if l.cfg.Stats != nil {
		l.cfg.Stats.FrameAnalyzed(l.cfg.Clock.Since(analysisStart), len(components))
	}

	out.NewFrame = true
	out.Frame = display
	out.Visualization = vis
	out.Components = components
	out.Overlays = Overlays(l.cfg.OverlayPanel, components, frame.Width, frame.Height)
	return nil
}

// texture converts a validated frame for display.
func texture(f *rimage.Frame) *image.RGBA {
	img, err := rimage.ToImage(f)
	if err != nil {
		return image.NewRGBA(image.Rectangle{})
	}
	return img
}

func aspect(w, h int) float32 {
	if w == 0 {
		return 0
	}
	return float32(h) / float32(w)
}
