package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.viam.com/test"

	"go.viam.com/augment/gostream"
	"go.viam.com/augment/logging"
	"go.viam.com/augment/rimage"
	"go.viam.com/augment/shaders"
	"go.viam.com/augment/vision/filters"
	"go.viam.com/augment/vision/objectdetection"
)

// fakeProducer pushes its frames synchronously on Start and then reports err, if any.
type fakeProducer struct {
	frames  []*rimage.Frame
	err     error
	errCh   chan error
	stopped atomic.Bool
}

func (p *fakeProducer) Start(sink gostream.FrameSink) error {
	p.errCh = make(chan error, 1)
	for _, f := range p.frames {
		if err := sink.Send(f); err != nil {
			return err
		}
	}
	if p.err != nil {
		p.errCh <- p.err
		close(p.errCh)
	}
	return nil
}

func (p *fakeProducer) Err() <-chan error { return p.errCh }

func (p *fakeProducer) Stop() { p.stopped.Store(true) }

type recordingRenderer struct {
	closeAfter int
	onDraw     func(n int)
	outs       []*TickOutput
}

func (r *recordingRenderer) Size() (int, int) { return 640, 480 }

func (r *recordingRenderer) Draw(ctx context.Context, out *TickOutput) error {
	r.outs = append(r.outs, out)
	if r.onDraw != nil {
		r.onDraw(len(r.outs))
	}
	if r.closeAfter > 0 && len(r.outs) >= r.closeAfter {
		return ErrSurfaceClosed
	}
	return nil
}

type loopStats struct {
	mu         sync.Mutex
	analyzed   int
	components int
	backlogs   []int
}

func (s *loopStats) FrameAnalyzed(elapsed time.Duration, components int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyzed++
	s.components += components
}

func (s *loopStats) ChannelState(backlog int, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlogs = append(s.backlogs, backlog)
}

func (s *loopStats) TickOverrun() {}

// squareFrame returns a black 200x200 frame with a white square of the given side whose upper left
// corner is at (80, 80).
func squareFrame(side int) *rimage.Frame {
	f := rimage.NewFrame(200, 200, rimage.RGB24)
	for y := 80; y < 80+side; y++ {
		row := f.Row(y)
		for x := 80; x < 80+side; x++ {
			row[x*3], row[x*3+1], row[x*3+2] = 255, 255, 255
		}
	}
	return f
}

func newTestLoop(t *testing.T, cfg LoopConfig) *Loop {
	t.Helper()
	if cfg.Detector == nil {
		a, err := objectdetection.NewAnalyzer(objectdetection.DefaultAnalyzerConfig())
		test.That(t, err, test.ShouldBeNil)
		cfg.Detector = a
	}
	if cfg.Channel == nil {
		cfg.Channel = gostream.NewFrameChannel(gostream.PolicyFIFO)
	}
	if cfg.Pacer == nil {
		cfg.Pacer = NewPacer(time.Millisecond, nil)
	}
	l, err := NewLoop(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return l
}

func TestLoopConsumesOneFramePerTick(t *testing.T) {
	producer := &fakeProducer{frames: []*rimage.Frame{squareFrame(40), squareFrame(0)}}
	renderer := &recordingRenderer{closeAfter: 4}
	channel := gostream.NewFrameChannel(gostream.PolicyFIFO)
	stats := &loopStats{}
	l := newTestLoop(t, LoopConfig{
		Producer:    producer,
		Channel:     channel,
		Renderer:    renderer,
		Visualize:   true,
		SplitScreen: true,
		Stats:       stats,
	})

	test.That(t, l.Run(context.Background()), test.ShouldBeNil)
	test.That(t, renderer.outs, test.ShouldHaveLength, 4)

	first := renderer.outs[0]
	test.That(t, first.Tick, test.ShouldEqual, uint64(0))
	test.That(t, first.NewFrame, test.ShouldBeTrue)
	test.That(t, first.Components, test.ShouldHaveLength, 1)
	test.That(t, first.Overlays, test.ShouldHaveLength, 1)
	test.That(t, first.Panels, test.ShouldHaveLength, 4)
	test.That(t, first.Texture, test.ShouldNotBeNil)
	test.That(t, first.Texture.Bounds().Dx(), test.ShouldEqual, 200)
	test.That(t, first.Uniforms.Resolution, test.ShouldResemble, mgl32.Vec3{640, 480, 0.75})
	test.That(t, first.Uniforms.Video, test.ShouldEqual, first.Texture)
	test.That(t, first.Visualization, test.ShouldNotBeNil)
	test.That(t, first.Visualization.Pixel(100, 100), test.ShouldResemble, []byte{255, 255, 255})
	test.That(t, first.Visualization.Pixel(10, 10), test.ShouldResemble, []byte{0, 0, 0})

	box := first.Components[0].Bounds()
	test.That(t, box.Min.X, test.ShouldBeBetweenOrEqual, 76, 84)
	test.That(t, box.Max.X, test.ShouldBeBetweenOrEqual, 116, 124)

	second := renderer.outs[1]
	test.That(t, second.NewFrame, test.ShouldBeTrue)
	test.That(t, second.Components, test.ShouldBeEmpty)
	test.That(t, second.Texture, test.ShouldNotEqual, first.Texture)

	// Without a new frame the last texture is still offered for drawing.
	third := renderer.outs[2]
	test.That(t, third.NewFrame, test.ShouldBeFalse)
	test.That(t, third.Components, test.ShouldBeNil)
	test.That(t, third.Texture, test.ShouldEqual, second.Texture)

	test.That(t, stats.analyzed, test.ShouldEqual, 2)
	test.That(t, stats.components, test.ShouldEqual, 1)
	test.That(t, stats.backlogs[:3], test.ShouldResemble, []int{1, 0, 0})

	test.That(t, producer.stopped.Load(), test.ShouldBeTrue)
	test.That(t, channel.Closed(), test.ShouldBeTrue)
	test.That(t, errors.Is(channel.Send(squareFrame(0)), gostream.ErrChannelClosed), test.ShouldBeTrue)
}

func TestLoopAppliesFilterForDisplayOnly(t *testing.T) {
	bgr, err := rimage.SwapRedBlue(squareFrame(40))
	test.That(t, err, test.ShouldBeNil)
	bgr.Pixel(0, 0)[0] = 200

	blur, err := filters.New(filters.BlurName, nil)
	test.That(t, err, test.ShouldBeNil)
	renderer := &recordingRenderer{closeAfter: 1}
	l := newTestLoop(t, LoopConfig{
		Producer: &fakeProducer{frames: []*rimage.Frame{bgr}},
		Renderer: renderer,
		Filter:   blur,
	})
	test.That(t, l.Run(context.Background()), test.ShouldBeNil)

	out := renderer.outs[0]
	test.That(t, out.Components, test.ShouldHaveLength, 1)
	test.That(t, out.Frame, test.ShouldNotEqual, bgr)
	test.That(t, out.Frame.Format, test.ShouldEqual, rimage.BGR24)
	// The isolated corner pixel is spread out by the blur but the analyzed input is untouched.
	test.That(t, out.Frame.Pixel(0, 0)[0], test.ShouldBeLessThan, byte(200))
	test.That(t, bgr.Pixel(0, 0)[0], test.ShouldEqual, byte(200))
	test.That(t, out.Visualization, test.ShouldBeNil)
}

func TestLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	renderer := &recordingRenderer{onDraw: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	producer := &fakeProducer{}
	l := newTestLoop(t, LoopConfig{Producer: producer, Renderer: renderer})
	test.That(t, l.Run(ctx), test.ShouldBeNil)
	test.That(t, renderer.outs, test.ShouldHaveLength, 3)
	test.That(t, producer.stopped.Load(), test.ShouldBeTrue)
}

func TestLoopReportsProducerError(t *testing.T) {
	renderer := &recordingRenderer{}
	l := newTestLoop(t, LoopConfig{
		Producer: &fakeProducer{err: gostream.ErrNotFound},
		Renderer: renderer,
	})
	err := l.Run(context.Background())
	test.That(t, errors.Is(err, gostream.ErrNotFound), test.ShouldBeTrue)
	test.That(t, renderer.outs, test.ShouldBeEmpty)
}

func TestLoopRejectsBadFrames(t *testing.T) {
	l := newTestLoop(t, LoopConfig{
		Producer: &fakeProducer{frames: []*rimage.Frame{rimage.NewFrame(4, 4, rimage.Gray8)}},
		Renderer: &recordingRenderer{},
	})
	err := l.Run(context.Background())
	test.That(t, errors.Is(err, rimage.ErrFormatMismatch), test.ShouldBeTrue)
}

func TestLoopProgramStates(t *testing.T) {
	dir := t.TempDir()
	vert := filepath.Join(dir, "obj.vert")
	frag := filepath.Join(dir, "obj.frag")
	test.That(t, os.WriteFile(vert, []byte("out vec2 uv;\nvoid main() {}\n"), 0o600), test.ShouldBeNil)
	test.That(t, os.WriteFile(frag, []byte("in vec2 uv;\nuniform float iTime;\nvoid main() {}\n"), 0o600), test.ShouldBeNil)
	good, err := shaders.NewProgramHandle("obj", vert, frag, shaders.GLSLCompiler{}, shaders.HandleOptions{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer good.Close()
	bad, err := shaders.NewProgramHandle("video", vert, filepath.Join(dir, "missing.frag"),
		shaders.GLSLCompiler{}, shaders.HandleOptions{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer bad.Close()

	renderer := &recordingRenderer{closeAfter: 1}
	l := newTestLoop(t, LoopConfig{
		Producer: &fakeProducer{},
		Renderer: renderer,
		Programs: []*shaders.ProgramHandle{good, bad},
	})
	test.That(t, l.Run(context.Background()), test.ShouldBeNil)

	states := renderer.outs[0].Programs
	test.That(t, states, test.ShouldHaveLength, 2)
	test.That(t, states[0].Name, test.ShouldEqual, "obj")
	test.That(t, states[0].Err, test.ShouldBeNil)
	test.That(t, states[0].Program.HasUniform("iTime"), test.ShouldBeTrue)
	test.That(t, states[0].Generation, test.ShouldEqual, uint64(1))
	test.That(t, states[1].Program, test.ShouldBeNil)
	var ce *shaders.CompileError
	test.That(t, errors.As(states[1].Err, &ce), test.ShouldBeTrue)
	test.That(t, renderer.outs[0].Texture, test.ShouldBeNil)
}

func TestNewLoopValidates(t *testing.T) {
	_, err := NewLoop(LoopConfig{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
