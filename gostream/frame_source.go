package gostream

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/augment/logging"
	"go.viam.com/augment/rimage"
	"go.viam.com/augment/utils"
)

// DefaultFrameDelay is the pause after each decoded frame, roughly 60 frames per second. It is
// a fixed cadence; container timestamps are not consulted.
const DefaultFrameDelay = 16 * time.Millisecond

// FrameSink receives decoded frames. Send must not block.
type FrameSink interface {
	Send(frame *rimage.Frame) error
}

// SourceStats receives counts from a running FrameSource.
type SourceStats interface {
	FrameDecoded()
	SourceLooped()
}

// FrameSourceOptions configure a FrameSource. The zero value uses DefaultFrameDelay and the
// wall clock.
type FrameSourceOptions struct {
	// FrameDelay is the pause after each frame. A negative value disables pacing.
	FrameDelay time.Duration
	Clock      clock.Clock
	Stats      SourceStats
}

// FrameSource decodes a video file in an endless loop and pushes every frame to a sink.
type FrameSource struct {
	path       string
	decoder    Decoder
	frameDelay time.Duration
	clock      clock.Clock
	stats      SourceStats
	logger     logging.Logger

	frames atomic.Uint64
	loops  atomic.Uint64

	mu      sync.Mutex
	workers utils.StoppableWorkers
	errCh   chan error
}

// NewFrameSource returns a source for the video at path. Nothing is opened until Run or Start.
func NewFrameSource(path string, decoder Decoder, opts FrameSourceOptions, logger logging.Logger) *FrameSource {
	delay := opts.FrameDelay
	switch {
	case delay == 0:
		delay = DefaultFrameDelay
	case delay < 0:
		delay = 0
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &FrameSource{
		path:       path,
		decoder:    decoder,
		frameDelay: delay,
		clock:      clk,
		stats:      opts.Stats,
		logger:     logger,
	}
}

// Path returns the video path.
func (fs *FrameSource) Path() string {
	return fs.path
}

// FramesDecoded returns the number of frames pushed to the sink so far.
func (fs *FrameSource) FramesDecoded() uint64 {
	return fs.frames.Load()
}

// Loops returns how many times the video has been restarted after reaching its end.
func (fs *FrameSource) Loops() uint64 {
	return fs.loops.Load()
}

// Run decodes the video into sink until ctx is done, the sink is closed, or a hard error occurs.
// Reaching the end of the video reopens it from the start. Run returns nil when the sink was
// closed, ctx.Err() on cancellation, and the first open or decode error otherwise.
func (fs *FrameSource) Run(ctx context.Context, sink FrameSink) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		stream, err := fs.decoder.Open(ctx, fs.path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		pushed, err := fs.drain(ctx, stream, sink)
		if closeErr := stream.Close(); closeErr != nil {
			fs.logger.CDebugw(ctx, "error closing video stream", "path", fs.path, "error", closeErr)
		}
		switch {
		case errors.Is(err, ErrChannelClosed):
			fs.logger.CDebugw(ctx, "frame sink closed, stopping source", "path", fs.path)
			return nil
		case err != nil:
			return err
		case pushed == 0:
			// Without this a video with no frames would reopen in a tight loop.
			return &DecodeError{Path: fs.path, Err: errors.New("video ended before its first frame")}
		}
		fs.loops.Add(1)
		if fs.stats != nil {
			fs.stats.SourceLooped()
		}
		fs.logger.CDebugw(ctx, "video ended, looping", "path", fs.path, "loops", fs.loops.Load())
	}
}

// drain pushes every frame of one pass over the video. It returns nil at the end of the stream.
func (fs *FrameSource) drain(ctx context.Context, stream VideoStream, sink FrameSink) (int, error) {
	pushed := 0
	for {
		frame, err := stream.ReadFrame(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return pushed, ctxErr
			}
			if errors.Is(err, io.EOF) {
				return pushed, nil
			}
			return pushed, err
		}
		if err := sink.Send(frame); err != nil {
			return pushed, err
		}
		pushed++
		fs.frames.Add(1)
		if fs.stats != nil {
			fs.stats.FrameDecoded()
		}
		if err := fs.wait(ctx); err != nil {
			return pushed, err
		}
	}
}

// wait sleeps for the frame delay on the source's clock, returning early on cancellation.
func (fs *FrameSource) wait(ctx context.Context) error {
	if fs.frameDelay <= 0 {
		return ctx.Err()
	}
	timer := fs.clock.Timer(fs.frameDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start runs the source on its own goroutine. A terminal error other than cancellation is sent
// once on Err; the channel is closed when the goroutine exits.
func (fs *FrameSource) Start(sink FrameSink) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.workers != nil {
		return errors.New("frame source already started")
	}
	errCh := make(chan error, 1)
	fs.errCh = errCh
	fs.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		defer close(errCh)
		err := fs.Run(ctx, sink)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		fs.logger.Errorw("frame source stopped", "path", fs.path, "error", err)
		errCh <- err
	})
	return nil
}

// Err returns the channel on which the terminal error of a started source is delivered. It is
// nil before Start.
func (fs *FrameSource) Err() <-chan error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.errCh
}

// Stop cancels a started source and waits for its goroutine to exit. It is a no-op if the source
// was never started.
func (fs *FrameSource) Stop() {
	fs.mu.Lock()
	workers := fs.workers
	fs.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}
}
