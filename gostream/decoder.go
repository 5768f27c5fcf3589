// Package gostream produces raw video frames from files and hands them to consumers.
package gostream

import (
	"context"
	"time"

	"go.viam.com/augment/rimage"
)

// StreamInfo describes the video stream of an opened file.
type StreamInfo struct {
	Codec string
	// Width and Height are the display size, after any rotation the container asks for.
	Width     int
	Height    int
	FrameRate float64
	// Rotation is the display rotation in degrees, one of 0, 90, 180 or 270.
	Rotation int
	// Duration and FrameCount are zero when the container does not declare them.
	Duration   time.Duration
	FrameCount int
}

// VideoStream is one pass over a video file.
type VideoStream interface {
	Info() StreamInfo
	// ReadFrame returns the next frame as packed RGB24 at the stream's resolution. It returns
	// io.EOF after the last frame and a *DecodeError on any other failure.
	ReadFrame(ctx context.Context) (*rimage.Frame, error)
	Close() error
}

// Decoder opens video files. Open fails with ErrNotFound, ErrUnsupportedCodec or ErrIO (possibly
// wrapped).
type Decoder interface {
	Open(ctx context.Context, path string) (VideoStream, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, path string) (VideoStream, error)

// Open calls f.
func (f DecoderFunc) Open(ctx context.Context, path string) (VideoStream, error) {
	return f(ctx, path)
}
