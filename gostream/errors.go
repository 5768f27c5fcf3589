package gostream

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when the video path does not exist.
	ErrNotFound = errors.New("video not found")
	// ErrUnsupportedCodec is returned when the file holds no decodable video stream.
	ErrUnsupportedCodec = errors.New("unsupported or missing video codec")
	// ErrIO is returned when the video exists but cannot be read.
	ErrIO = errors.New("video i/o error")
	// ErrChannelClosed is returned by FrameChannel.Send once the consumer has closed the channel.
	ErrChannelClosed = errors.New("frame channel closed")
)

// DecodeError is a hard failure while reading frames from an open stream. The stream is not
// usable afterwards.
type DecodeError struct {
	Path   string
	Frame  int
	Err    error
	Detail string
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decoding %q at frame %d: %v", e.Path, e.Frame, e.Err)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
