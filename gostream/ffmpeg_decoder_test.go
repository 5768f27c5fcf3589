package gostream

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.viam.com/test"

	"go.viam.com/augment/logging"
)

const sampleProbe = `{
  "streams": [
    {"index": 0, "codec_type": "audio", "codec_name": "aac"},
    {"index": 1, "codec_type": "video", "codec_name": "h264", "width": 640, "height": 360,
     "r_frame_rate": "30/1", "avg_frame_rate": "30000/1001", "nb_frames": "300", "duration": "10.010000"}
  ],
  "format": {"duration": "10.020000"}
}`

func TestParseProbe(t *testing.T) {
	info, err := parseProbe("clip.mp4", sampleProbe)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Codec, test.ShouldEqual, "h264")
	test.That(t, info.Width, test.ShouldEqual, 640)
	test.That(t, info.Height, test.ShouldEqual, 360)
	test.That(t, info.FrameRate, test.ShouldAlmostEqual, 29.97, 0.01)
	test.That(t, info.FrameCount, test.ShouldEqual, 300)
	test.That(t, info.Duration, test.ShouldEqual, 10010*time.Millisecond)

	_, err = parseProbe("song.mp3", `{"streams": [{"codec_type": "audio", "codec_name": "mp3"}]}`)
	test.That(t, errors.Is(err, ErrUnsupportedCodec), test.ShouldBeTrue)

	_, err = parseProbe("odd.mkv", `{"streams": [{"codec_type": "video", "codec_name": "none"}]}`)
	test.That(t, errors.Is(err, ErrUnsupportedCodec), test.ShouldBeTrue)

	_, err = parseProbe("garbage", `not json`)
	test.That(t, errors.Is(err, ErrIO), test.ShouldBeTrue)
}

func TestParseProbeRotation(t *testing.T) {
	const rotated = `{
  "streams": [
    {"codec_type": "video", "codec_name": "hevc", "width": 1920, "height": 1080,
     "avg_frame_rate": "30/1",
     "side_data_list": [{"side_data_type": "Display Matrix", "rotation": -90}]}
  ]
}`
	info, err := parseProbe("phone.mov", rotated)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Rotation, test.ShouldEqual, 270)
	test.That(t, info.Width, test.ShouldEqual, 1080)
	test.That(t, info.Height, test.ShouldEqual, 1920)

	// The frames match the probed size unless autorotation is turned off.
	d := &FFmpegDecoder{}
	test.That(t, d.frameInfo(info), test.ShouldResemble, info)
	d = &FFmpegDecoder{InputKWArgs: ffmpeg.KwArgs{"noautorotate": ""}}
	coded := d.frameInfo(info)
	test.That(t, coded.Width, test.ShouldEqual, 1920)
	test.That(t, coded.Height, test.ShouldEqual, 1080)

	const tagged = `{"streams": [{"codec_type": "video", "codec_name": "h264", "width": 640, "height": 480,
  "tags": {"rotate": "180"}}]}`
	info, err = parseProbe("old.mp4", tagged)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Rotation, test.ShouldEqual, 180)
	test.That(t, info.Width, test.ShouldEqual, 640)
	test.That(t, info.Height, test.ShouldEqual, 480)

	test.That(t, normalizeRotation(90), test.ShouldEqual, 90)
	test.That(t, normalizeRotation(-180), test.ShouldEqual, 180)
	test.That(t, normalizeRotation(450), test.ShouldEqual, 90)
	test.That(t, normalizeRotation(0), test.ShouldEqual, 0)
}

func TestParseRate(t *testing.T) {
	test.That(t, parseRate("30/1"), test.ShouldEqual, 30.0)
	test.That(t, parseRate("25"), test.ShouldEqual, 25.0)
	test.That(t, parseRate("0/0"), test.ShouldEqual, 0.0)
	test.That(t, parseRate(""), test.ShouldEqual, 0.0)
}

func TestCheckReadable(t *testing.T) {
	dir := t.TempDir()
	err := checkReadable(filepath.Join(dir, "nope.mp4"))
	test.That(t, errors.Is(err, ErrNotFound), test.ShouldBeTrue)

	err = checkReadable(dir)
	test.That(t, errors.Is(err, ErrIO), test.ShouldBeTrue)
}

func TestDecodeErrorUnwraps(t *testing.T) {
	err := &DecodeError{Path: "clip.mp4", Frame: 7, Err: io.ErrUnexpectedEOF, Detail: "truncated"}
	test.That(t, errors.Is(err, io.ErrUnexpectedEOF), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldEqual, `decoding "clip.mp4" at frame 7: unexpected EOF: truncated`)
}

// TestFFmpegDecoderRoundTrip encodes a short synthetic clip and decodes it again. It needs the
// ffmpeg binaries.
func TestFFmpegDecoderRoundTrip(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
	logger := logging.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "testsrc.mp4")
	err := ffmpeg.Input("testsrc=size=64x48:rate=10", ffmpeg.KwArgs{"f": "lavfi"}).
		Output(path, ffmpeg.KwArgs{"frames:v": 5, "pix_fmt": "yuv420p"}).
		OverWriteOutput().Run()
	test.That(t, err, test.ShouldBeNil)

	dec, err := NewFFmpegDecoder(nil, logger)
	test.That(t, err, test.ShouldBeNil)

	stream, err := dec.Open(context.Background(), path)
	test.That(t, err, test.ShouldBeNil)
	defer func() { test.That(t, stream.Close(), test.ShouldBeNil) }()
	test.That(t, stream.Info().Width, test.ShouldEqual, 64)
	test.That(t, stream.Info().Height, test.ShouldEqual, 48)

	frames := 0
	for {
		f, err := stream.ReadFrame(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		test.That(t, err, test.ShouldBeNil)
		test.That(t, f.Validate(), test.ShouldBeNil)
		test.That(t, f.Width, test.ShouldEqual, 64)
		frames++
	}
	test.That(t, frames, test.ShouldEqual, 5)

	_, err = dec.Open(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	test.That(t, errors.Is(err, ErrNotFound), test.ShouldBeTrue)
}
