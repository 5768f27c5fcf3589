package gostream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/augment/logging"
	"go.viam.com/augment/rimage"
	"go.viam.com/augment/utils"
)

// FFmpegDecoder decodes video files by running ffmpeg as a subprocess and reading raw RGB24
// frames from its stdout. ffprobe is used to discover the stream dimensions.
type FFmpegDecoder struct {
	// InputKWArgs are passed to ffmpeg ahead of the input, e.g. {"hwaccel": "auto"}.
	InputKWArgs ffmpeg.KwArgs
	Logger      logging.Logger
}

// NewFFmpegDecoder checks that ffmpeg and ffprobe are on the path and returns a decoder.
func NewFFmpegDecoder(inputKWArgs map[string]interface{}, logger logging.Logger) (*FFmpegDecoder, error) {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			return nil, errors.Wrapf(err, "%s is required to decode video", bin)
		}
	}
	return &FFmpegDecoder{InputKWArgs: inputKWArgs, Logger: logger}, nil
}

// ffprobeOutput holds the parts of `ffprobe -show_streams -show_format` output we use.
type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
		Tags         struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []struct {
			Rotation float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// checkReadable maps filesystem failures onto the stream errors.
func checkReadable(path string) error {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrNotFound, "%q", path)
		}
		return errors.Wrapf(ErrIO, "%q: %v", path, err)
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	info, err := f.Stat()
	if err != nil {
		return errors.Wrapf(ErrIO, "%q: %v", path, err)
	}
	if info.IsDir() {
		return errors.Wrapf(ErrIO, "%q is a directory", path)
	}
	return nil
}

// parseProbe picks the first video stream out of ffprobe's JSON output.
func parseProbe(path, raw string) (StreamInfo, error) {
	var out ffprobeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return StreamInfo{}, errors.Wrapf(ErrIO, "parsing ffprobe output for %q: %v", path, err)
	}
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.CodecName == "" || s.CodecName == "none" || s.Width <= 0 || s.Height <= 0 {
			return StreamInfo{}, errors.Wrapf(ErrUnsupportedCodec, "%q has a video stream ffmpeg cannot decode", path)
		}
		rotation := 0
		if rotate, err := strconv.ParseFloat(s.Tags.Rotate, 64); err == nil {
			rotation = normalizeRotation(rotate)
		}
		for _, sd := range s.SideDataList {
			if sd.Rotation != 0 {
				rotation = normalizeRotation(sd.Rotation)
			}
		}
		info := StreamInfo{
			Codec:     s.CodecName,
			Width:     s.Width,
			Height:    s.Height,
			FrameRate: parseRate(s.AvgFrameRate),
			Rotation:  rotation,
		}
		if rotation == 90 || rotation == 270 {
			info.Width, info.Height = s.Height, s.Width
		}
		if info.FrameRate == 0 {
			info.FrameRate = parseRate(s.RFrameRate)
		}
		info.FrameCount, _ = strconv.Atoi(s.NbFrames)
		dur := s.Duration
		if dur == "" {
			dur = out.Format.Duration
		}
		if secs, err := strconv.ParseFloat(dur, 64); err == nil {
			info.Duration = time.Duration(secs * float64(time.Second))
		}
		return info, nil
	}
	return StreamInfo{}, errors.Wrapf(ErrUnsupportedCodec, "%q has no video stream", path)
}

// normalizeRotation maps a rotation in degrees, possibly negative, onto 0, 90, 180 or 270.
func normalizeRotation(deg float64) int {
	r := int(math.Round(deg/90)) * 90 % 360
	if r < 0 {
		r += 360
	}
	return r
}

// parseRate parses ffprobe rationals such as "30000/1001". Invalid or zero denominators give 0.
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// Probe returns the description of the video stream at path.
func (d *FFmpegDecoder) Probe(ctx context.Context, path string) (StreamInfo, error) {
	if err := checkReadable(path); err != nil {
		return StreamInfo{}, err
	}
	if d.Logger != nil {
		stopSlowLogger := utils.SlowLogger(ctx, "waiting for ffprobe", "path", path, d.Logger)
		defer stopSlowLogger()
	}
	raw, err := ffmpeg.Probe(path)
	if err != nil {
		// ffprobe exits non-zero on files it cannot parse as media.
		return StreamInfo{}, errors.Wrapf(ErrUnsupportedCodec, "probing %q: %v", path, err)
	}
	return parseProbe(path, raw)
}

// frameInfo returns the stream info describing the frames ffmpeg will write. ffmpeg rotates to
// the display orientation unless noautorotate is passed.
func (d *FFmpegDecoder) frameInfo(info StreamInfo) StreamInfo {
	if _, ok := d.InputKWArgs["noautorotate"]; ok && (info.Rotation == 90 || info.Rotation == 270) {
		info.Width, info.Height = info.Height, info.Width
		info.Rotation = 0
	}
	return info
}

// Open implements Decoder.
func (d *FFmpegDecoder) Open(ctx context.Context, path string) (VideoStream, error) {
	info, err := d.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	info = d.frameInfo(info)

	cancelCtx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	s := &ffmpegStream{
		id:     uuid.New(),
		path:   path,
		info:   info,
		cancel: cancel,
		reader: pr,
		buf:    make([]byte, info.Width*info.Height*3),
		done:   make(chan struct{}),
	}

	stream := ffmpeg.Input(path, d.InputKWArgs).
		Output("pipe:", ffmpeg.KwArgs{"format": "rawvideo", "pix_fmt": "rgb24", "loglevel": "error"})
	stream.Context = cancelCtx
	goutils.PanicCapturingGo(func() {
		defer close(s.done)
		runErr := stream.WithOutput(pw).WithErrorOutput(&s.stderr).Run()
		// A nil error closes the pipe with io.EOF.
		goutils.UncheckedError(pw.CloseWithError(runErr))
	})
	if d.Logger != nil {
		d.Logger.Debugw("opened video", "path", path, "stream_id", s.id.String(),
			"codec", info.Codec, "width", info.Width, "height", info.Height, "fps", info.FrameRate)
	}
	return s, nil
}

// ffmpegStream reads fixed-size RGB24 frames from a running ffmpeg process.
type ffmpegStream struct {
	id     uuid.UUID
	path   string
	info   StreamInfo
	cancel func()
	reader *io.PipeReader
	buf    []byte
	stderr lockedBuffer
	frames int
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func (s *ffmpegStream) Info() StreamInfo {
	return s.info
}

func (s *ffmpegStream) ReadFrame(ctx context.Context) (*rimage.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := io.ReadFull(s.reader, s.buf)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		// ffmpeg only emits whole frames; a short tail means it stopped mid-frame.
		return nil, &DecodeError{
			Path: s.path, Frame: s.frames, Err: err,
			Detail: strings.TrimSpace(fmt.Sprintf("got %d of %d bytes %s", n, len(s.buf), s.stderr.String())),
		}
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &DecodeError{Path: s.path, Frame: s.frames, Err: err, Detail: strings.TrimSpace(s.stderr.String())}
	}
	s.frames++
	data := make([]byte, len(s.buf))
	copy(data, s.buf)
	return rimage.FrameFromBytes(s.info.Width, s.info.Height, rimage.RGB24, data)
}

// Close stops ffmpeg and waits for it to exit.
func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = multierr.Combine(s.closeErr, s.reader.Close())
		<-s.done
	})
	return s.closeErr
}

// lockedBuffer collects ffmpeg's stderr, which is written from the process goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Probe describes the video stream at path using ffprobe.
func Probe(ctx context.Context, path string, logger logging.Logger) (StreamInfo, error) {
	d, err := NewFFmpegDecoder(nil, logger)
	if err != nil {
		return StreamInfo{}, err
	}
	return d.Probe(ctx, path)
}
