// Package config defines the structures that configure a pipeline run.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/augment/gostream"
	"go.viam.com/augment/logging"
	"go.viam.com/augment/render"
	"go.viam.com/augment/rimage"
	rutils "go.viam.com/augment/utils"
	"go.viam.com/augment/vision/filters"
	"go.viam.com/augment/vision/objectdetection"
)

// Config describes one run: the video to play, the programs to draw it with and how frames are
// filtered and analyzed on the way.
type Config struct {
	ConfigFilePath string `json:"-"`

	Video     VideoConfig     `json:"video"`
	Programs  []ProgramConfig `json:"programs"`
	HotReload bool            `json:"hot_reload"`
	// Debounce is the quiet period before a program reloads after its files change.
	Debounce time.Duration  `json:"debounce"`
	Filter   FilterConfig   `json:"filter"`
	Analyzer AnalyzerConfig `json:"analyzer"`
	Render   RenderConfig   `json:"render"`

	MetricsAddr string                        `json:"metrics_addr"`
	LogFile     string                        `json:"log_file"`
	LogConfig   []logging.LoggerPatternConfig `json:"log_config"`
	Debug       bool                          `json:"debug"`
}

// VideoConfig describes the video source.
type VideoConfig struct {
	Path string `json:"path"`
	// FrameDelay is the pause after each decoded frame. Zero uses the default and a negative
	// value decodes as fast as possible.
	FrameDelay    time.Duration `json:"frame_delay"`
	ChannelPolicy string        `json:"channel_policy"`
	// InputKWArgs are passed to ffmpeg as input options, for example {"hwaccel": "auto"}.
	InputKWArgs map[string]interface{} `json:"input_kw_args"`
}

// Validate ensures all parts of the config are valid.
func (vc *VideoConfig) Validate(path string) error {
	if vc.Path == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "path")
	}
	if _, err := gostream.ParseChannelPolicy(vc.ChannelPolicy); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// ProgramConfig names a vertex and fragment source pair.
type ProgramConfig struct {
	Name     string `json:"name"`
	Vertex   string `json:"vertex"`
	Fragment string `json:"fragment"`
}

// Validate ensures all parts of the config are valid.
func (pc *ProgramConfig) Validate(path string) error {
	if pc.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if pc.Vertex == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "vertex")
	}
	if pc.Fragment == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "fragment")
	}
	return nil
}

// FilterConfig selects the display filter. The attributes are interpreted by the chosen filter.
type FilterConfig struct {
	Type       string              `json:"type"`
	Attributes rutils.AttributeMap `json:"attributes"`
}

// Validate builds the filter once so that bad attributes are reported at load time.
func (fc *FilterConfig) Validate(path string) error {
	if _, err := filters.New(fc.Type, fc.Attributes); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// AnalyzerConfig configures detection.
type AnalyzerConfig struct {
	Backend          string `json:"backend"`
	BlurSize         int    `json:"blur_size"`
	Threshold        int    `json:"threshold"`
	KernelSize       int    `json:"kernel_size"`
	ErodeIterations  int    `json:"erode_iterations"`
	DilateIterations int    `json:"dilate_iterations"`
	// MinArea drops components smaller than this many pixels.
	MinArea int `json:"min_area"`
	// MaxComponents keeps only the largest components. Zero keeps all of them.
	MaxComponents int  `json:"max_components"`
	Visualize     bool `json:"visualize"`
}

// Detector returns the detection parameters.
func (ac *AnalyzerConfig) Detector() objectdetection.AnalyzerConfig {
	return objectdetection.AnalyzerConfig{
		BlurSize:         ac.BlurSize,
		Threshold:        uint8(ac.Threshold),
		KernelSize:       ac.KernelSize,
		ErodeIterations:  ac.ErodeIterations,
		DilateIterations: ac.DilateIterations,
	}
}

// Validate ensures all parts of the config are valid.
func (ac *AnalyzerConfig) Validate(path string) error {
	if ac.Threshold < 0 || ac.Threshold > 255 {
		return utils.NewConfigValidationError(path, errors.Errorf("threshold must be in [0, 255], got %d", ac.Threshold))
	}
	if ac.MinArea < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("min_area must not be negative, got %d", ac.MinArea))
	}
	if ac.MaxComponents < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("max_components must not be negative, got %d", ac.MaxComponents))
	}
	if err := ac.Detector().Validate(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	backend := ac.Backend
	if backend == "" {
		backend = objectdetection.BackendBuiltin
	}
	for _, b := range objectdetection.Backends() {
		if b == backend {
			return nil
		}
	}
	return utils.NewConfigValidationError(path, rutils.NewUnknownNameError("analyzer backend", backend, objectdetection.Backends()))
}

// RenderConfig configures the consumer loop and the headless renderer.
type RenderConfig struct {
	TargetTick  time.Duration `json:"target_tick"`
	SplitScreen *bool         `json:"split_screen"`
	// Panel names the panel detections are overlaid on.
	Panel         string `json:"panel"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	SnapshotDir   string `json:"snapshot_dir"`
	SnapshotEvery int    `json:"snapshot_every"`
	// SnapshotFormat is png, jpeg, ppm or qoi. Empty means png.
	SnapshotFormat string `json:"snapshot_format"`
	// MaxFrames stops the run after this many frames. Zero runs until interrupted.
	MaxFrames int `json:"max_frames"`
}

// IsSplitScreen reports whether the four panel layout is used. It is the default.
func (rc *RenderConfig) IsSplitScreen() bool {
	return rc.SplitScreen == nil || *rc.SplitScreen
}

// Validate ensures all parts of the config are valid.
func (rc *RenderConfig) Validate(path string) error {
	if rc.TargetTick < 0 {
		return utils.NewConfigValidationError(path, errors.New("target_tick must not be negative"))
	}
	if _, err := render.PanelNamed(rc.Panel); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if rc.Width < 0 || rc.Height < 0 {
		return utils.NewConfigValidationError(path, errors.New("width and height must not be negative"))
	}
	if rc.SnapshotEvery < 0 || rc.MaxFrames < 0 {
		return utils.NewConfigValidationError(path, errors.New("snapshot_every and max_frames must not be negative"))
	}
	if _, err := rimage.FormatExtension(rc.SnapshotFormat); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// Default returns a config holding every default value. Decoding a file on top of it keeps the
// defaults for anything the file leaves out.
func Default() *Config {
	det := objectdetection.DefaultAnalyzerConfig()
	return &Config{
		Video: VideoConfig{
			FrameDelay:    gostream.DefaultFrameDelay,
			ChannelPolicy: string(gostream.PolicyFIFO),
		},
		HotReload: true,
		Debounce:  50 * time.Millisecond,
		Filter:    FilterConfig{Type: filters.IdentityName},
		Analyzer: AnalyzerConfig{
			Backend:          objectdetection.BackendBuiltin,
			BlurSize:         det.BlurSize,
			Threshold:        int(det.Threshold),
			KernelSize:       det.KernelSize,
			ErodeIterations:  det.ErodeIterations,
			DilateIterations: det.DilateIterations,
		},
		Render: RenderConfig{
			TargetTick: render.DefaultTargetTick,
			Panel:      render.DefaultOverlayPanel,
		},
	}
}

// Ensure validates the config and resolves relative file paths against the directory of the
// config file.
func (c *Config) Ensure() error {
	if err := c.Video.Validate("video"); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Programs))
	for idx := range c.Programs {
		path := fmt.Sprintf("%s.%d", "programs", idx)
		if err := c.Programs[idx].Validate(path); err != nil {
			return err
		}
		if _, ok := seen[c.Programs[idx].Name]; ok {
			return utils.NewConfigValidationError(path, errors.Errorf("duplicate program name %q", c.Programs[idx].Name))
		}
		seen[c.Programs[idx].Name] = struct{}{}
	}

	if c.Debounce < 0 {
		return utils.NewConfigValidationError("debounce", errors.New("must not be negative"))
	}
	if err := c.Filter.Validate("filter"); err != nil {
		return err
	}
	if err := c.Analyzer.Validate("analyzer"); err != nil {
		return err
	}
	if err := c.Render.Validate("render"); err != nil {
		return err
	}

	for idx, lc := range c.LogConfig {
		path := fmt.Sprintf("%s.%d", "log_config", idx)
		if !logging.ValidatePattern(lc.Pattern) {
			return utils.NewConfigValidationError(path, errors.Errorf("invalid logger pattern %q", lc.Pattern))
		}
		if _, err := logging.LevelFromString(lc.Level); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}

	c.resolvePaths()
	return nil
}

func (c *Config) resolvePaths() {
	if c.ConfigFilePath == "" {
		return
	}
	dir := filepath.Dir(c.ConfigFilePath)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Video.Path = resolve(c.Video.Path)
	for idx := range c.Programs {
		c.Programs[idx].Vertex = resolve(c.Programs[idx].Vertex)
		c.Programs[idx].Fragment = resolve(c.Programs[idx].Fragment)
	}
	c.Render.SnapshotDir = resolve(c.Render.SnapshotDir)
	c.LogFile = resolve(c.LogFile)
}
