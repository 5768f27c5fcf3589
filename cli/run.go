package cli

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/augment/config"
	"go.viam.com/augment/gostream"
	"go.viam.com/augment/logging"
	"go.viam.com/augment/metrics"
	"go.viam.com/augment/render"
	"go.viam.com/augment/shaders"
	"go.viam.com/augment/vision/filters"
	"go.viam.com/augment/vision/objectdetection"
)

const metricsShutdownTimeout = 5 * time.Second

// newLogger returns the root logger of a command. Subloggers inherit its appenders, so any file
// appender must be added before they are created.
func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewLogger("augment")
	config.InitLoggingSettings(logger, c.Bool(debugFlag))
	return logger
}

// loadConfig reads the file named by --config, or starts from the defaults when there is none.
// The video argument, when given, replaces the configured video.
func loadConfig(c *cli.Context, video string, logger logging.Logger) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String(configFlag); path != "" {
		var err error
		if cfg, err = config.Read(path, logger); err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}
	if video != "" {
		abs, err := filepath.Abs(video)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving %q", video)
		}
		cfg.Video.Path = abs
	}
	if err := cfg.Ensure(); err != nil {
		return nil, err
	}
	config.UpdateFileConfigDebug(cfg.Debug)
	return cfg, nil
}

// attachLogFile adds a rotating file appender when either the flag or the config names a file.
// The flag wins.
func attachLogFile(logger logging.Logger, path string) io.Closer {
	if path == "" {
		return nil
	}
	appender, closer := logging.NewFileAppender(logging.FileAppenderConfig{Path: path})
	logger.AddAppender(appender)
	return closer
}

// RunAction builds the pipeline described by the config and runs it until the context is
// cancelled, the renderer closes, or a stage fails.
func RunAction(c *cli.Context) (err error) {
	logger := newLogger(c)

	video := c.String(runFlagVideo)
	if video == "" {
		video = c.Args().First()
	}
	cfg, err := loadConfig(c, video, logger)
	if err != nil {
		return err
	}
	if n := c.Int(runFlagMaxFrames); n > 0 {
		cfg.Render.MaxFrames = n
	}
	if dir := c.String(runFlagSnapshotDir); dir != "" {
		cfg.Render.SnapshotDir = dir
	}
	if name := c.String(runFlagFilter); name != "" {
		cfg.Filter = config.FilterConfig{Type: name}
	}

	logFile := c.String(logFileFlag)
	if logFile == "" {
		logFile = cfg.LogFile
	}
	if closer := attachLogFile(logger, logFile); closer != nil {
		defer func() {
			err = multierr.Combine(err, closer.Close())
		}()
	}
	if err := logging.UpdateLoggerConfig(cfg.LogConfig, logger); err != nil {
		return errors.Wrap(err, "applying log_config")
	}

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		server, err := m.Serve(cfg.MetricsAddr, logger.Sublogger("metrics"))
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			err = multierr.Combine(err, server.Close(ctx))
		}()
	}

	loop, programs, err := newPipeline(cfg, m, logger)
	defer func() {
		for _, p := range programs {
			err = multierr.Combine(err, p.Close())
		}
	}()
	if err != nil {
		return err
	}

	logger.Infow("starting",
		"video", cfg.Video.Path,
		"programs", len(programs),
		"filter", cfg.Filter.Type,
		"policy", cfg.Video.ChannelPolicy,
	)
	if err := loop.Run(c.Context); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

// newPipeline wires a loop from cfg. The returned program handles must be closed by the caller
// even when an error is returned.
func newPipeline(cfg *config.Config, m *metrics.Metrics, logger logging.Logger) (*render.Loop, []*shaders.ProgramHandle, error) {
	policy, err := gostream.ParseChannelPolicy(cfg.Video.ChannelPolicy)
	if err != nil {
		return nil, nil, err
	}

	filter, err := filters.New(cfg.Filter.Type, cfg.Filter.Attributes)
	if err != nil {
		return nil, nil, err
	}

	detector, err := newDetector(cfg.Analyzer)
	if err != nil {
		return nil, nil, err
	}

	decoder, err := gostream.NewFFmpegDecoder(cfg.Video.InputKWArgs, logger.Sublogger("decoder"))
	if err != nil {
		return nil, nil, err
	}
	source := gostream.NewFrameSource(cfg.Video.Path, decoder, gostream.FrameSourceOptions{
		FrameDelay: cfg.Video.FrameDelay,
		Stats:      m,
	}, logger.Sublogger("source"))

	shaderLogger := logger.Sublogger("shaders")
	programs := make([]*shaders.ProgramHandle, 0, len(cfg.Programs))
	for _, pc := range cfg.Programs {
		handle, err := shaders.NewProgramHandle(pc.Name, pc.Vertex, pc.Fragment, shaders.GLSLCompiler{}, shaders.HandleOptions{
			HotReload: cfg.HotReload,
			Debounce:  cfg.Debounce,
			Stats:     m,
		}, shaderLogger)
		if err != nil {
			return nil, programs, err
		}
		programs = append(programs, handle)
	}

	panel, err := render.PanelNamed(cfg.Render.Panel)
	if err != nil {
		return nil, programs, err
	}
	renderer, err := render.NewHeadlessRenderer(render.HeadlessOptions{
		Width:          cfg.Render.Width,
		Height:         cfg.Render.Height,
		SnapshotDir:    cfg.Render.SnapshotDir,
		SnapshotEvery:  cfg.Render.SnapshotEvery,
		SnapshotFormat: cfg.Render.SnapshotFormat,
		MaxFrames:      cfg.Render.MaxFrames,
	}, logger.Sublogger("render"))
	if err != nil {
		return nil, programs, err
	}

	loop, err := render.NewLoop(render.LoopConfig{
		Producer:     source,
		Channel:      gostream.NewFrameChannel(policy),
		Filter:       filter,
		Detector:     detector,
		Visualize:    cfg.Analyzer.Visualize,
		Programs:     programs,
		Renderer:     renderer,
		Pacer:        render.NewPacer(cfg.Render.TargetTick, nil),
		SplitScreen:  cfg.Render.IsSplitScreen(),
		OverlayPanel: panel,
		Stats:        m,
	}, logger.Sublogger("loop"))
	if err != nil {
		return nil, programs, err
	}
	return loop, programs, nil
}

func newDetector(ac config.AnalyzerConfig) (objectdetection.Detector, error) {
	var posts []objectdetection.Postprocessor
	if ac.MinArea > 0 {
		posts = append(posts, objectdetection.NewAreaFilter(ac.MinArea))
	}
	if ac.MaxComponents > 0 {
		posts = append(posts, objectdetection.NewLargestFilter(ac.MaxComponents))
	}
	return objectdetection.NewDetector(ac.Backend, ac.Detector(), posts...)
}
