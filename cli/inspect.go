package cli

import (
	"fmt"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"go.viam.com/augment/config"
	"go.viam.com/augment/gostream"
	"go.viam.com/augment/rimage"
	"go.viam.com/augment/vision/objectdetection"
)

// ProbeAction prints the video stream of the file given as the only argument.
func ProbeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("probe needs exactly one video file")
	}
	logger := newLogger(c)
	info, err := gostream.Probe(c.Context, c.Args().First(), logger.Sublogger("decoder"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "codec:      %s\n", info.Codec)
	fmt.Fprintf(c.App.Writer, "size:       %dx%d\n", info.Width, info.Height)
	fmt.Fprintf(c.App.Writer, "frame rate: %.3f\n", info.FrameRate)
	if info.Rotation != 0 {
		fmt.Fprintf(c.App.Writer, "rotation:   %d\n", info.Rotation)
	}
	if info.Duration > 0 {
		fmt.Fprintf(c.App.Writer, "duration:   %s\n", info.Duration)
	}
	if info.FrameCount > 0 {
		fmt.Fprintf(c.App.Writer, "frames:     %d\n", info.FrameCount)
	}
	return nil
}

// AnalyzeAction runs the configured detector over one image and prints the components it finds.
func AnalyzeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("analyze needs exactly one image file")
	}
	path := c.Args().First()
	logger := newLogger(c)

	// Only the analyzer section of a config applies here.
	cfg := config.Default()
	if configPath := c.String(configFlag); configPath != "" {
		var err error
		if cfg, err = config.Read(configPath, logger); err != nil {
			return err
		}
	}
	if minArea := c.Int(analyzeFlagMinArea); minArea >= 0 {
		cfg.Analyzer.MinArea = minArea
	}

	detector, err := newDetector(cfg.Analyzer)
	if err != nil {
		return err
	}

	frame, err := rimage.ReadFrameFile(path)
	if err != nil {
		return err
	}

	var vis *rimage.Frame
	if c.String(analyzeFlagMask) != "" {
		vis = rimage.NewFrame(frame.Width, frame.Height, frame.Format)
	}
	comps, err := detector.Analyze(frame, vis)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "%s: %d components\n", filepath.Base(path), len(comps))
	if len(comps) > 0 {
		fmt.Fprintln(c.App.Writer, componentTable(comps))
	}

	if out := c.String(analyzeFlagOutput); out != "" {
		annotated, err := rimage.Annotate(frame, lo.Map(comps, func(comp objectdetection.ConnectedComponent, i int) rimage.Annotation {
			return rimage.Annotation{Box: comp.Bounds(), Label: fmt.Sprintf("%d", i)}
		}))
		if err != nil {
			return err
		}
		if err := rimage.WriteImageFile(out, annotated); err != nil {
			return errors.Wrapf(err, "writing %q", out)
		}
	}
	if out := c.String(analyzeFlagMask); out != "" {
		mask, err := rimage.ToImage(vis)
		if err != nil {
			return err
		}
		if err := rimage.WriteImageFile(out, mask); err != nil {
			return errors.Wrapf(err, "writing %q", out)
		}
	}
	return nil
}

func componentTable(comps []objectdetection.ConnectedComponent) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Left", "Top", "Width", "Height", "Area"})
	for i, comp := range comps {
		t.AppendRow(table.Row{i, comp.Left, comp.Top, comp.Width, comp.Height, comp.Area})
	}
	return t.Render()
}
