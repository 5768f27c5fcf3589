// Package cli contains the augment command line interface.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Global flags.
	configFlag  = "config"
	debugFlag   = "debug"
	logFileFlag = "log-file"

	runFlagVideo       = "video"
	runFlagMaxFrames   = "max-frames"
	runFlagSnapshotDir = "snapshot-dir"
	runFlagFilter      = "filter"

	analyzeFlagOutput  = "output"
	analyzeFlagMask    = "mask"
	analyzeFlagMinArea = "min-area"
)

var app = &cli.App{
	Name:            "augment",
	Usage:           "play a video through hot reloadable programs with live object detection",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    configFlag,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.StringFlag{
			Name:  logFileFlag,
			Usage: "also write logs to `FILE`, rotated by size",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "run",
			Usage:     "decode a video and drive the render loop until interrupted",
			ArgsUsage: "[video]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  runFlagVideo,
					Usage: "video `FILE` to play, overriding the config",
				},
				&cli.IntFlag{
					Name:  runFlagMaxFrames,
					Usage: "stop after this many frames were drawn",
				},
				&cli.StringFlag{
					Name:  runFlagSnapshotDir,
					Usage: "write annotated snapshots to `DIR`",
				},
				&cli.StringFlag{
					Name:  runFlagFilter,
					Usage: "display filter to apply, overriding the config",
				},
			},
			Action: RunAction,
		},
		{
			Name:      "probe",
			Usage:     "print the video stream of a file",
			ArgsUsage: "<video>",
			Action:    ProbeAction,
		},
		{
			Name:      "analyze",
			Usage:     "detect objects in a single image",
			ArgsUsage: "<image>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    analyzeFlagOutput,
					Aliases: []string{"o"},
					Usage:   "write the image with its detections to `FILE`",
				},
				&cli.StringFlag{
					Name:  analyzeFlagMask,
					Usage: "write the detection mask to `FILE`",
				},
				&cli.IntFlag{
					Name:  analyzeFlagMinArea,
					Usage: "drop components smaller than this many pixels, overriding the config",
					Value: -1,
				},
			},
			Action: AnalyzeAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
