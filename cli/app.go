// Package cli contains the projection command line tools.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	generalFlagDebug      = "debug"
	generalFlagConfig     = "config"
	generalFlagOut        = "out"
	projectFlagDepth      = "depth"
	projectFlagDetections = "detections"
	projectFlagMinScore   = "min-score"
	projectFlagMinArea    = "min-area"
	projectFlagLabels     = "labels"
	bagFlagBag            = "bag"
)

const projectDescription = `Writes one result per input detection, in input order, so result i belongs to
detection i. --min-score, --min-area and --labels remove detections before projecting.
Removed detections get no result, so output indices no longer match the detections file.`

var app = &cli.App{
	Name:            "projection",
	Usage:           "place 2D detections in 3D using depth",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    generalFlagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:        "project",
			Usage:       "project the detections of a single depth frame",
			UsageText:   "projection project --config <file> --depth <file> --detections <file> [other options]",
			Description: projectDescription,
			Flags: []cli.Flag{
				&cli.PathFlag{
					Name:     generalFlagConfig,
					Aliases:  []string{"c"},
					Usage:    "load configuration from `FILE`",
					Required: true,
				},
				&cli.PathFlag{
					Name:     projectFlagDepth,
					Usage:    "depth map `FILE` (.dat, .dat.gz or 16 bit .png)",
					Required: true,
				},
				&cli.PathFlag{
					Name:     projectFlagDetections,
					Usage:    "detections JSON `FILE`",
					Required: true,
				},
				&cli.PathFlag{
					Name:  generalFlagOut,
					Usage: "write results to `FILE` instead of stdout",
				},
				&cli.Float64Flag{
					Name:  projectFlagMinScore,
					Usage: "omit detections scoring below this from the output (output indices shift)",
				},
				&cli.IntFlag{
					Name:  projectFlagMinArea,
					Usage: "omit detections smaller than this many pixels from the output (output indices shift)",
				},
				&cli.StringSliceFlag{
					Name:  projectFlagLabels,
					Usage: "omit detections without one of these labels from the output (output indices shift)",
				},
			},
			Action: ProjectAction,
		},
		{
			Name:      "bag",
			Usage:     "synchronize and project the detections of a recorded ROS session",
			UsageText: "projection bag --config <file> --bag <file> [--out <file>]",
			Flags: []cli.Flag{
				&cli.PathFlag{
					Name:     generalFlagConfig,
					Aliases:  []string{"c"},
					Usage:    "load configuration from `FILE`",
					Required: true,
				},
				&cli.PathFlag{
					Name:     bagFlagBag,
					Usage:    "ROS bag `FILE` to read",
					Required: true,
				},
				&cli.PathFlag{
					Name:  generalFlagOut,
					Usage: "write JSON lines to `FILE` instead of stdout",
				},
			},
			Action: BagAction,
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
