package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/projection/config"
	"go.viam.com/projection/logging"
	"go.viam.com/projection/rimage"
	"go.viam.com/projection/vision/objectdetection"
	"go.viam.com/projection/vision/projection"
)

// ProjectAction projects the detections of a single depth frame and writes them as JSON.
func ProjectAction(c *cli.Context) error {
	cfg, logger, closeLogs, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(closeLogs)

	dm, err := rimage.ParseDepthMap(c.Path(projectFlagDepth))
	if err != nil {
		return err
	}
	logDepthMap(logger, c.Path(projectFlagDepth), dm)
	dets, err := readDetections(c.Path(projectFlagDetections))
	if err != nil {
		return err
	}
	before := len(dets)
	dets = detectionFilters(c)(dets)
	if len(dets) != before {
		logger.Debugw("filtered detections", "before", before, "after", len(dets))
	}

	projector, err := projection.New(cfg.ProjectorConfig, logger)
	if err != nil {
		return err
	}
	results := projector.Project(c.Context, dets, dm)
	logCounts(logger, results)

	return writeOutput(c, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(toResultsJSON(results))
	})
}

func detectionFilters(c *cli.Context) objectdetection.Postprocessor {
	var filters []objectdetection.Postprocessor
	if c.IsSet(projectFlagMinScore) {
		filters = append(filters, objectdetection.NewScoreFilter(c.Float64(projectFlagMinScore)))
	}
	if c.IsSet(projectFlagMinArea) {
		filters = append(filters, objectdetection.NewAreaFilter(c.Int(projectFlagMinArea)))
	}
	if labels := c.StringSlice(projectFlagLabels); len(labels) > 0 {
		filters = append(filters, objectdetection.NewLabelFilter(labels...))
	}
	return objectdetection.Chain(filters...)
}

// loadConfig reads the --config file and returns a logger writing to the app's ErrWriter at the
// configured level, or at debug level when --debug is set. When the config names a log file the
// logger also writes there; the returned func closes it.
func loadConfig(c *cli.Context) (*config.Config, logging.Logger, func() error, error) {
	logger := logging.NewBlankLogger("projection")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	debug := c.Bool(generalFlagDebug)
	if !debug {
		logger.SetLevel(logging.INFO)
	}

	cfg, err := config.Read(c.Path(generalFlagConfig), logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if !debug {
		logger.SetLevel(cfg.Level)
	}
	closeLogs := func() error { return nil }
	if cfg.LogFile != "" {
		fileAppender := logging.NewFileAppender(cfg.LogFile, 0, 0)
		logger.AddAppender(fileAppender)
		closeLogs = fileAppender.Close
	}
	logging.ReplaceGlobal(logger)
	return cfg, logger, closeLogs, nil
}

// logDepthMap notes the size and valid depth range of a depth map. A depth map without samples
// is only a warning: every detection projected against it reports the sentinel position.
func logDepthMap(logger logging.Logger, source string, dm *rimage.DepthMap) {
	if !dm.HasData() {
		logger.Warnw("depth map has no samples", "source", source)
		return
	}
	minDepth, maxDepth := dm.MinMax()
	logger.Debugw("depth map",
		"source", source,
		"width", dm.Width(),
		"height", dm.Height(),
		"min_depth", minDepth,
		"max_depth", maxDepth)
}

func logCounts(logger logging.Logger, results projection.Results) {
	counts := results.Counts()
	logger.Infow("projected detections",
		"total", len(results),
		projection.StatusOK.String(), counts[projection.StatusOK],
		projection.StatusDepthUnavailable.String(), counts[projection.StatusDepthUnavailable],
		projection.StatusSkipped.String(), counts[projection.StatusSkipped],
	)
}

// writeOutput runs write against the --out file, or the app's Writer when --out is not set.
func writeOutput(c *cli.Context, write func(io.Writer) error) (err error) {
	path := c.Path(generalFlagOut)
	if path == "" {
		return write(c.App.Writer)
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "cannot create output file")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return write(f)
}
