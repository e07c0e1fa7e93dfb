package cli

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/projection/config"
	"go.viam.com/projection/logging"
	"go.viam.com/projection/ros"
	"go.viam.com/projection/utils"
	"go.viam.com/projection/vision/projection"
)

// readBag is swapped out by tests that build a bag in memory.
var readBag = ros.ReadBag

// BagAction synchronizes the depth and detection topics of a recorded session, projects every
// pair and writes one JSON line per pair.
func BagAction(c *cli.Context) error {
	cfg, logger, closeLogs, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(closeLogs)
	if err := cfg.EnsureTopics(); err != nil {
		return err
	}

	rb, err := readBag(c.Path(bagFlagBag))
	if err != nil {
		return err
	}
	raw, err := ros.AllMessagesForTopics(rb, cfg.DepthTopic, cfg.DetectionTopic)
	if err != nil {
		return err
	}
	depths, err := ros.DecodeImageMessages(raw[cfg.DepthTopic])
	if err != nil {
		return err
	}
	dets, err := ros.DecodeDetectionArrayMessages(raw[cfg.DetectionTopic])
	if err != nil {
		return err
	}

	pairs, dropped := synchronize(depths, dets, cfg.Sync, logger)
	logger.Infow("synchronized session", "pairs", len(pairs), "dropped", dropped)

	projector, err := projection.New(cfg.ProjectorConfig, logger)
	if err != nil {
		return err
	}

	lines := make([]bagLineJSON, len(pairs))
	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(utils.ParallelFactor)
	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			results := projector.Project(ctx, pair.Detections.Detections, pair.Depth.Depth)
			if err := ctx.Err(); err != nil {
				return err
			}
			logCounts(logger.Sublogger("pair"), results)
			lines[i] = bagLineJSON{
				Topic:      cfg.OutputTopic,
				Stamp:      pair.Detections.Stamp,
				DepthStamp: pair.Depth.Stamp,
				Results:    toResultsJSON(results),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "projection interrupted")
	}

	return writeOutput(c, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		for _, line := range lines {
			if err := enc.Encode(line); err != nil {
				return err
			}
		}
		return nil
	})
}

// synchronize feeds both streams to an approximate synchronizer in stamp order and returns the
// pairs along with how many messages could not be paired. Depth images that cannot be decoded
// are logged and dropped.
func synchronize(
	depths []*ros.ImageMessage,
	dets []*ros.DetectionArrayMessage,
	syncCfg config.SyncConfig,
	logger logging.Logger,
) ([]ros.Pair, int) {
	sort.SliceStable(depths, func(i, j int) bool { return depths[i].Stamp().Before(depths[j].Stamp()) })
	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Stamp().Before(dets[j].Stamp()) })

	synchronizer := ros.NewApproximateSynchronizer(syncCfg.QueueSize, syncCfg.Slop())
	var pairs []ros.Pair
	undecodable := 0
	i, j := 0, 0
	for i < len(depths) || j < len(dets) {
		if j >= len(dets) || (i < len(depths) && !dets[j].Stamp().Before(depths[i].Stamp())) {
			msg := depths[i]
			i++
			dm, err := msg.ToDepthMap()
			if err != nil {
				logger.Warnw("dropping depth image", "stamp", msg.Stamp(), "error", err)
				undecodable++
				continue
			}
			logDepthMap(logger, "depth image at "+msg.Stamp().String(), dm)
			pairs = append(pairs, synchronizer.AddDepth(ros.StampedDepth{Stamp: msg.Stamp(), Depth: dm})...)
			continue
		}
		msg := dets[j]
		j++
		pairs = append(pairs, synchronizer.AddDetections(ros.StampedDetections{Stamp: msg.Stamp(), Detections: msg.ToDetections()})...)
	}
	pairs = append(pairs, synchronizer.Flush()...)
	return pairs, synchronizer.Dropped() + undecodable
}
