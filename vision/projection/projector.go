// Package projection turns 2D detections into 3D camera-frame positions using an aligned depth
// map and a pinhole camera model.
//
// For every detection the projector shrinks the region by the configured factor (keeping its
// top-left corner), clips it to the depth map, takes the median of the valid depth samples
// inside it and back-projects the center of the unshrunk region at that depth. Positions are
// in the unit of the depth samples.
package projection

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/projection/logging"
	"go.viam.com/projection/rimage"
	"go.viam.com/projection/utils"
	"go.viam.com/projection/vision/objectdetection"
)

// Projector back-projects detections. It holds only its immutable config and is safe for
// concurrent use.
type Projector struct {
	cfg    Config
	logger logging.Logger
}

// New validates cfg and returns a Projector.
func New(cfg Config, logger logging.Logger) (*Projector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid projector config")
	}
	if logger == nil {
		logger = logging.Global()
	}
	logger.Debugw("camera matrix", "K", fmt.Sprintf("%v", mat.Formatted(cfg.Intrinsics.GetCameraMatrix(), mat.Squeeze())))
	return &Projector{cfg: cfg, logger: logger}, nil
}

// Config returns the projector's config.
func (p *Projector) Config() Config {
	return p.cfg
}

// Project computes a Result for every detection. The returned slice always has len(dets)
// entries and results[i] belongs to dets[i]. Problems with one detection never affect the
// others. Detections not reached before ctx is done are returned as skipped with ctx's error.
func (p *Projector) Project(ctx context.Context, dets []objectdetection.Detection, dm *rimage.DepthMap) Results {
	results := make(Results, len(dets))
	done := make([]bool, len(dets))
	err := utils.GroupWorkParallel(ctx, len(dets), p.cfg.Parallelism, nil,
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				results[workNum] = p.project(workNum, dets[workNum], dm)
				done[workNum] = true
			}, nil
		})
	if err != nil {
		p.logger.Errorw("detection batch interrupted", "error", err)
		for i := range results {
			if !done[i] {
				results[i] = skipped(dets[i], err)
			}
		}
	}

	counts := results.Counts()
	p.logger.Debugw("projected detections",
		"total", len(results),
		"ok", counts[StatusOK],
		"depth_unavailable", counts[StatusDepthUnavailable],
		"skipped", counts[StatusSkipped])
	return results
}

// ProjectOne computes the Result for a single detection.
func (p *Projector) ProjectOne(det objectdetection.Detection, dm *rimage.DepthMap) Result {
	return p.project(0, det, dm)
}

// SamplingRegion returns the window depth is sampled from: the region's width and height scaled
// by the shrink factor (rounded half to even), anchored at the region's top-left corner. The
// window is not clipped to any depth map.
func (p *Projector) SamplingRegion(det objectdetection.Detection) (image.Rectangle, error) {
	if !det.WellFormed() {
		return image.Rectangle{}, errors.Wrapf(ErrMalformedRegion, "region %v", det.Region)
	}
	w := math.RoundToEven(float64(det.Width()) * p.cfg.RegionShrinkFactor)
	h := math.RoundToEven(float64(det.Height()) * p.cfg.RegionShrinkFactor)
	x, y := det.Region.Min.X, det.Region.Min.Y
	if float64(x)+w > math.MaxInt32 || float64(y)+h > math.MaxInt32 {
		return image.Rectangle{}, errors.Wrapf(ErrMalformedRegion, "region %v is out of pixel range", det.Region)
	}
	return image.Rect(x, y, x+int(w), y+int(h)), nil
}

func (p *Projector) project(idx int, det objectdetection.Detection, dm *rimage.DepthMap) (res Result) {
	defer func() {
		if thePanic := recover(); thePanic != nil {
			res = skipped(det, fmt.Errorf("panic projecting detection: %v", thePanic))
			p.logger.Errorw("skipping detection", "index", idx, "detection", det.String(), "error", res.Err)
		}
	}()

	if dm == nil {
		res = skipped(det, ErrNoDepthMap)
		p.logger.Errorw("skipping detection", "index", idx, "detection", det.String(), "error", res.Err)
		return res
	}
	window, err := p.SamplingRegion(det)
	if err != nil {
		res = skipped(det, err)
		p.logger.Errorw("skipping detection", "index", idx, "detection", det.String(), "error", err)
		return res
	}

	// each detection reads its own copy of the window; the shared depth map is never modified
	samples := dm.SubMap(window).ValidSamples()
	depth, err := medianDepth(samples)
	if err != nil {
		res = skipped(det, err)
		p.logger.Errorw("skipping detection", "index", idx, "detection", det.String(), "error", err)
		return res
	}

	u, v := det.Center()
	realX, realY, realZ := p.cfg.Intrinsics.PixelToPoint(u, v, depth)
	res = Result{
		Detection:     det,
		Depth:         depth,
		Samples:       len(samples),
		SampledRegion: window.Intersect(dm.Bounds()),
	}

	xBad, yBad, depthBad := !isFinite(realX), !isFinite(realY), !isFinite(depth)
	if xBad || yBad || depthBad {
		pos := SentinelPosition
		res.Position = &pos
		res.Status = StatusDepthUnavailable
		p.logger.Warnw("depth unavailable, reporting sentinel position",
			"index", idx,
			"detection", det.String(),
			"samples", len(samples),
			"real_x_invalid", xBad,
			"real_y_invalid", yBad,
			"depth_invalid", depthBad)
		return res
	}

	res.Position = &r3.Vector{X: realX, Y: realY, Z: realZ}
	res.Status = StatusOK
	return res
}

// medianDepth returns the median of samples, or NaN when there are none. An even number of
// samples yields the mean of the two middle values.
func medianDepth(samples []float64) (float64, error) {
	if len(samples) == 0 {
		return math.NaN(), nil
	}
	median, err := stats.Median(samples)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "cannot compute median depth")
	}
	return median, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
