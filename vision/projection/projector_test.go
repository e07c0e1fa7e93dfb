package projection

import (
	"context"
	"image"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/projection/logging"
	"go.viam.com/projection/rimage"
	"go.viam.com/projection/rimage/transform"
	"go.viam.com/projection/vision/objectdetection"
)

func newTestProjector(t *testing.T, f, cx, cy, rf float64) *Projector {
	t.Helper()
	p, err := New(Config{
		Intrinsics:         *transform.NewSquarePixelIntrinsics(f, cx, cy),
		RegionShrinkFactor: rf,
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return p
}

func uniformDepthMap(width, height int, d float64) *rimage.DepthMap {
	dm := rimage.NewEmptyDepthMap(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dm.Set(x, y, d)
		}
	}
	return dm
}

func fillRect(dm *rimage.DepthMap, r image.Rectangle, d float64) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dm.Set(x, y, d)
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	logger := logging.NewTestLogger(t)
	good := Config{Intrinsics: *transform.NewSquarePixelIntrinsics(500, 320, 240), RegionShrinkFactor: 0.8}
	_, err := New(good, logger)
	test.That(t, err, test.ShouldBeNil)

	bad := good
	bad.Intrinsics.Fx = -1
	_, err = New(bad, logger)
	test.That(t, errors.Is(err, transform.ErrNoIntrinsics), test.ShouldBeTrue)

	for _, rf := range []float64{0, -0.5, 1.01, math.NaN()} {
		bad = good
		bad.RegionShrinkFactor = rf
		_, err = New(bad, logger)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "region shrink factor")
	}

	bad = good
	bad.Parallelism = -2
	_, err = New(bad, logger)
	test.That(t, err, test.ShouldNotBeNil)

	p, err := New(good, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Config(), test.ShouldResemble, good)
}

func TestValidDepthProjection(t *testing.T) {
	const (
		f  = 500.
		cx = 320.
		cy = 240.
		d  = 1.5
	)
	p := newTestProjector(t, f, cx, cy, 1)
	dm := uniformDepthMap(640, 480, d)

	det := objectdetection.NewDetection(400, 100, 40, 21, "face", 0.9)
	res := p.ProjectOne(det, dm)
	test.That(t, res.Status, test.ShouldEqual, StatusOK)
	test.That(t, res.Err, test.ShouldBeNil)
	test.That(t, res.Samples, test.ShouldEqual, 40*21)

	u, v := 400+40/2., 100+21/2.
	test.That(t, res.Position.X, test.ShouldAlmostEqual, (u-cx)*d/f)
	test.That(t, res.Position.Y, test.ShouldAlmostEqual, (v-cy)*d/f)
	test.That(t, res.Position.Z, test.ShouldEqual, d)
	test.That(t, res.Depth, test.ShouldEqual, d)
}

func TestNoUnitRescaling(t *testing.T) {
	p := newTestProjector(t, 600, 10, 10, 1)
	res := p.ProjectOne(objectdetection.NewDetection(0, 0, 4, 4, "", 1), uniformDepthMap(20, 20, 2.0))
	test.That(t, res.Status, test.ShouldEqual, StatusOK)
	test.That(t, res.Position.Z, test.ShouldEqual, 2.0)
}

func TestMedianRobustness(t *testing.T) {
	const d = 2.
	p := newTestProjector(t, 500, 0, 0, 1)
	dm := rimage.NewEmptyDepthMap(2, 2)
	dm.Set(0, 0, d)
	dm.Set(1, 0, d)
	dm.Set(0, 1, d)
	dm.Set(1, 1, 1000*d)

	res := p.ProjectOne(objectdetection.NewDetection(0, 0, 2, 2, "", 1), dm)
	test.That(t, res.Status, test.ShouldEqual, StatusOK)
	test.That(t, res.Depth, test.ShouldEqual, d)
	test.That(t, res.Position.Z, test.ShouldEqual, d)

	// even count takes the mean of the two middle values
	dm.Set(1, 0, 4)
	res = p.ProjectOne(objectdetection.NewDetection(0, 0, 2, 2, "", 1), dm)
	test.That(t, res.Depth, test.ShouldEqual, 3.)
}

func TestZeroAndNaNExclusion(t *testing.T) {
	const d = 0.8
	p := newTestProjector(t, 500, 0, 0, 1)
	dm, err := rimage.NewDepthMapFromSlice(3, 2, []float64{
		0, math.NaN(), 0,
		math.NaN(), d, -3,
	})
	test.That(t, err, test.ShouldBeNil)

	res := p.ProjectOne(objectdetection.NewDetection(0, 0, 3, 2, "", 1), dm)
	test.That(t, res.Status, test.ShouldEqual, StatusOK)
	test.That(t, res.Samples, test.ShouldEqual, 1)
	test.That(t, res.Depth, test.ShouldEqual, d)
}

func TestAllInvalidFallsBackToSentinel(t *testing.T) {
	p := newTestProjector(t, 500, 0, 0, 1)
	logger, logs := logging.NewObservedTestLogger(t)
	p.logger = logger

	dm, err := rimage.NewDepthMapFromSlice(2, 2, []float64{0, math.NaN(), math.Inf(1), 0})
	test.That(t, err, test.ShouldBeNil)

	res := p.ProjectOne(objectdetection.NewDetection(0, 0, 2, 2, "face", 1), dm)
	test.That(t, res.Status, test.ShouldEqual, StatusDepthUnavailable)
	test.That(t, res.Err, test.ShouldBeNil)
	test.That(t, *res.Position, test.ShouldResemble, r3.Vector{X: 0, Y: 0, Z: 100})
	test.That(t, math.IsNaN(res.Depth), test.ShouldBeTrue)

	warnings := logs.FilterMessageSnippet("sentinel").All()
	test.That(t, warnings, test.ShouldHaveLength, 1)
	fields := warnings[0].ContextMap()
	test.That(t, fields["depth_invalid"], test.ShouldBeTrue)
	test.That(t, fields["real_x_invalid"], test.ShouldBeTrue)
	test.That(t, fields["real_y_invalid"], test.ShouldBeTrue)
}

func TestShrinkKeepsTopLeftCorner(t *testing.T) {
	p := newTestProjector(t, 500, 0, 0, 0.5)
	det := objectdetection.NewDetection(10, 20, 10, 10, "", 1)

	window, err := p.SamplingRegion(det)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, window, test.ShouldResemble, image.Rect(10, 20, 15, 25))

	// only the top-left 5x5 quadrant has depth; the rest of the box is background
	dm := rimage.NewEmptyDepthMap(40, 40)
	fillRect(dm, image.Rect(10, 20, 15, 25), 1.0)
	fillRect(dm, image.Rect(15, 25, 20, 30), 9.0)

	res := p.ProjectOne(det, dm)
	test.That(t, res.Status, test.ShouldEqual, StatusOK)
	test.That(t, res.Samples, test.ShouldEqual, 25)
	test.That(t, res.Depth, test.ShouldEqual, 1.0)
	test.That(t, res.SampledRegion, test.ShouldResemble, image.Rect(10, 20, 15, 25))
	// the center still comes from the unshrunk region
	test.That(t, res.Position.X, test.ShouldAlmostEqual, 15./500)
	test.That(t, res.Position.Y, test.ShouldAlmostEqual, 25./500)
}

func TestShrinkRoundsHalfToEven(t *testing.T) {
	p := newTestProjector(t, 500, 0, 0, 0.5)

	window, err := p.SamplingRegion(objectdetection.NewDetection(0, 0, 5, 7, "", 1))
	test.That(t, err, test.ShouldBeNil)
	// 2.5 -> 2 and 3.5 -> 4
	test.That(t, window.Dx(), test.ShouldEqual, 2)
	test.That(t, window.Dy(), test.ShouldEqual, 4)

	// a one pixel box shrinks to nothing and has no depth
	res := p.ProjectOne(objectdetection.NewDetection(3, 3, 1, 1, "", 1), uniformDepthMap(10, 10, 1))
	test.That(t, res.Status, test.ShouldEqual, StatusDepthUnavailable)
	test.That(t, res.Samples, test.ShouldEqual, 0)
}

func TestEdgeClipping(t *testing.T) {
	p := newTestProjector(t, 500, 0, 0, 1)
	dm := rimage.NewEmptyDepthMap(10, 10)
	fillRect(dm, image.Rect(8, 8, 10, 10), 3.0)

	res := p.ProjectOne(objectdetection.NewDetection(8, 8, 6, 6, "", 1), dm)
	test.That(t, res.Status, test.ShouldEqual, StatusOK)
	test.That(t, res.Samples, test.ShouldEqual, 4)
	test.That(t, res.Depth, test.ShouldEqual, 3.0)
	test.That(t, res.SampledRegion, test.ShouldResemble, image.Rect(8, 8, 10, 10))

	res = p.ProjectOne(objectdetection.NewDetection(-4, -4, 6, 6, "", 1), uniformDepthMap(10, 10, 2))
	test.That(t, res.Status, test.ShouldEqual, StatusOK)
	test.That(t, res.Samples, test.ShouldEqual, 4)

	// entirely outside the depth map is an empty sample set, not an error
	res = p.ProjectOne(objectdetection.NewDetection(50, 50, 6, 6, "", 1), dm)
	test.That(t, res.Status, test.ShouldEqual, StatusDepthUnavailable)
	test.That(t, *res.Position, test.ShouldResemble, SentinelPosition)
}

func TestMalformedDetectionIsSkipped(t *testing.T) {
	p := newTestProjector(t, 500, 5, 5, 1)
	logger, logs := logging.NewObservedTestLogger(t)
	p.logger = logger
	dm := uniformDepthMap(10, 10, 1)

	dets := []objectdetection.Detection{
		objectdetection.NewDetection(0, 0, 4, 4, "a", 1),
		objectdetection.NewDetection(0, 0, -4, 4, "b", 1),
		objectdetection.NewDetection(math.MaxInt32, 0, 4, 4, "c", 1),
		objectdetection.NewDetection(2, 2, 4, 4, "d", 1),
	}
	results := p.Project(context.Background(), dets, dm)
	test.That(t, results, test.ShouldHaveLength, 4)
	test.That(t, results[0].Status, test.ShouldEqual, StatusOK)
	test.That(t, results[1].Status, test.ShouldEqual, StatusSkipped)
	test.That(t, results[1].Position, test.ShouldBeNil)
	test.That(t, errors.Is(results[1].Err, ErrMalformedRegion), test.ShouldBeTrue)
	test.That(t, results[2].Status, test.ShouldEqual, StatusSkipped)
	test.That(t, errors.Is(results[2].Err, ErrMalformedRegion), test.ShouldBeTrue)
	test.That(t, results[3].Status, test.ShouldEqual, StatusOK)

	test.That(t, results.Err(), test.ShouldNotBeNil)
	test.That(t, results.Counts()[StatusSkipped], test.ShouldEqual, 2)
	test.That(t, results.Positions()[1], test.ShouldResemble, SentinelPosition)
	test.That(t, logs.FilterMessage("skipping detection").Len(), test.ShouldEqual, 2)

	res := p.ProjectOne(dets[0], nil)
	test.That(t, res.Status, test.ShouldEqual, StatusSkipped)
	test.That(t, errors.Is(res.Err, ErrNoDepthMap), test.ShouldBeTrue)
}

func TestShapePreservation(t *testing.T) {
	dm := rimage.NewEmptyDepthMap(64, 48)
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			if (x+y)%7 != 0 {
				dm.Set(x, y, 0.5+float64(x)/100)
			}
		}
	}

	var dets []objectdetection.Detection
	for i := 0; i < 57; i++ {
		dets = append(dets, objectdetection.NewDetection(i%60-3, i%45, 3+i%9, 2+i%11, "", float64(i)))
	}
	dets = append(dets, objectdetection.NewDetection(5, 5, -1, -1, "", -1))

	for _, parallelism := range []int{1, 4, 0} {
		p, err := New(Config{
			Intrinsics:         *transform.NewSquarePixelIntrinsics(400, 32, 24),
			RegionShrinkFactor: 0.8,
			Parallelism:        parallelism,
		}, logging.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)

		results := p.Project(context.Background(), dets, dm)
		test.That(t, results, test.ShouldHaveLength, len(dets))
		for i, res := range results {
			test.That(t, res.Detection, test.ShouldResemble, dets[i])
			single := p.ProjectOne(dets[i], dm)
			test.That(t, res.Status, test.ShouldEqual, single.Status)
			if single.Position != nil {
				test.That(t, *res.Position, test.ShouldResemble, *single.Position)
				test.That(t, res.Position.Z, test.ShouldBeGreaterThan, 0)
			}
		}
		test.That(t, results.Detections(), test.ShouldResemble, dets)
	}

	p := newTestProjector(t, 400, 32, 24, 1)
	test.That(t, p.Project(context.Background(), nil, dm), test.ShouldHaveLength, 0)
}

func TestProjectCanceled(t *testing.T) {
	p := newTestProjector(t, 500, 0, 0, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dets := []objectdetection.Detection{
		objectdetection.NewDetection(0, 0, 2, 2, "", 1),
		objectdetection.NewDetection(1, 1, 2, 2, "", 1),
	}
	results := p.Project(ctx, dets, uniformDepthMap(4, 4, 1))
	test.That(t, results, test.ShouldHaveLength, 2)
	for i, res := range results {
		test.That(t, res.Status, test.ShouldEqual, StatusSkipped)
		test.That(t, errors.Is(res.Err, context.Canceled), test.ShouldBeTrue)
		test.That(t, res.Detection, test.ShouldResemble, dets[i])
	}
}

func TestStatusString(t *testing.T) {
	test.That(t, StatusOK.String(), test.ShouldEqual, "ok")
	test.That(t, StatusDepthUnavailable.String(), test.ShouldEqual, "depth_unavailable")
	test.That(t, StatusSkipped.String(), test.ShouldEqual, "skipped")
	test.That(t, Status(42).String(), test.ShouldEqual, "unknown")
	text, err := StatusSkipped.MarshalText()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(text), test.ShouldEqual, "skipped")

	var status Status
	test.That(t, status.UnmarshalText([]byte("depth_unavailable")), test.ShouldBeNil)
	test.That(t, status, test.ShouldEqual, StatusDepthUnavailable)
	test.That(t, status.UnmarshalText([]byte("unknown")), test.ShouldNotBeNil)
}
