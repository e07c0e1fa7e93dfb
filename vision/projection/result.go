package projection

import (
	"image"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"go.viam.com/projection/vision/objectdetection"
)

// SentinelPosition is reported when no valid depth could be estimated for a detection. It is a
// marker, not a measurement: x = y = 0 with z = 100.
var SentinelPosition = r3.Vector{X: 0, Y: 0, Z: 100}

var (
	// ErrMalformedRegion is returned for regions with a negative width or height, or whose
	// sampling window cannot be represented in pixel coordinates.
	ErrMalformedRegion = errors.New("malformed detection region")
	// ErrNoDepthMap is returned when a detection is projected without a depth map.
	ErrNoDepthMap = errors.New("no depth map")
)

// Status tells how a detection's position was obtained.
type Status int

const (
	// StatusOK means the position was back-projected from a valid depth estimate.
	StatusOK Status = iota
	// StatusDepthUnavailable means no valid depth was found and Position holds SentinelPosition.
	StatusDepthUnavailable
	// StatusSkipped means the detection could not be processed and has no position.
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDepthUnavailable:
		return "depth_unavailable"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status as its string form.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the string form written by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	for _, status := range []Status{StatusOK, StatusDepthUnavailable, StatusSkipped} {
		if string(text) == status.String() {
			*s = status
			return nil
		}
	}
	return errors.Errorf("unknown status %q", text)
}

// Result is the outcome of projecting one detection.
type Result struct {
	Detection objectdetection.Detection
	// Position is nil when Status is StatusSkipped.
	Position *r3.Vector
	// Depth is the median of the valid samples, NaN when there were none.
	Depth float64
	// Samples is the number of valid depth samples the estimate was taken from.
	Samples int
	// SampledRegion is the shrunk region after clipping to the depth map.
	SampledRegion image.Rectangle
	Status        Status
	// Err is set when Status is StatusSkipped.
	Err error
}

func skipped(det objectdetection.Detection, err error) Result {
	return Result{Detection: det, Depth: math.NaN(), Status: StatusSkipped, Err: err}
}

// Results holds one Result per input detection, in input order.
type Results []Result

// Err combines the errors of all skipped results.
func (rs Results) Err() error {
	var errs []error
	for _, r := range rs {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return multierr.Combine(errs...)
}

// Positions returns one position per result. Skipped results, which have no position, are
// given SentinelPosition so that outputs requiring a point for every detection can be filled.
func (rs Results) Positions() []r3.Vector {
	return lo.Map(rs, func(r Result, _ int) r3.Vector {
		if r.Position == nil {
			return SentinelPosition
		}
		return *r.Position
	})
}

// Detections returns the input detections in order.
func (rs Results) Detections() []objectdetection.Detection {
	return lo.Map(rs, func(r Result, _ int) objectdetection.Detection {
		return r.Detection
	})
}

// Counts returns the number of results per status.
func (rs Results) Counts() map[Status]int {
	return lo.CountValuesBy(rs, func(r Result) Status {
		return r.Status
	})
}
