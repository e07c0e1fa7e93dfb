// Package transform holds the pinhole camera model used to turn pixels with depth into points.
package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is returned when camera intrinsics are missing or unusable.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError wraps ErrNoIntrinsics with what is wrong.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics describes an ideal pinhole camera: focal lengths and principal point
// in pixels. Width and Height are optional; zero means the image size is not known.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// NewSquarePixelIntrinsics builds intrinsics from a single focal length shared by both axes.
func NewSquarePixelIntrinsics(focalLength, ppx, ppy float64) *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{Fx: focalLength, Fy: focalLength, Ppx: ppx, Ppy: ppy}
}

// LoadIntrinsicsFile reads intrinsics stored as JSON, e.g. the intrinsic_parameters block of a
// camera calibration. The result is not validated.
func LoadIntrinsicsFile(path string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read intrinsics file")
	}
	var intrinsics PinholeCameraIntrinsics
	if err := json.Unmarshal(data, &intrinsics); err != nil {
		return nil, errors.Wrapf(err, "cannot decode intrinsics file %s", path)
	}
	return &intrinsics, nil
}

// CheckValid returns an error wrapping ErrNoIntrinsics if the intrinsics cannot be used for
// projection: focal lengths must be positive and finite, the principal point finite and the
// size, if given, non-negative. The principal point may lie outside the image.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width < 0 || params.Height < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%d, %d)", params.Width, params.Height))
	}
	for _, focal := range []struct {
		axis  string
		value float64
	}{{"Fx", params.Fx}, {"Fy", params.Fy}} {
		if !(focal.value > 0) || math.IsInf(focal.value, 1) {
			return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length %s = %v", focal.axis, focal.value))
		}
	}
	for _, pp := range []struct {
		axis  string
		value float64
	}{{"Ppx", params.Ppx}, {"Ppy", params.Ppy}} {
		if math.IsNaN(pp.value) || math.IsInf(pp.value, 0) {
			return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal point %s = %v", pp.axis, pp.value))
		}
	}
	return nil
}

// PixelToPoint back-projects pixel (x, y) seen at depth z into the camera frame. The returned
// coordinates are in the unit of z; nothing is rescaled. Nil intrinsics yield the origin.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	if params == nil {
		return 0, 0, 0
	}
	return (x - params.Ppx) * z / params.Fx, (y - params.Ppy) * z / params.Fy, z
}

// GetCameraMatrix returns the 3x3 camera matrix K:
//
//	[[fx  0 ppx]
//	 [ 0 fy ppy]
//	 [ 0  0   1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	return mat.NewDense(3, 3, []float64{
		params.Fx, 0, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}
