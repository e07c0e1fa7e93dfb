package transform

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestCheckValid(t *testing.T) {
	var nilIntrinsics *PinholeCameraIntrinsics
	err := nilIntrinsics.CheckValid()
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	intrinsics := NewSquarePixelIntrinsics(525, 319.5, 239.5)
	test.That(t, intrinsics.CheckValid(), test.ShouldBeNil)
	test.That(t, intrinsics.Fy, test.ShouldEqual, 525.)

	intrinsics.Fx = 0
	err = intrinsics.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "Invalid focal length Fx")

	intrinsics = NewSquarePixelIntrinsics(math.NaN(), 1, 1)
	test.That(t, intrinsics.CheckValid(), test.ShouldNotBeNil)

	intrinsics = NewSquarePixelIntrinsics(10, math.Inf(1), 1)
	err = intrinsics.CheckValid()
	test.That(t, err.Error(), test.ShouldContainSubstring, "principal point Ppx")

	intrinsics = &PinholeCameraIntrinsics{Width: -1, Fx: 1, Fy: 1}
	test.That(t, intrinsics.CheckValid(), test.ShouldNotBeNil)

	// a principal point off the sensor is unusual but legal
	intrinsics = NewSquarePixelIntrinsics(10, -5, -5)
	test.That(t, intrinsics.CheckValid(), test.ShouldBeNil)
}

func TestPixelToPoint(t *testing.T) {
	intrinsics := &PinholeCameraIntrinsics{Fx: 500, Fy: 400, Ppx: 320, Ppy: 240}

	x, y, z := intrinsics.PixelToPoint(420, 140, 2.0)
	test.That(t, x, test.ShouldAlmostEqual, 0.4)
	test.That(t, y, test.ShouldAlmostEqual, -0.5)
	test.That(t, z, test.ShouldEqual, 2.0)

	// the principal point lies on the optical axis
	x, y, z = intrinsics.PixelToPoint(320, 240, 3)
	test.That(t, []float64{x, y, z}, test.ShouldResemble, []float64{0, 0, 3})

	var nilIntrinsics *PinholeCameraIntrinsics
	x, y, z = nilIntrinsics.PixelToPoint(1, 2, 3)
	test.That(t, []float64{x, y, z}, test.ShouldResemble, []float64{0, 0, 0})
}

func TestPixelToPointMatchesCameraMatrix(t *testing.T) {
	intrinsics := &PinholeCameraIntrinsics{Fx: 615.2, Fy: 615.2, Ppx: 327.4, Ppy: 241.9}
	k := intrinsics.GetCameraMatrix()
	test.That(t, k.At(0, 0), test.ShouldEqual, 615.2)
	test.That(t, k.At(2, 2), test.ShouldEqual, 1.)

	var kInv mat.Dense
	test.That(t, kInv.Inverse(k), test.ShouldBeNil)

	for _, px := range [][3]float64{{0, 0, 1}, {640, 480, 0.75}, {100.5, 400.25, 4.2}} {
		var ray mat.VecDense
		ray.MulVec(&kInv, mat.NewVecDense(3, []float64{px[0], px[1], 1}))
		x, y, z := intrinsics.PixelToPoint(px[0], px[1], px[2])
		test.That(t, x, test.ShouldAlmostEqual, ray.AtVec(0)*px[2])
		test.That(t, y, test.ShouldAlmostEqual, ray.AtVec(1)*px[2])
		test.That(t, z, test.ShouldAlmostEqual, ray.AtVec(2)*px[2])
	}

	var nilIntrinsics *PinholeCameraIntrinsics
	test.That(t, nilIntrinsics.GetCameraMatrix(), test.ShouldBeNil)
}

func TestLoadIntrinsicsFile(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "intrinsics.json")
	want := PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 525, Fy: 525, Ppx: 319.5, Ppy: 239.5}
	data, err := json.Marshal(want)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, os.WriteFile(fn, data, 0o600), test.ShouldBeNil)

	got, err := LoadIntrinsicsFile(fn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, *got, test.ShouldResemble, want)

	_, err = LoadIntrinsicsFile(filepath.Join(dir, "missing.json"))
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot read intrinsics file")

	test.That(t, os.WriteFile(fn, []byte("{"), 0o600), test.ShouldBeNil)
	_, err = LoadIntrinsicsFile(fn)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot decode intrinsics file")
}
