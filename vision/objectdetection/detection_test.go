package objectdetection

import (
	"image"
	"testing"

	"go.viam.com/test"
)

func TestDetectionGeometry(t *testing.T) {
	d := NewDetection(10, 20, 30, 41, "face", 0.9)
	test.That(t, d.Region, test.ShouldResemble, image.Rect(10, 20, 40, 61))
	test.That(t, d.Width(), test.ShouldEqual, 30)
	test.That(t, d.Height(), test.ShouldEqual, 41)
	test.That(t, d.Area(), test.ShouldEqual, 30*41)
	test.That(t, d.WellFormed(), test.ShouldBeTrue)

	cx, cy := d.Center()
	test.That(t, cx, test.ShouldEqual, 25.)
	test.That(t, cy, test.ShouldEqual, 40.5)
	test.That(t, d.String(), test.ShouldEqual, `"face"(0.90) at (10,20) 30x41`)

	bad := NewDetection(10, 10, -4, 5, "", 1)
	test.That(t, bad.WellFormed(), test.ShouldBeFalse)
	test.That(t, bad.Width(), test.ShouldEqual, -4)
	test.That(t, bad.Area(), test.ShouldEqual, 0)

	empty := NewDetection(3, 3, 0, 0, "", 1)
	test.That(t, empty.WellFormed(), test.ShouldBeTrue)
	test.That(t, empty.Area(), test.ShouldEqual, 0)
}

func TestPostprocessors(t *testing.T) {
	dets := []Detection{
		NewDetection(0, 0, 10, 10, "face", 0.95),
		NewDetection(0, 0, 2, 2, "face", 0.99),
		NewDetection(0, 0, 20, 20, "person", 0.4),
		NewDetection(0, 0, 20, 20, "cup", 0.7),
	}

	test.That(t, NewAreaFilter(50)(dets), test.ShouldHaveLength, 3)
	test.That(t, NewScoreFilter(0.7)(dets), test.ShouldHaveLength, 3)

	faces := NewLabelFilter("face")(dets)
	test.That(t, faces, test.ShouldHaveLength, 2)
	test.That(t, NewLabelFilter()(dets), test.ShouldHaveLength, 4)

	chained := Chain(NewAreaFilter(50), NewScoreFilter(0.5), NewLabelFilter("face", "cup"))(dets)
	test.That(t, chained, test.ShouldHaveLength, 2)
	test.That(t, chained[0].Label, test.ShouldEqual, "face")
	test.That(t, chained[1].Label, test.ShouldEqual, "cup")

	test.That(t, Chain()(dets), test.ShouldHaveLength, 4)
}
