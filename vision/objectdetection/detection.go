// Package objectdetection defines the 2D detection records consumed by the projector and the
// filters that can be applied to a batch of them.
package objectdetection

import (
	"fmt"
	"image"
)

// Detection is a single 2D detection: an axis-aligned pixel region plus the label and score the
// detector attached to it.
type Detection struct {
	// Region spans [Min, Max) in pixel coordinates. Min is the top-left corner.
	Region image.Rectangle
	Label  string
	Score  float64
}

// NewDetection creates a detection from a top-left corner and a size. A negative width or height
// is kept as given so that it can be reported as malformed downstream.
func NewDetection(x, y, width, height int, label string, score float64) Detection {
	return Detection{
		Region: image.Rectangle{Min: image.Pt(x, y), Max: image.Pt(x+width, y+height)},
		Label:  label,
		Score:  score,
	}
}

// Width is the region's width in pixels.
func (d Detection) Width() int {
	return d.Region.Dx()
}

// Height is the region's height in pixels.
func (d Detection) Height() int {
	return d.Region.Dy()
}

// Area is the region's area in pixels, zero for malformed regions.
func (d Detection) Area() int {
	if !d.WellFormed() {
		return 0
	}
	return d.Width() * d.Height()
}

// WellFormed reports whether the region has a non-negative width and height.
func (d Detection) WellFormed() bool {
	return d.Region.Max.X >= d.Region.Min.X && d.Region.Max.Y >= d.Region.Min.Y
}

// Center returns the center of the region as floating point pixel coordinates.
func (d Detection) Center() (float64, float64) {
	return float64(d.Region.Min.X) + float64(d.Width())/2, float64(d.Region.Min.Y) + float64(d.Height())/2
}

func (d Detection) String() string {
	return fmt.Sprintf("%q(%.2f) at (%d,%d) %dx%d",
		d.Label, d.Score, d.Region.Min.X, d.Region.Min.Y, d.Width(), d.Height())
}
