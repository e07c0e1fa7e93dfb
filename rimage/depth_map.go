package rimage

import (
	"image"
	"math"

	"github.com/pkg/errors"
)

// DepthMap is a dense row-major buffer of depth samples aligned with an image's pixel grid.
// Samples are stored in whatever unit the sensor produced; nothing here rescales them.
// A sample that is zero, negative, NaN or infinite means the sensor had no valid return
// at that pixel.
type DepthMap struct {
	width  int
	height int

	data []float64
}

// NewEmptyDepthMap returns an all-zero (all invalid) depth map of the given size.
func NewEmptyDepthMap(width, height int) *DepthMap {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]float64, width*height),
	}
}

// NewDepthMapFromSlice wraps row-major samples. The depth map takes ownership of data.
func NewDepthMapFromSlice(width, height int, data []float64) (*DepthMap, error) {
	if width < 0 || height < 0 {
		return nil, errors.Errorf("bad width or height for depth map %d %d", width, height)
	}
	if len(data) != width*height {
		return nil, errors.Errorf("depth map of size (%d,%d) needs %d samples, got %d",
			width, height, width*height, len(data))
	}
	return &DepthMap{width: width, height: height, data: data}, nil
}

// HasData returns whether the depth map holds any samples.
func (dm *DepthMap) HasData() bool {
	return dm != nil && dm.width > 0 && dm.height > 0 && len(dm.data) > 0
}

// Width returns the number of columns.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the number of rows.
func (dm *DepthMap) Height() int {
	return dm.height
}

// Bounds returns the rectangle of valid pixel indices.
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

func (dm *DepthMap) kxy(x, y int) int {
	return y*dm.width + x
}

// Contains returns whether (x, y) indexes a sample.
func (dm *DepthMap) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < dm.width && y < dm.height
}

// Get returns the sample at p.
func (dm *DepthMap) Get(p image.Point) float64 {
	return dm.data[dm.kxy(p.X, p.Y)]
}

// GetDepth returns the sample at (x, y).
func (dm *DepthMap) GetDepth(x, y int) float64 {
	return dm.data[dm.kxy(x, y)]
}

// Set writes the sample at (x, y).
func (dm *DepthMap) Set(x, y int, val float64) {
	dm.data[dm.kxy(x, y)] = val
}

// SubMap copies the part of the depth map covered by r into a new depth map whose origin is
// the top-left corner of the clipped rectangle. r is clipped to the depth map bounds first, so
// a rectangle hanging off an edge keeps only its in-bounds part and a rectangle fully outside
// yields an empty depth map. The receiver is never modified.
func (dm *DepthMap) SubMap(r image.Rectangle) *DepthMap {
	clipped := r.Intersect(dm.Bounds())
	if clipped.Empty() {
		return NewEmptyDepthMap(0, 0)
	}
	sub := NewEmptyDepthMap(clipped.Dx(), clipped.Dy())
	for y := clipped.Min.Y; y < clipped.Max.Y; y++ {
		row := dm.data[dm.kxy(clipped.Min.X, y):dm.kxy(clipped.Max.X, y)]
		copy(sub.data[sub.kxy(0, y-clipped.Min.Y):], row)
	}
	return sub
}

// ValidSamples returns every sample that IsValidDepth accepts, in row-major order.
func (dm *DepthMap) ValidSamples() []float64 {
	samples := make([]float64, 0, len(dm.data))
	for _, d := range dm.data {
		if IsValidDepth(d) {
			samples = append(samples, d)
		}
	}
	return samples
}

// MinMax returns the smallest and largest valid samples. Both are NaN if there are none.
func (dm *DepthMap) MinMax() (float64, float64) {
	lo, hi := math.NaN(), math.NaN()
	for _, d := range dm.data {
		if !IsValidDepth(d) {
			continue
		}
		if math.IsNaN(lo) || d < lo {
			lo = d
		}
		if math.IsNaN(hi) || d > hi {
			hi = d
		}
	}
	return lo, hi
}

// IsValidDepth reports whether a sample is a usable depth return: finite and strictly positive.
func IsValidDepth(d float64) bool {
	return d > 0 && !math.IsInf(d, 1)
}
