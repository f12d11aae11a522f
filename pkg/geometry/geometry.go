// Package geometry provides the value types for annotation shapes: points,
// bounding boxes, polygons with holes, polylines, raster masks and
// skeletons. The types carry no behaviour beyond construction, validation
// and coordinate math; rasterization lives in pkg/raster.
package geometry

import (
	"math"

	"github.com/openvdata/annoconv/pkg/errdefs"
)

// Point is a 2-D coordinate in image space. X grows right, Y grows down.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an axis-aligned bounding box given by its top-left corner and
// non-negative width and height, in pixel coordinates.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Validate checks the box invariants.
func (b Box) Validate() error {
	if b.W < 0 || b.H < 0 {
		return &errdefs.GeometryError{Reason: "bounding box width and height must be non-negative"}
	}
	return nil
}

// Area returns the area of the box.
func (b Box) Area() float64 {
	return b.W * b.H
}

// Intersect returns the intersection of two boxes. An empty intersection
// has zero width and height.
func (b Box) Intersect(o Box) Box {
	x0 := math.Max(b.X, o.X)
	y0 := math.Max(b.Y, o.Y)
	x1 := math.Min(b.X+b.W, o.X+o.W)
	y1 := math.Min(b.Y+b.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Box{}
	}
	return Box{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Union returns the smallest box covering both boxes. The zero box is
// the identity on either side, so unions accumulate from a zero value.
func (b Box) Union(o Box) Box {
	if b.Area() == 0 && b.X == 0 && b.Y == 0 {
		return o
	}
	if o.Area() == 0 && o.X == 0 && o.Y == 0 {
		return b
	}
	x0 := math.Min(b.X, o.X)
	y0 := math.Min(b.Y, o.Y)
	x1 := math.Max(b.X+b.W, o.X+o.W)
	y1 := math.Max(b.Y+b.H, o.Y+o.H)
	return Box{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Contains reports whether the point lies within the box, edges included.
func (b Box) Contains(p Point) bool {
	return p.X >= b.X && p.X <= b.X+b.W && p.Y >= b.Y && p.Y <= b.Y+b.H
}

// boundsOf returns the tight axis-aligned box around a non-empty point set.
func boundsOf(points []Point) Box {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Box{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}
