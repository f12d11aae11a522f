package geometry

import (
	"math"

	"github.com/openvdata/annoconv/pkg/errdefs"
)

// Polygon is a closed outer ring plus zero or more hole rings. Rings are
// implicitly closed: the last vertex connects back to the first. After
// Normalize the outer ring winds clockwise when viewed with y growing down
// (positive shoelace sum) and holes wind the opposite way (negative sum).
type Polygon struct {
	Outer []Point   `json:"outer"`
	Holes [][]Point `json:"holes,omitempty"`
}

// Validate checks the polygon invariants: at least three outer vertices,
// non-degenerate outer area, and at least three vertices per hole ring.
func (p Polygon) Validate() error {
	if len(p.Outer) < 3 {
		return &errdefs.GeometryError{Reason: "polygon outer ring needs at least 3 points"}
	}
	if math.Abs(ringArea(p.Outer)) == 0 {
		return &errdefs.GeometryError{Reason: "polygon outer ring has zero area"}
	}
	for _, h := range p.Holes {
		if len(h) < 3 {
			return &errdefs.GeometryError{Reason: "polygon hole ring needs at least 3 points"}
		}
	}
	return nil
}

// SignedArea returns the shoelace area of the outer ring. A ring winding
// clockwise in the y-down coordinate system yields a positive value.
func (p Polygon) SignedArea() float64 {
	return ringArea(p.Outer)
}

// Area returns the absolute area enclosed by the outer ring minus the area
// of the holes.
func (p Polygon) Area() float64 {
	a := math.Abs(ringArea(p.Outer))
	for _, h := range p.Holes {
		a -= math.Abs(ringArea(h))
	}
	if a < 0 {
		return 0
	}
	return a
}

// Bounds returns the tight axis-aligned bounding box over all rings.
func (p Polygon) Bounds() Box {
	if len(p.Outer) == 0 {
		return Box{}
	}
	return boundsOf(p.Outer)
}

// Normalize rewinds the rings into the canonical winding order and returns
// a copy, leaving the receiver untouched.
func (p Polygon) Normalize() Polygon {
	out := Polygon{Outer: append([]Point(nil), p.Outer...)}
	if ringArea(out.Outer) < 0 {
		reversePoints(out.Outer)
	}
	for _, h := range p.Holes {
		hole := append([]Point(nil), h...)
		if ringArea(hole) > 0 {
			reversePoints(hole)
		}
		out.Holes = append(out.Holes, hole)
	}
	return out
}

// Rings returns the outer ring followed by the hole rings. Shared for
// even-odd algorithms that treat all rings alike.
func (p Polygon) Rings() [][]Point {
	rings := make([][]Point, 0, 1+len(p.Holes))
	rings = append(rings, p.Outer)
	rings = append(rings, p.Holes...)
	return rings
}

// ringArea computes twice-signed shoelace area divided by two.
func ringArea(ring []Point) float64 {
	if len(ring) < 3 {
		return 0
	}
	sum := 0.0
	for i := range ring {
		j := (i + 1) % len(ring)
		sum += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return sum / 2
}

func reversePoints(pts []Point) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}

// Polyline is an open ordered sequence of at least two points.
type Polyline struct {
	Points []Point `json:"points"`
}

// Validate checks the polyline invariants.
func (l Polyline) Validate() error {
	if len(l.Points) < 2 {
		return &errdefs.GeometryError{Reason: "polyline needs at least 2 points"}
	}
	return nil
}

// Bounds returns the tight axis-aligned bounding box of the polyline.
func (l Polyline) Bounds() Box {
	if len(l.Points) == 0 {
		return Box{}
	}
	return boundsOf(l.Points)
}
