package raster

import (
	"math"

	"github.com/openvdata/annoconv/pkg/errdefs"
	"github.com/openvdata/annoconv/pkg/geometry"
)

// Edge directions on the vertex lattice: right, down, left, up. The
// ordering matters: (d+1)%4 is the right turn and (d+3)%4 the left turn in
// y-down screen coordinates.
const (
	dirRight = iota
	dirDown
	dirLeft
	dirUp
)

var dirVec = [4][2]int{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}

// edgeKey identifies a directed boundary edge by its start vertex on the
// (W+1)x(H+1) lattice and its direction. Edges are oriented so the
// foreground is always on the right-hand side of travel.
type edgeKey struct {
	X, Y, Dir int
}

// MaskToPolygons extracts one polygon per 4-connected foreground component
// by tracing the crack boundary between foreground and background pixels.
// Vertices land on the integer pixel lattice, so with tolerance 0 the
// result is exact: rasterizing it reproduces the source mask pixel for
// pixel. A positive tolerance applies Douglas-Peucker simplification to
// every ring, trading boundary fidelity for vertex count. Multi-component
// masks yield multiple polygons, never a silently merged one.
func MaskToPolygons(m geometry.Mask, tolerance float64) ([]geometry.Polygon, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	comp, ncomp := labelComponents(m)
	if ncomp == 0 {
		return nil, nil
	}

	edges := make(map[edgeKey]int)
	var order []edgeKey
	emit := func(k edgeKey, c int) {
		edges[k] = c
		order = append(order, k)
	}
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			c := comp[y*m.W+x]
			if c < 0 {
				continue
			}
			if !m.At(x, y-1) {
				emit(edgeKey{x, y, dirRight}, c)
			}
			if !m.At(x+1, y) {
				emit(edgeKey{x + 1, y, dirDown}, c)
			}
			if !m.At(x, y+1) {
				emit(edgeKey{x + 1, y + 1, dirLeft}, c)
			}
			if !m.At(x-1, y) {
				emit(edgeKey{x, y + 1, dirUp}, c)
			}
		}
	}

	used := make(map[edgeKey]bool, len(edges))
	outers := make([][]geometry.Point, ncomp)
	holes := make([][][]geometry.Point, ncomp)
	for _, start := range order {
		if used[start] {
			continue
		}
		ring, c, err := traceLoop(start, edges, used)
		if err != nil {
			return nil, err
		}
		if loopArea(ring) > 0 {
			outers[c] = ring
		} else {
			holes[c] = append(holes[c], ring)
		}
	}

	polys := make([]geometry.Polygon, 0, ncomp)
	for c := 0; c < ncomp; c++ {
		if outers[c] == nil {
			return nil, &errdefs.GeometryError{Reason: "component without an outer contour"}
		}
		p := geometry.Polygon{
			Outer: simplifyRing(outers[c], tolerance),
			Holes: nil,
		}
		for _, h := range holes[c] {
			p.Holes = append(p.Holes, simplifyRing(h, tolerance))
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		polys = append(polys, p)
	}
	return polys, nil
}

// traceLoop walks one closed boundary loop starting from the given edge.
// At every vertex it follows the right-turn-most existing edge, which
// keeps the foreground on the right-hand side and keeps loops of
// diagonally touching components separate. Collinear lattice vertices are
// collapsed.
func traceLoop(start edgeKey, edges map[edgeKey]int, used map[edgeKey]bool) ([]geometry.Point, int, error) {
	comp := edges[start]
	var verts []geometry.Point

	cur := start
	for {
		used[cur] = true
		if n := len(verts); n == 0 || verts[n-1] != lattice(cur.X, cur.Y) {
			verts = append(verts, lattice(cur.X, cur.Y))
		}
		nx := cur.X + dirVec[cur.Dir][0]
		ny := cur.Y + dirVec[cur.Dir][1]

		next := edgeKey{-1, -1, -1}
		for _, nd := range [3]int{(cur.Dir + 1) % 4, cur.Dir, (cur.Dir + 3) % 4} {
			k := edgeKey{nx, ny, nd}
			if _, ok := edges[k]; ok {
				next = k
				break
			}
		}
		if next.Dir < 0 {
			return nil, 0, &errdefs.GeometryError{Reason: "open contour in mask boundary"}
		}
		if next == start {
			break
		}
		if used[next] {
			return nil, 0, &errdefs.GeometryError{Reason: "contour trace revisited a boundary edge"}
		}
		cur = next
	}

	return collapseCollinear(verts), comp, nil
}

func lattice(x, y int) geometry.Point {
	return geometry.Point{X: float64(x), Y: float64(y)}
}

// collapseCollinear removes vertices that lie on a straight run, including
// across the ring's wrap-around point.
func collapseCollinear(ring []geometry.Point) []geometry.Point {
	if len(ring) < 3 {
		return ring
	}
	out := make([]geometry.Point, 0, len(ring))
	n := len(ring)
	for i := 0; i < n; i++ {
		prev := ring[(i+n-1)%n]
		cur := ring[i]
		next := ring[(i+1)%n]
		cross := (cur.X-prev.X)*(next.Y-cur.Y) - (cur.Y-prev.Y)*(next.X-cur.X)
		if cross != 0 {
			out = append(out, cur)
		}
	}
	return out
}

func loopArea(ring []geometry.Point) float64 {
	sum := 0.0
	for i := range ring {
		j := (i + 1) % len(ring)
		sum += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return sum / 2
}

// labelComponents labels 4-connected foreground components in row-major
// discovery order. Background cells get -1.
func labelComponents(m geometry.Mask) ([]int, int) {
	comp := make([]int, len(m.Bits))
	for i := range comp {
		comp[i] = -1
	}
	next := 0
	var queue [][2]int
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if !m.Bits[y*m.W+x] || comp[y*m.W+x] >= 0 {
				continue
			}
			id := next
			next++
			comp[y*m.W+x] = id
			queue = append(queue[:0], [2]int{x, y})
			for len(queue) > 0 {
				p := queue[0]
				queue = queue[1:]
				for _, d := range dirVec {
					qx, qy := p[0]+d[0], p[1]+d[1]
					if !m.At(qx, qy) || comp[qy*m.W+qx] >= 0 {
						continue
					}
					comp[qy*m.W+qx] = id
					queue = append(queue, [2]int{qx, qy})
				}
			}
		}
	}
	return comp, next
}

// simplifyRing applies Douglas-Peucker with the given tolerance to a
// closed ring. Tolerance zero returns the ring unchanged; a simplification
// that would degenerate the ring below three vertices is discarded.
func simplifyRing(ring []geometry.Point, tolerance float64) []geometry.Point {
	if tolerance <= 0 || len(ring) <= 4 {
		return ring
	}
	closed := append(append([]geometry.Point(nil), ring...), ring[0])
	simplified := douglasPeucker(closed, tolerance)
	simplified = simplified[:len(simplified)-1]
	if len(simplified) < 3 {
		return ring
	}
	return simplified
}

func douglasPeucker(pts []geometry.Point, tolerance float64) []geometry.Point {
	if len(pts) <= 2 {
		return pts
	}
	maxDist := 0.0
	maxIdx := 0
	a, b := pts[0], pts[len(pts)-1]
	for i := 1; i < len(pts)-1; i++ {
		d := perpendicularDistance(pts[i], a, b)
		if d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}
	if maxDist <= tolerance {
		return []geometry.Point{a, b}
	}
	left := douglasPeucker(pts[:maxIdx+1], tolerance)
	right := douglasPeucker(pts[maxIdx:], tolerance)
	return append(left[:len(left)-1], right...)
}

func perpendicularDistance(p, a, b geometry.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	if dx == 0 && dy == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	num := math.Abs(dx*(a.Y-p.Y) - dy*(a.X-p.X))
	return num / math.Hypot(dx, dy)
}
