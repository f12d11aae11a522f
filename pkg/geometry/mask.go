package geometry

import (
	"fmt"

	"github.com/openvdata/annoconv/pkg/errdefs"
)

// Mask is a dense row-major boolean pixel grid bound to explicit
// dimensions. Bits[y*W+x] reports whether pixel (x, y) is foreground.
type Mask struct {
	W    int
	H    int
	Bits []bool
}

// NewMask returns an all-background mask of the given dimensions.
func NewMask(w, h int) Mask {
	return Mask{W: w, H: h, Bits: make([]bool, w*h)}
}

// Validate checks that the grid matches the declared dimensions.
func (m Mask) Validate() error {
	if m.W < 0 || m.H < 0 {
		return &errdefs.GeometryError{Reason: "mask dimensions must be non-negative"}
	}
	if len(m.Bits) != m.W*m.H {
		return &errdefs.GeometryError{
			Reason: fmt.Sprintf("mask grid has %d cells, want %d (%dx%d)", len(m.Bits), m.W*m.H, m.W, m.H),
		}
	}
	return nil
}

// At reports whether pixel (x, y) is foreground. Out-of-range coordinates
// are background.
func (m Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return false
	}
	return m.Bits[y*m.W+x]
}

// Set marks pixel (x, y) as foreground or background. Out-of-range
// coordinates are ignored.
func (m Mask) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return
	}
	m.Bits[y*m.W+x] = v
}

// Count returns the number of foreground pixels.
func (m Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Bounds returns the tight bounding box over the foreground pixels. An
// empty mask yields a zero box.
func (m Mask) Bounds() Box {
	minX, minY := m.W, m.H
	maxX, maxY := -1, -1
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if !m.Bits[y*m.W+x] {
				continue
			}
			if x < minX {
				minX = x
			}
			if y < minY {
				minY = y
			}
			if x > maxX {
				maxX = x
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < 0 {
		return Box{}
	}
	return Box{X: float64(minX), Y: float64(minY), W: float64(maxX - minX + 1), H: float64(maxY - minY + 1)}
}

// Clone returns a deep copy of the mask.
func (m Mask) Clone() Mask {
	return Mask{W: m.W, H: m.H, Bits: append([]bool(nil), m.Bits...)}
}

// EncodeRLE run-length encodes the grid in row-major order as flat
// [value, count, value, count, ...] pairs, the dense RLE layout used by
// the platform's wire schema. An empty mask encodes to an empty slice.
func (m Mask) EncodeRLE() []int {
	if len(m.Bits) == 0 {
		return nil
	}
	var rle []int
	cur := 0
	if m.Bits[0] {
		cur = 1
	}
	count := 0
	for _, b := range m.Bits {
		v := 0
		if b {
			v = 1
		}
		if v == cur {
			count++
			continue
		}
		rle = append(rle, cur, count)
		cur, count = v, 1
	}
	rle = append(rle, cur, count)
	return rle
}

// DecodeRLE expands dense [value, count, ...] pairs into a mask of the
// given dimensions. The decoded length must match w*h exactly.
func DecodeRLE(rle []int, w, h int) (Mask, error) {
	if len(rle)%2 != 0 {
		return Mask{}, &errdefs.GeometryError{Reason: "dense RLE must be a flat list of value/count pairs"}
	}
	m := NewMask(w, h)
	pos := 0
	for i := 0; i < len(rle); i += 2 {
		value, count := rle[i], rle[i+1]
		if value != 0 && value != 1 {
			return Mask{}, &errdefs.GeometryError{Reason: fmt.Sprintf("dense RLE value %d out of range", value)}
		}
		if count < 0 || pos+count > len(m.Bits) {
			return Mask{}, &errdefs.GeometryError{Reason: "dense RLE run exceeds mask size"}
		}
		if value == 1 {
			for j := 0; j < count; j++ {
				m.Bits[pos+j] = true
			}
		}
		pos += count
	}
	if pos != len(m.Bits) {
		return Mask{}, &errdefs.GeometryError{
			Reason: fmt.Sprintf("dense RLE decodes to %d pixels, want %d", pos, len(m.Bits)),
		}
	}
	return m, nil
}

// Skeleton is a set of named keypoints. The edge list connecting the
// keypoints belongs to the skeleton's class template in the registry, not
// to the instance.
type Skeleton struct {
	Nodes []SkeletonNode `json:"nodes"`
}

// SkeletonNode is one named keypoint with a visibility flag.
type SkeletonNode struct {
	Name     string `json:"name"`
	Point    Point  `json:"point"`
	Occluded bool   `json:"occluded"`
}

// Validate checks that the skeleton has at least one uniquely named node.
func (s Skeleton) Validate() error {
	if len(s.Nodes) == 0 {
		return &errdefs.GeometryError{Reason: "skeleton needs at least one node"}
	}
	seen := make(map[string]struct{}, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.Name == "" {
			return &errdefs.GeometryError{Reason: "skeleton node without a name"}
		}
		if _, dup := seen[n.Name]; dup {
			return &errdefs.GeometryError{Reason: "duplicate skeleton node " + n.Name}
		}
		seen[n.Name] = struct{}{}
	}
	return nil
}

// Bounds returns the tight bounding box over all keypoints.
func (s Skeleton) Bounds() Box {
	if len(s.Nodes) == 0 {
		return Box{}
	}
	pts := make([]Point, len(s.Nodes))
	for i, n := range s.Nodes {
		pts[i] = n.Point
	}
	return boundsOf(pts)
}
