// Package annotation defines the in-memory annotation model: a tagged
// union over the geometry kinds plus label, attribute, confidence and
// track metadata, grouped into per-item sets. Values are immutable once
// built; exporters only read them.
package annotation

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/openvdata/annoconv/pkg/errdefs"
	"github.com/openvdata/annoconv/pkg/geometry"
)

// Kind enumerates the geometry payloads an annotation can carry.
type Kind int

const (
	KindUnknown Kind = iota
	KindBox
	KindPolygon
	KindPolyline
	KindMask
	KindSkeleton
	KindTag
)

var kindNames = map[Kind]string{
	KindUnknown:  "unknown",
	KindBox:      "bounding_box",
	KindPolygon:  "polygon",
	KindPolyline: "polyline",
	KindMask:     "mask",
	KindSkeleton: "skeleton",
	KindTag:      "tag",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a wire name back to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s && k != KindUnknown {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown geometry kind %q", s)
}

// Annotation is one labeled geometric observation. Exactly one of the
// geometry pointers is set, or Tag is true for a geometry-less tag.
type Annotation struct {
	// ID is a stable identifier for the annotation, generated when the
	// source record carries none.
	ID uuid.UUID
	// Label is the class label, resolved against the registry.
	Label string

	Box      *geometry.Box
	Polygon  *geometry.Polygon
	Polyline *geometry.Polyline
	Mask     *geometry.Mask
	Skeleton *geometry.Skeleton
	Tag      bool

	// Attributes holds attribute name to value. Values are strings or
	// booleans only.
	Attributes map[string]any
	// Confidence, when present, lies in [0, 1].
	Confidence *float64
	// TrackID groups annotations of the same physical object across
	// frames.
	TrackID *uuid.UUID
	// Frame is the frame or slice index for video and volumetric items.
	Frame *int
}

// Kind derives the geometry kind from the populated payload.
func (a *Annotation) Kind() Kind {
	switch {
	case a.Box != nil:
		return KindBox
	case a.Polygon != nil:
		return KindPolygon
	case a.Polyline != nil:
		return KindPolyline
	case a.Mask != nil:
		return KindMask
	case a.Skeleton != nil:
		return KindSkeleton
	case a.Tag:
		return KindTag
	}
	return KindUnknown
}

// Bounds returns the tight axis-aligned bounding box of the geometry
// payload. Tags have no spatial extent and yield a zero box.
func (a *Annotation) Bounds() geometry.Box {
	switch a.Kind() {
	case KindBox:
		return *a.Box
	case KindPolygon:
		return a.Polygon.Bounds()
	case KindPolyline:
		return a.Polyline.Bounds()
	case KindMask:
		return a.Mask.Bounds()
	case KindSkeleton:
		return a.Skeleton.Bounds()
	}
	return geometry.Box{}
}

// Validate checks the union and metadata invariants and the invariants of
// the carried geometry.
func (a *Annotation) Validate() error {
	n := 0
	if a.Box != nil {
		n++
	}
	if a.Polygon != nil {
		n++
	}
	if a.Polyline != nil {
		n++
	}
	if a.Mask != nil {
		n++
	}
	if a.Skeleton != nil {
		n++
	}
	if a.Tag {
		n++
	}
	if n != 1 {
		return &errdefs.GeometryError{Reason: fmt.Sprintf("annotation must carry exactly one geometry payload, has %d", n)}
	}
	if a.Label == "" {
		return &errdefs.GeometryError{Reason: "annotation without a class label"}
	}
	if a.Confidence != nil && (*a.Confidence < 0 || *a.Confidence > 1) {
		return &errdefs.GeometryError{Reason: fmt.Sprintf("confidence %v outside [0,1]", *a.Confidence)}
	}
	for name, v := range a.Attributes {
		switch v.(type) {
		case string, bool:
		default:
			return &errdefs.GeometryError{Reason: fmt.Sprintf("attribute %q has unsupported value type %T", name, v)}
		}
	}
	switch a.Kind() {
	case KindBox:
		return a.Box.Validate()
	case KindPolygon:
		return a.Polygon.Validate()
	case KindPolyline:
		return a.Polyline.Validate()
	case KindMask:
		return a.Mask.Validate()
	case KindSkeleton:
		return a.Skeleton.Validate()
	}
	return nil
}
