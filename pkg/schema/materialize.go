package schema

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/openvdata/annoconv/pkg/annotation"
	"github.com/openvdata/annoconv/pkg/geometry"
)

// Materialize builds the immutable annotation set for a validated record,
// resolving labels against the registry. The record's declared geometry
// kind must match the registered class kind.
func Materialize(rec *Record, reg *annotation.Registry) (*annotation.Set, error) {
	set := &annotation.Set{
		Item: annotation.Item{
			Name:       rec.Item.Name,
			Path:       rec.Item.Path,
			Width:      rec.Item.Width,
			Height:     rec.Item.Height,
			FrameCount: rec.Item.FrameCount,
		},
	}
	for i, data := range rec.Annotations {
		a, err := materializeAnnotation(&data, reg)
		if err != nil {
			return nil, fmt.Errorf("annotation %d: %w", i, err)
		}
		set.Annotations = append(set.Annotations, *a)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

func materializeAnnotation(data *AnnotationData, reg *annotation.Registry) (*annotation.Annotation, error) {
	class, err := reg.Lookup(data.Name)
	if err != nil {
		return nil, err
	}
	if err := class.ValidateAttributes(data.Properties); err != nil {
		return nil, err
	}

	a := &annotation.Annotation{
		Label:      data.Name,
		Confidence: data.Confidence,
		Frame:      data.Frame,
	}
	if len(data.Properties) > 0 {
		a.Attributes = make(map[string]any, len(data.Properties))
		for k, v := range data.Properties {
			a.Attributes[k] = v
		}
	}
	if data.ID != "" {
		id, err := uuid.Parse(data.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid annotation id %q: %w", data.ID, err)
		}
		a.ID = id
	} else {
		a.ID = uuid.New()
	}
	if data.TrackID != "" {
		tid, err := uuid.Parse(data.TrackID)
		if err != nil {
			return nil, fmt.Errorf("invalid track id %q: %w", data.TrackID, err)
		}
		a.TrackID = &tid
	}

	switch {
	case data.BoundingBox != nil:
		b := geometry.Box(*data.BoundingBox)
		a.Box = &b
	case data.Polygon != nil:
		p := geometry.Polygon{Outer: toPoints(data.Polygon.Paths[0])}
		for _, hole := range data.Polygon.Paths[1:] {
			p.Holes = append(p.Holes, toPoints(hole))
		}
		norm := p.Normalize()
		a.Polygon = &norm
	case data.Polyline != nil:
		a.Polyline = &geometry.Polyline{Points: toPoints(data.Polyline.Path)}
	case data.Mask != nil:
		m, err := geometry.DecodeRLE(data.Mask.DenseRLE, data.Mask.Width, data.Mask.Height)
		if err != nil {
			return nil, err
		}
		a.Mask = &m
	case data.Skeleton != nil:
		sk := &geometry.Skeleton{}
		for _, n := range data.Skeleton.Nodes {
			sk.Nodes = append(sk.Nodes, geometry.SkeletonNode{
				Name:     n.Name,
				Point:    geometry.Point{X: n.X, Y: n.Y},
				Occluded: n.Occluded,
			})
		}
		a.Skeleton = sk
	case data.Tag != nil:
		a.Tag = true
	default:
		return nil, fmt.Errorf("annotation %q carries no geometry payload", data.Name)
	}

	if kind := a.Kind(); kind != class.Kind {
		return nil, fmt.Errorf("label %q is registered as %s but annotation carries %s", data.Name, class.Kind, kind)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// FromSet builds the wire record for an annotation set. It is the inverse
// of Materialize up to ring winding normalization.
func FromSet(set *annotation.Set) *Record {
	rec := &Record{
		Version: Version2,
		Item: ItemData{
			Name:       set.Item.Name,
			Path:       set.Item.Path,
			Width:      set.Item.Width,
			Height:     set.Item.Height,
			FrameCount: set.Item.FrameCount,
		},
		Annotations: make([]AnnotationData, 0, len(set.Annotations)),
	}
	for i := range set.Annotations {
		a := &set.Annotations[i]
		data := AnnotationData{
			ID:         a.ID.String(),
			Name:       a.Label,
			Confidence: a.Confidence,
			Frame:      a.Frame,
		}
		if len(a.Attributes) > 0 {
			data.Properties = make(map[string]any, len(a.Attributes))
			for k, v := range a.Attributes {
				data.Properties[k] = v
			}
		}
		if a.TrackID != nil {
			data.TrackID = a.TrackID.String()
		}
		switch a.Kind() {
		case annotation.KindBox:
			b := BoxData(*a.Box)
			data.BoundingBox = &b
		case annotation.KindPolygon:
			paths := [][]PointData{fromPoints(a.Polygon.Outer)}
			for _, hole := range a.Polygon.Holes {
				paths = append(paths, fromPoints(hole))
			}
			data.Polygon = &PolygonData{Paths: paths}
		case annotation.KindPolyline:
			data.Polyline = &PolylineData{Path: fromPoints(a.Polyline.Points)}
		case annotation.KindMask:
			data.Mask = &MaskData{
				Width:    a.Mask.W,
				Height:   a.Mask.H,
				DenseRLE: a.Mask.EncodeRLE(),
			}
		case annotation.KindSkeleton:
			sk := &SkeletonData{}
			for _, n := range a.Skeleton.Nodes {
				sk.Nodes = append(sk.Nodes, SkeletonNodeData{
					Name: n.Name, X: n.Point.X, Y: n.Point.Y, Occluded: n.Occluded,
				})
			}
			data.Skeleton = sk
		case annotation.KindTag:
			data.Tag = &TagData{}
		}
		rec.Annotations = append(rec.Annotations, data)
	}
	return rec
}

func toPoints(pts []PointData) []geometry.Point {
	out := make([]geometry.Point, len(pts))
	for i, p := range pts {
		out[i] = geometry.Point{X: p.X, Y: p.Y}
	}
	return out
}

func fromPoints(pts []geometry.Point) []PointData {
	out := make([]PointData, len(pts))
	for i, p := range pts {
		out[i] = PointData{X: p.X, Y: p.Y}
	}
	return out
}
