// Package coco converts annotation sets to and from COCO-style instance
// JSON (images/annotations/categories arrays).
//
// Geometry mapping: polygons become segmentation rings (hole rings are not
// representable and are dropped with a narrowing warning); masks are
// vectorized into multi-part segmentations; polylines and skeletons narrow
// to their tight bounding boxes; whole-item tags are skipped. Category ids
// are assigned from the registry's sorted label order starting at 1, so
// repeated exports of the same registry are byte-identical. Video sets are
// not representable and fail with a format incompatibility error.
package coco

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/openvdata/annoconv/pkg/annotation"
	"github.com/openvdata/annoconv/pkg/errdefs"
	"github.com/openvdata/annoconv/pkg/formats"
	"github.com/openvdata/annoconv/pkg/geometry"
	"github.com/openvdata/annoconv/pkg/raster"
)

// FormatName is the registry name of the COCO format.
const FormatName = "coco"

func init() {
	formats.RegisterExporter(FormatName, func() formats.Exporter { return &Exporter{} })
	formats.RegisterImporter(FormatName, func() formats.Importer { return &Importer{} })
}

type cocoFile struct {
	Images      []cocoImage      `json:"images"`
	Annotations []cocoAnnotation `json:"annotations"`
	Categories  []cocoCategory   `json:"categories"`
}

type cocoImage struct {
	ID       int64  `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type cocoAnnotation struct {
	ID           int64       `json:"id"`
	ImageID      int64       `json:"image_id"`
	CategoryID   int64       `json:"category_id"`
	Segmentation [][]float64 `json:"segmentation"`
	Bbox         [4]float64  `json:"bbox"`
	Area         float64     `json:"area"`
	IsCrowd      int         `json:"iscrowd"`
	Score        *float64    `json:"score,omitempty"`
}

type cocoCategory struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`
}

// Exporter writes one COCO instance file per annotation set. Tolerance
// is the Douglas-Peucker tolerance applied when masks are vectorized
// into segmentation rings; zero keeps the traced outlines exact.
type Exporter struct {
	Tolerance float64
}

// Name implements formats.Exporter.
func (e *Exporter) Name() string { return FormatName }

// Export maps the set into a single-image COCO file.
func (e *Exporter) Export(set *annotation.Set, reg *annotation.Registry) (*formats.Result, error) {
	if set.Item.FrameCount > 0 {
		return nil, &errdefs.FormatError{Format: FormatName, Reason: "video items are not representable"}
	}

	out := cocoFile{
		Images: []cocoImage{{
			ID: 1, FileName: set.Item.Name,
			Width: set.Item.Width, Height: set.Item.Height,
		}},
		Annotations: []cocoAnnotation{},
	}
	for i, label := range reg.Labels() {
		out.Categories = append(out.Categories, cocoCategory{
			ID: int64(i + 1), Name: label, Supercategory: "none",
		})
	}

	var warnings []formats.Warning
	nextID := int64(1)
	for i := range set.Annotations {
		a := &set.Annotations[i]
		idx, err := reg.Index(a.Label)
		if err != nil {
			return nil, err
		}
		if a.Frame != nil {
			return nil, &errdefs.FormatError{Format: FormatName, Reason: "per-frame annotations are not representable"}
		}
		if a.Kind() == annotation.KindTag {
			warnings = append(warnings, formats.Warning{
				Kind: formats.WarnSkipped, AnnotationID: a.ID.String(),
				Message: fmt.Sprintf("tag %q has no COCO representation", a.Label),
			})
			continue
		}

		ca := cocoAnnotation{
			ID:           nextID,
			ImageID:      1,
			CategoryID:   int64(idx + 1),
			Segmentation: [][]float64{},
			Score:        a.Confidence,
		}
		nextID++

		switch a.Kind() {
		case annotation.KindBox:
			ca.Bbox = toBbox(*a.Box)
			ca.Area = a.Box.Area()
		case annotation.KindPolygon:
			ca.Segmentation = append(ca.Segmentation, flattenRing(a.Polygon.Outer))
			if len(a.Polygon.Holes) > 0 {
				warnings = append(warnings, formats.Warning{
					Kind: formats.WarnNarrowed, AnnotationID: a.ID.String(),
					Message: fmt.Sprintf("%d polygon hole(s) dropped: COCO segmentations cannot carry holes", len(a.Polygon.Holes)),
				})
			}
			ca.Bbox = toBbox(a.Polygon.Bounds())
			ca.Area = a.Polygon.Area()
		case annotation.KindMask:
			polys, err := raster.MaskToPolygons(*a.Mask, e.Tolerance)
			if err != nil {
				return nil, err
			}
			var bounds geometry.Box
			for _, p := range polys {
				ca.Segmentation = append(ca.Segmentation, flattenRing(p.Outer))
				bounds = bounds.Union(p.Bounds())
				if len(p.Holes) > 0 {
					warnings = append(warnings, formats.Warning{
						Kind: formats.WarnNarrowed, AnnotationID: a.ID.String(),
						Message: "mask hole(s) dropped during vectorization for COCO",
					})
				}
			}
			// Bound the emitted segmentations, not the source grid, so the
			// bbox stays consistent under lossy simplification.
			ca.Bbox = toBbox(bounds)
			ca.Area = float64(a.Mask.Count())
		case annotation.KindPolyline:
			ca.Bbox = toBbox(a.Polyline.Bounds())
			ca.Area = 0
			warnings = append(warnings, formats.Warning{
				Kind: formats.WarnNarrowed, AnnotationID: a.ID.String(),
				Message: "polyline narrowed to its bounding box",
			})
		case annotation.KindSkeleton:
			ca.Bbox = toBbox(a.Skeleton.Bounds())
			ca.Area = 0
			warnings = append(warnings, formats.Warning{
				Kind: formats.WarnNarrowed, AnnotationID: a.ID.String(),
				Message: "skeleton narrowed to its bounding box",
			})
		}

		if len(a.Attributes) > 0 {
			warnings = append(warnings, formats.Warning{
				Kind: formats.WarnAttributeDropped, AnnotationID: a.ID.String(),
				Message: fmt.Sprintf("attributes %v are not representable in COCO", attributeNames(a.Attributes)),
			})
		}
		out.Annotations = append(out.Annotations, ca)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal coco file: %w", err)
	}
	data = append(data, '\n')
	return &formats.Result{
		Files:    []formats.File{{Path: stemOf(set.Item.Name) + ".json", Data: data}},
		Warnings: warnings,
	}, nil
}

// Importer reads a single-image COCO instance file.
type Importer struct{}

// Name implements formats.Importer.
func (i *Importer) Name() string { return FormatName }

// Import rebuilds an annotation set from a COCO file. Single-ring
// segmentations come back as polygons, multi-part segmentations are
// rasterized into one mask, and segmentation-less entries become boxes.
func (i *Importer) Import(data []byte, reg *annotation.Registry) (*annotation.Set, error) {
	var in cocoFile
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, &errdefs.FormatError{Format: FormatName, Reason: err.Error()}
	}
	if len(in.Images) != 1 {
		return nil, &errdefs.FormatError{
			Format: FormatName,
			Reason: fmt.Sprintf("expected exactly one image entry, got %d", len(in.Images)),
		}
	}
	img := in.Images[0]
	names := make(map[int64]string, len(in.Categories))
	for _, c := range in.Categories {
		names[c.ID] = c.Name
	}

	set := &annotation.Set{
		Item: annotation.Item{Name: img.FileName, Width: img.Width, Height: img.Height},
	}
	for _, ca := range in.Annotations {
		label, ok := names[ca.CategoryID]
		if !ok {
			return nil, &errdefs.FormatError{
				Format: FormatName,
				Reason: fmt.Sprintf("annotation %d references unknown category %d", ca.ID, ca.CategoryID),
			}
		}
		if _, err := reg.Lookup(label); err != nil {
			return nil, err
		}
		a := annotation.Annotation{ID: uuid.New(), Label: label, Confidence: ca.Score}
		switch {
		case len(ca.Segmentation) == 1:
			ring, err := unflattenRing(ca.Segmentation[0])
			if err != nil {
				return nil, err
			}
			p := geometry.Polygon{Outer: ring}.Normalize()
			a.Polygon = &p
		case len(ca.Segmentation) > 1:
			m := geometry.NewMask(img.Width, img.Height)
			for _, flat := range ca.Segmentation {
				ring, err := unflattenRing(flat)
				if err != nil {
					return nil, err
				}
				part, err := raster.PolygonToMask(geometry.Polygon{Outer: ring}, img.Width, img.Height)
				if err != nil {
					return nil, err
				}
				m, err = raster.Merge(m, part)
				if err != nil {
					return nil, err
				}
			}
			a.Mask = &m
		default:
			b := geometry.Box{X: ca.Bbox[0], Y: ca.Bbox[1], W: ca.Bbox[2], H: ca.Bbox[3]}
			a.Box = &b
		}
		set.Annotations = append(set.Annotations, a)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

func toBbox(b geometry.Box) [4]float64 {
	return [4]float64{b.X, b.Y, b.W, b.H}
}

func flattenRing(ring []geometry.Point) []float64 {
	flat := make([]float64, 0, 2*len(ring))
	for _, p := range ring {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}

func unflattenRing(flat []float64) ([]geometry.Point, error) {
	if len(flat)%2 != 0 || len(flat) < 6 {
		return nil, &errdefs.FormatError{
			Format: FormatName,
			Reason: fmt.Sprintf("segmentation ring of %d values is not a valid point list", len(flat)),
		}
	}
	pts := make([]geometry.Point, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		pts = append(pts, geometry.Point{X: flat[i], Y: flat[i+1]})
	}
	return pts, nil
}

func attributeNames(attrs map[string]any) []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func stemOf(name string) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		return name[:idx]
	}
	return name
}
