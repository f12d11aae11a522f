// Package pascalvoc converts annotation sets to and from Pascal VOC XML
// files, one document per image.
//
// VOC objects carry a class name and a pixel-aligned bounding box, so
// every other geometry kind narrows to its tight bounding box with a
// warning, whole-item tags are skipped, and attributes are dropped. The
// importer accepts any well-formed VOC document and yields box
// annotations.
package pascalvoc

import (
	"encoding/xml"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/openvdata/annoconv/pkg/annotation"
	"github.com/openvdata/annoconv/pkg/errdefs"
	"github.com/openvdata/annoconv/pkg/formats"
	"github.com/openvdata/annoconv/pkg/geometry"
)

// FormatName is the registry name of the Pascal VOC format.
const FormatName = "pascal_voc"

func init() {
	formats.RegisterExporter(FormatName, func() formats.Exporter { return &Exporter{} })
	formats.RegisterImporter(FormatName, func() formats.Importer { return &Importer{} })
}

type vocDocument struct {
	XMLName  xml.Name    `xml:"annotation"`
	Folder   string      `xml:"folder"`
	Filename string      `xml:"filename"`
	Path     string      `xml:"path,omitempty"`
	Size     vocSize     `xml:"size"`
	Objects  []vocObject `xml:"object"`
}

type vocSize struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth"`
}

type vocObject struct {
	Name      string `xml:"name"`
	Pose      string `xml:"pose"`
	Truncated int    `xml:"truncated"`
	Difficult int    `xml:"difficult"`
	Bndbox    vocBox `xml:"bndbox"`
}

type vocBox struct {
	Xmin float64 `xml:"xmin"`
	Ymin float64 `xml:"ymin"`
	Xmax float64 `xml:"xmax"`
	Ymax float64 `xml:"ymax"`
}

// Exporter writes one VOC XML document per image.
type Exporter struct{}

// Name implements formats.Exporter.
func (e *Exporter) Name() string { return FormatName }

// Export narrows every annotation to a VOC object with a bounding box.
func (e *Exporter) Export(set *annotation.Set, reg *annotation.Registry) (*formats.Result, error) {
	if set.Item.FrameCount > 0 {
		return nil, &errdefs.FormatError{Format: FormatName, Reason: "video items are not representable"}
	}

	doc := vocDocument{
		Filename: set.Item.Name,
		Path:     set.Item.Path,
		Size:     vocSize{Width: set.Item.Width, Height: set.Item.Height, Depth: 3},
	}

	var warnings []formats.Warning
	for i := range set.Annotations {
		a := &set.Annotations[i]
		if _, err := reg.Lookup(a.Label); err != nil {
			return nil, err
		}
		if a.Frame != nil {
			return nil, &errdefs.FormatError{Format: FormatName, Reason: "per-frame annotations are not representable"}
		}
		if a.Kind() == annotation.KindTag {
			warnings = append(warnings, formats.Warning{
				Kind: formats.WarnSkipped, AnnotationID: a.ID.String(),
				Message: fmt.Sprintf("tag %q has no VOC representation", a.Label),
			})
			continue
		}
		if a.Kind() != annotation.KindBox {
			warnings = append(warnings, formats.Warning{
				Kind: formats.WarnNarrowed, AnnotationID: a.ID.String(),
				Message: fmt.Sprintf("%s narrowed to its bounding box", a.Kind()),
			})
		}
		if len(a.Attributes) > 0 {
			warnings = append(warnings, formats.Warning{
				Kind: formats.WarnAttributeDropped, AnnotationID: a.ID.String(),
				Message: fmt.Sprintf("%d attribute(s) are not representable in VOC", len(a.Attributes)),
			})
		}

		b := a.Bounds()
		doc.Objects = append(doc.Objects, vocObject{
			Name: a.Label,
			Bndbox: vocBox{
				Xmin: b.X,
				Ymin: b.Y,
				Xmax: b.X + b.W,
				Ymax: b.Y + b.H,
			},
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding VOC document: %w", err)
	}
	out = append(out, '\n')

	return &formats.Result{
		Files:    []formats.File{{Path: stemOf(set.Item.Name) + ".xml", Data: out}},
		Warnings: warnings,
	}, nil
}

// Importer reads a single VOC XML document.
type Importer struct{}

// Name implements formats.Importer.
func (im *Importer) Name() string { return FormatName }

// Import parses VOC objects back into box annotations.
func (im *Importer) Import(data []byte, reg *annotation.Registry) (*annotation.Set, error) {
	var doc vocDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &errdefs.FormatError{Format: FormatName, Reason: fmt.Sprintf("parsing XML: %v", err)}
	}
	if doc.Filename == "" {
		return nil, &errdefs.FormatError{Format: FormatName, Reason: "document has no filename"}
	}

	set := &annotation.Set{
		Item: annotation.Item{
			Name:   doc.Filename,
			Path:   doc.Path,
			Width:  doc.Size.Width,
			Height: doc.Size.Height,
		},
	}
	for i, obj := range doc.Objects {
		if _, err := reg.Lookup(obj.Name); err != nil {
			return nil, err
		}
		w := obj.Bndbox.Xmax - obj.Bndbox.Xmin
		h := obj.Bndbox.Ymax - obj.Bndbox.Ymin
		if w < 0 || h < 0 || math.IsNaN(w) || math.IsNaN(h) {
			return nil, &errdefs.FormatError{
				Format: FormatName,
				Reason: fmt.Sprintf("object %d: degenerate bndbox", i),
			}
		}
		set.Annotations = append(set.Annotations, annotation.Annotation{
			ID:    uuid.New(),
			Label: obj.Name,
			Box:   &geometry.Box{X: obj.Bndbox.Xmin, Y: obj.Bndbox.Ymin, W: w, H: h},
		})
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

func stemOf(name string) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		return name[:idx]
	}
	return name
}
