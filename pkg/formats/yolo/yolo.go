// Package yolo converts annotation sets to and from YOLO-style label
// files: one text file per image whose lines read
//
//	<class-index> <cx> <cy> <w> <h>
//
// with coordinates normalized to the image dimensions, plus an obj.names
// file listing the class names.
//
// YOLO carries boxes only, so every other geometry kind narrows to its
// tight axis-aligned bounding box with a narrowing warning; whole-item
// tags are skipped and attributes are dropped, both with warnings. Class
// indices follow the registry's sorted label order, which makes repeated
// exports byte-identical. Video sets are not representable.
package yolo

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/openvdata/annoconv/pkg/annotation"
	"github.com/openvdata/annoconv/pkg/errdefs"
	"github.com/openvdata/annoconv/pkg/formats"
	"github.com/openvdata/annoconv/pkg/geometry"
)

// FormatName is the registry name of the YOLO format.
const FormatName = "yolo"

func init() {
	formats.RegisterExporter(FormatName, func() formats.Exporter { return &Exporter{} })
	formats.RegisterImporter(FormatName, func() formats.Importer { return &Importer{} })
}

// Exporter writes YOLO label files.
type Exporter struct{}

// Name implements formats.Exporter.
func (e *Exporter) Name() string { return FormatName }

// Export narrows every annotation to a normalized box line.
func (e *Exporter) Export(set *annotation.Set, reg *annotation.Registry) (*formats.Result, error) {
	if set.Item.FrameCount > 0 {
		return nil, &errdefs.FormatError{Format: FormatName, Reason: "video items are not representable"}
	}
	if set.Item.Width <= 0 || set.Item.Height <= 0 {
		return nil, &errdefs.FormatError{Format: FormatName, Reason: "item dimensions required for normalized coordinates"}
	}

	var warnings []formats.Warning
	var buf bytes.Buffer
	fw := float64(set.Item.Width)
	fh := float64(set.Item.Height)
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
				Message: fmt.Sprintf("tag %q has no YOLO representation", a.Label),
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
				Message: fmt.Sprintf("%d attribute(s) are not representable in YOLO", len(a.Attributes)),
			})
		}

		b := a.Bounds()
		cx := (b.X + b.W/2) / fw
		cy := (b.Y + b.H/2) / fh
		fmt.Fprintf(&buf, "%d %.6f %.6f %.6f %.6f\n", idx, cx, cy, b.W/fw, b.H/fh)
	}

	var names bytes.Buffer
	for _, label := range reg.Labels() {
		names.WriteString(label)
		names.WriteByte('\n')
	}

	return &formats.Result{
		Files: []formats.File{
			{Path: stemOf(set.Item.Name) + ".txt", Data: buf.Bytes()},
			{Path: "obj.names", Data: names.Bytes()},
		},
		Warnings: warnings,
	}, nil
}

// Importer reads one YOLO label file. YOLO lines carry normalized
// coordinates only, so the image dimensions and item name must be
// supplied up front; class indices resolve through the registry's sorted
// label order, mirroring the exporter.
type Importer struct {
	ItemName string
	Width    int
	Height   int
}

// Name implements formats.Importer.
func (im *Importer) Name() string { return FormatName }

// Import parses label lines back into box annotations.
func (im *Importer) Import(data []byte, reg *annotation.Registry) (*annotation.Set, error) {
	if im.Width <= 0 || im.Height <= 0 {
		return nil, &errdefs.FormatError{Format: FormatName, Reason: "importer needs the image dimensions to denormalize coordinates"}
	}
	name := im.ItemName
	if name == "" {
		name = "image"
	}
	labels := reg.Labels()
	set := &annotation.Set{
		Item: annotation.Item{Name: name, Width: im.Width, Height: im.Height},
	}

	fw, fh := float64(im.Width), float64(im.Height)
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 5 {
			return nil, &errdefs.FormatError{
				Format: FormatName,
				Reason: fmt.Sprintf("line %d: expected 5 fields, got %d", line, len(fields)),
			}
		}
		idx, err := strconv.Atoi(fields[0])
		if err != nil || idx < 0 || idx >= len(labels) {
			return nil, &errdefs.FormatError{
				Format: FormatName,
				Reason: fmt.Sprintf("line %d: class index %q outside the registry", line, fields[0]),
			}
		}
		vals := make([]float64, 4)
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, &errdefs.FormatError{
					Format: FormatName,
					Reason: fmt.Sprintf("line %d: bad coordinate %q", line, f),
				}
			}
			vals[i] = v
		}
		w := vals[2] * fw
		h := vals[3] * fh
		img := geometry.Box{W: fw, H: fh}
		if !img.Contains(geometry.Point{X: vals[0] * fw, Y: vals[1] * fh}) {
			return nil, &errdefs.FormatError{
				Format: FormatName,
				Reason: fmt.Sprintf("line %d: box center outside the image", line),
			}
		}
		b := geometry.Box{X: vals[0]*fw - w/2, Y: vals[1]*fh - h/2, W: w, H: h}
		set.Annotations = append(set.Annotations, annotation.Annotation{
			ID:    uuid.New(),
			Label: labels[idx],
			Box:   &b,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, &errdefs.FormatError{Format: FormatName, Reason: err.Error()}
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
