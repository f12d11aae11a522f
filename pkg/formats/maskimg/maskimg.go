// Package maskimg renders annotation sets as semantic mask images: one
// raster per image whose pixel values identify the class painted there,
// plus a class_mapping.csv relating names to values.
//
// Three palettes are supported. "index" stores the raw class value per
// pixel, "grey" spreads class values across the 8-bit range so the mask
// is visible to the eye, and "rgb" assigns each class a distinct hue.
// All palettes are invertible, so the importer recovers per-class masks
// from any of them. Class values follow the registry's sorted label
// order with 0 reserved for background.
//
// Boxes, polygons, and masks paint into the raster; polylines, skeletons,
// and tags have no area and are skipped with a warning. Later annotations
// paint over earlier ones.
package maskimg

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"github.com/openvdata/annoconv/pkg/annotation"
	"github.com/openvdata/annoconv/pkg/errdefs"
	"github.com/openvdata/annoconv/pkg/formats"
	"github.com/openvdata/annoconv/pkg/geometry"
	"github.com/openvdata/annoconv/pkg/raster"
)

// FormatName is the registry name of the semantic mask format.
const FormatName = "mask"

// Palette modes.
const (
	ModeIndex = "index"
	ModeGrey  = "grey"
	ModeRGB   = "rgb"
)

// Codecs for the rendered raster.
const (
	CodecPNG  = "png"
	CodecWebP = "webp"
)

func init() {
	formats.RegisterExporter(FormatName, func() formats.Exporter { return &Exporter{} })
	formats.RegisterImporter(FormatName, func() formats.Importer { return &Importer{} })
}

// Exporter renders a class-value raster per image. The zero value writes
// index-palette PNGs.
type Exporter struct {
	Mode  string
	Codec string
}

// Name implements formats.Exporter.
func (e *Exporter) Name() string { return FormatName }

// Export paints the set's area annotations into a single raster.
func (e *Exporter) Export(set *annotation.Set, reg *annotation.Registry) (*formats.Result, error) {
	mode, codec := e.Mode, e.Codec
	if mode == "" {
		mode = ModeIndex
	}
	if codec == "" {
		codec = CodecPNG
	}
	if mode != ModeIndex && mode != ModeGrey && mode != ModeRGB {
		return nil, &errdefs.FormatError{Format: FormatName, Reason: fmt.Sprintf("unknown palette mode %q", mode)}
	}
	if codec != CodecPNG && codec != CodecWebP {
		return nil, &errdefs.FormatError{Format: FormatName, Reason: fmt.Sprintf("unknown codec %q", codec)}
	}
	if set.Item.FrameCount > 0 {
		return nil, &errdefs.FormatError{Format: FormatName, Reason: "video items are not representable"}
	}
	w, h := set.Item.Width, set.Item.Height
	if w <= 0 || h <= 0 {
		return nil, &errdefs.FormatError{Format: FormatName, Reason: "item dimensions required to size the raster"}
	}
	labels := reg.Labels()
	if (mode == ModeIndex || mode == ModeGrey) && len(labels) > 255 {
		return nil, &errdefs.FormatError{Format: FormatName, Reason: fmt.Sprintf("%s palette holds at most 255 classes", mode)}
	}
	if mode == ModeRGB {
		if err := checkRGBPalette(len(labels)); err != nil {
			return nil, err
		}
	}

	// Class values per pixel, 0 is background.
	classes := make([]int, w*h)
	var warnings []formats.Warning
	for i := range set.Annotations {
		a := &set.Annotations[i]
		idx, err := reg.Index(a.Label)
		if err != nil {
			return nil, err
		}
		if a.Frame != nil {
			return nil, &errdefs.FormatError{Format: FormatName, Reason: "per-frame annotations are not representable"}
		}

		var m geometry.Mask
		switch a.Kind() {
		case annotation.KindMask:
			if a.Mask.W != w || a.Mask.H != h {
				return nil, fmt.Errorf("annotation %s: %w: mask is %dx%d, item is %dx%d",
					a.ID, errdefs.ErrDimensionMismatch, a.Mask.W, a.Mask.H, w, h)
			}
			m = *a.Mask
		case annotation.KindPolygon:
			var err error
			m, err = raster.RasterizeAnnotationMask([]geometry.Polygon{*a.Polygon}, w, h)
			if err != nil {
				return nil, fmt.Errorf("annotation %s: %w", a.ID, err)
			}
		case annotation.KindBox:
			m = boxMask(*a.Box, w, h)
		default:
			warnings = append(warnings, formats.Warning{
				Kind: formats.WarnSkipped, AnnotationID: a.ID.String(),
				Message: fmt.Sprintf("%s has no area to paint", a.Kind()),
			})
			continue
		}
		if len(a.Attributes) > 0 {
			warnings = append(warnings, formats.Warning{
				Kind: formats.WarnAttributeDropped, AnnotationID: a.ID.String(),
				Message: fmt.Sprintf("%d attribute(s) are not representable in a mask raster", len(a.Attributes)),
			})
		}
		for p, on := range m.Bits {
			if on {
				classes[p] = idx + 1
			}
		}
	}

	img := renderPalette(classes, w, h, mode, len(labels))
	var buf bytes.Buffer
	var err error
	ext := ".png"
	switch codec {
	case CodecPNG:
		err = png.Encode(&buf, img)
	case CodecWebP:
		ext = ".webp"
		err = webp.Encode(&buf, img, &webp.Options{Lossless: true})
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s raster: %w", codec, err)
	}

	var mapping bytes.Buffer
	mapping.WriteString("class,value\n")
	mapping.WriteString("__background__,0\n")
	for i, label := range labels {
		fmt.Fprintf(&mapping, "%s,%d\n", label, i+1)
	}

	return &formats.Result{
		Files: []formats.File{
			{Path: "masks/" + stemOf(set.Item.Name) + ext, Data: buf.Bytes()},
			{Path: "class_mapping.csv", Data: mapping.Bytes()},
		},
		Warnings: warnings,
	}, nil
}

// Importer decodes a mask raster back into per-class mask annotations.
// The palette mode must match the one used at export time; the item name
// is optional and defaults to the raster's stem being unknown.
type Importer struct {
	Mode     string
	ItemName string
}

// Name implements formats.Importer.
func (im *Importer) Name() string { return FormatName }

// Import reads one raster and emits one mask annotation per class present.
func (im *Importer) Import(data []byte, reg *annotation.Registry) (*annotation.Set, error) {
	mode := im.Mode
	if mode == "" {
		mode = ModeIndex
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &errdefs.FormatError{Format: FormatName, Reason: fmt.Sprintf("decoding raster: %v", err)}
	}
	img := imaging.Clone(src)
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()

	labels := reg.Labels()
	lookup, err := valueLookup(mode, len(labels))
	if err != nil {
		return nil, err
	}

	masks := make(map[int]*geometry.Mask)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.NRGBAAt(x, y)
			val, ok := lookup(c)
			if !ok {
				return nil, &errdefs.FormatError{
					Format: FormatName,
					Reason: fmt.Sprintf("pixel (%d,%d) has no class under the %s palette", x, y, mode),
				}
			}
			if val == 0 {
				continue
			}
			m, ok := masks[val]
			if !ok {
				nm := geometry.NewMask(w, h)
				m = &nm
				masks[val] = m
			}
			m.Set(x, y, true)
		}
	}

	name := im.ItemName
	if name == "" {
		name = "image"
	}
	set := &annotation.Set{
		Item: annotation.Item{Name: name, Width: w, Height: h},
	}
	for val := 1; val <= len(labels); val++ {
		m, ok := masks[val]
		if !ok {
			continue
		}
		set.Annotations = append(set.Annotations, annotation.Annotation{
			ID:    uuid.New(),
			Label: labels[val-1],
			Mask:  m,
		})
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// renderPalette maps class values to pixels under the chosen palette.
func renderPalette(classes []int, w, h int, mode string, nLabels int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for p, val := range classes {
		x, y := p%w, p/w
		var c color.NRGBA
		switch mode {
		case ModeIndex:
			v := uint8(val)
			c = color.NRGBA{R: v, G: v, B: v, A: 255}
		case ModeGrey:
			v := greyValue(val, nLabels)
			c = color.NRGBA{R: v, G: v, B: v, A: 255}
		case ModeRGB:
			c = classColor(val, nLabels)
		}
		img.SetNRGBA(x, y, c)
	}
	return img
}

// valueLookup builds the inverse of renderPalette for one mode.
func valueLookup(mode string, nLabels int) (func(color.NRGBA) (int, bool), error) {
	switch mode {
	case ModeIndex:
		return func(c color.NRGBA) (int, bool) {
			if c.R != c.G || c.G != c.B || int(c.R) > nLabels {
				return 0, false
			}
			return int(c.R), true
		}, nil
	case ModeGrey:
		byValue := make(map[uint8]int, nLabels+1)
		for val := 0; val <= nLabels; val++ {
			byValue[greyValue(val, nLabels)] = val
		}
		return func(c color.NRGBA) (int, bool) {
			if c.R != c.G || c.G != c.B {
				return 0, false
			}
			val, ok := byValue[c.R]
			return val, ok
		}, nil
	case ModeRGB:
		if err := checkRGBPalette(nLabels); err != nil {
			return nil, err
		}
		byColor := make(map[color.NRGBA]int, nLabels+1)
		for val := 0; val <= nLabels; val++ {
			byColor[classColor(val, nLabels)] = val
		}
		return func(c color.NRGBA) (int, bool) {
			val, ok := byColor[c]
			return val, ok
		}, nil
	default:
		return nil, &errdefs.FormatError{Format: FormatName, Reason: fmt.Sprintf("unknown palette mode %q", mode)}
	}
}

// checkRGBPalette rejects registries whose hue spread quantizes two
// classes to the same 8-bit colour; an invertible palette needs every
// class value to render distinctly.
func checkRGBPalette(nLabels int) error {
	seen := make(map[color.NRGBA]int, nLabels+1)
	for val := 0; val <= nLabels; val++ {
		c := classColor(val, nLabels)
		if prev, dup := seen[c]; dup {
			return &errdefs.FormatError{
				Format: FormatName,
				Reason: fmt.Sprintf("rgb palette collision: class values %d and %d render the same colour", prev, val),
			}
		}
		seen[c] = val
	}
	return nil
}

func greyValue(val, nLabels int) uint8 {
	if val == 0 || nLabels == 0 {
		return 0
	}
	return uint8(val * 255 / nLabels)
}

// classColor spreads class hues evenly around the color wheel. Value 0
// is always black.
func classColor(val, nLabels int) color.NRGBA {
	if val == 0 || nLabels == 0 {
		return color.NRGBA{A: 255}
	}
	hue := float64(val-1) / float64(nLabels)
	r, g, b := hsvToRGB(hue, 1, 1)
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func hsvToRGB(h, s, v float64) (uint8, uint8, uint8) {
	i := int(math.Floor(h * 6))
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)
	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	case 5:
		r, g, b = v, p, q
	}
	return uint8(math.Round(r * 255)), uint8(math.Round(g * 255)), uint8(math.Round(b * 255))
}

// boxMask fills the pixels whose centers fall inside the box, clipped to
// the image. The span rule matches the polygon rasterizer, so a box and
// its four-point polygon paint identically.
func boxMask(b geometry.Box, w, h int) geometry.Mask {
	m := geometry.NewMask(w, h)
	clip := b.Intersect(geometry.Box{W: float64(w), H: float64(h)})
	if clip.Area() == 0 {
		return m
	}
	x0 := int(math.Ceil(clip.X - 0.5))
	x1 := int(math.Ceil(clip.X + clip.W - 0.5))
	y0 := int(math.Ceil(clip.Y - 0.5))
	y1 := int(math.Ceil(clip.Y + clip.H - 0.5))
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			m.Set(x, y, true)
		}
	}
	return m
}

func stemOf(name string) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		return name[:idx]
	}
	return name
}
