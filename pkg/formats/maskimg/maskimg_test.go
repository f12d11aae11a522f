package maskimg

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvdata/annoconv/pkg/annotation"
	"github.com/openvdata/annoconv/pkg/errdefs"
	"github.com/openvdata/annoconv/pkg/formats"
	"github.com/openvdata/annoconv/pkg/geometry"
)

const registryYAML = `
labels:
  - name: car
    kind: bounding_box
  - name: road
    kind: polygon
  - name: dirt
    kind: mask
  - name: lane
    kind: polyline
`

func testRegistry(t *testing.T) *annotation.Registry {
	t.Helper()
	reg, err := annotation.ParseRegistry([]byte(registryYAML))
	require.NoError(t, err)
	return reg
}

func decodePNG(t *testing.T, data []byte) *image.NRGBA {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	out := image.NewNRGBA(img.Bounds())
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

func TestExportIndexPalette(t *testing.T) {
	m := geometry.NewMask(4, 4)
	m.Set(0, 0, true)
	m.Set(1, 0, true)
	set := &annotation.Set{
		Item: annotation.Item{Name: "a.jpg", Width: 4, Height: 4},
		Annotations: []annotation.Annotation{
			{ID: uuid.New(), Label: "dirt", Mask: &m},
		},
	}
	res, err := (&Exporter{}).Export(set, testRegistry(t))
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	assert.Equal(t, "masks/a.png", res.Files[0].Path)
	assert.Equal(t, "class_mapping.csv", res.Files[1].Path)

	// Sorted labels: car=1, dirt=2, lane=3, road=4.
	assert.Equal(t,
		"class,value\n__background__,0\ncar,1\ndirt,2\nlane,3\nroad,4\n",
		string(res.Files[1].Data))

	img := decodePNG(t, res.Files[0].Data)
	assert.Equal(t, uint8(2), img.NRGBAAt(0, 0).R)
	assert.Equal(t, uint8(2), img.NRGBAAt(1, 0).R)
	assert.Equal(t, uint8(0), img.NRGBAAt(2, 2).R)
}

func TestExportPaintsBoxesAndPolygons(t *testing.T) {
	set := &annotation.Set{
		Item: annotation.Item{Name: "a.jpg", Width: 8, Height: 8},
		Annotations: []annotation.Annotation{
			{ID: uuid.New(), Label: "car", Box: &geometry.Box{X: 0, Y: 0, W: 4, H: 4}},
			{
				ID: uuid.New(), Label: "road",
				Polygon: &geometry.Polygon{Outer: []geometry.Point{
					{X: 2, Y: 2}, {X: 8, Y: 2}, {X: 8, Y: 8}, {X: 2, Y: 8},
				}},
			},
		},
	}
	res, err := (&Exporter{}).Export(set, testRegistry(t))
	require.NoError(t, err)

	img := decodePNG(t, res.Files[0].Data)
	assert.Equal(t, uint8(1), img.NRGBAAt(0, 0).R, "car only")
	assert.Equal(t, uint8(4), img.NRGBAAt(3, 3).R, "road paints over car")
	assert.Equal(t, uint8(4), img.NRGBAAt(7, 7).R)
	assert.Equal(t, uint8(0), img.NRGBAAt(7, 0).R)
}

func TestExportSkipsLineGeometry(t *testing.T) {
	set := &annotation.Set{
		Item: annotation.Item{Name: "a.jpg", Width: 4, Height: 4},
		Annotations: []annotation.Annotation{
			{
				ID: uuid.New(), Label: "lane",
				Polyline: &geometry.Polyline{Points: []geometry.Point{{X: 0, Y: 0}, {X: 4, Y: 4}}},
			},
		},
	}
	res, err := (&Exporter{}).Export(set, testRegistry(t))
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, formats.WarnSkipped, res.Warnings[0].Kind)
}

func TestExportRejectsMismatchedMask(t *testing.T) {
	m := geometry.NewMask(2, 2)
	set := &annotation.Set{
		Item: annotation.Item{Name: "a.jpg", Width: 4, Height: 4},
		Annotations: []annotation.Annotation{
			{ID: uuid.New(), Label: "dirt", Mask: &m},
		},
	}
	_, err := (&Exporter{}).Export(set, testRegistry(t))
	assert.Error(t, err)
}

func TestExportRejectsOversizedPalettes(t *testing.T) {
	classes := make([]annotation.Class, 2000)
	for i := range classes {
		classes[i] = annotation.Class{Name: fmt.Sprintf("c%04d", i), Kind: annotation.KindPolygon}
	}
	reg, err := annotation.NewRegistry(classes)
	require.NoError(t, err)
	set := &annotation.Set{Item: annotation.Item{Name: "a.jpg", Width: 2, Height: 2}}

	var fe *errdefs.FormatError
	for _, mode := range []string{ModeIndex, ModeGrey, ModeRGB} {
		_, err := (&Exporter{Mode: mode}).Export(set, reg)
		assert.ErrorAs(t, err, &fe, mode)
	}
}

func TestExportUnknownMode(t *testing.T) {
	set := &annotation.Set{Item: annotation.Item{Name: "a.jpg", Width: 2, Height: 2}}
	_, err := (&Exporter{Mode: "sepia"}).Export(set, testRegistry(t))
	assert.Error(t, err)
}

func roundTripPalette(t *testing.T, mode string) {
	t.Helper()
	m := geometry.NewMask(6, 6)
	for x := 1; x < 4; x++ {
		for y := 1; y < 4; y++ {
			m.Set(x, y, true)
		}
	}
	set := &annotation.Set{
		Item: annotation.Item{Name: "a.jpg", Width: 6, Height: 6},
		Annotations: []annotation.Annotation{
			{ID: uuid.New(), Label: "dirt", Mask: &m},
		},
	}
	reg := testRegistry(t)
	res, err := (&Exporter{Mode: mode}).Export(set, reg)
	require.NoError(t, err)

	imp := &Importer{Mode: mode, ItemName: "a.jpg"}
	back, err := imp.Import(res.Files[0].Data, reg)
	require.NoError(t, err)

	require.Len(t, back.Annotations, 1)
	assert.Equal(t, "dirt", back.Annotations[0].Label)
	assert.Equal(t, m.Bits, back.Annotations[0].Mask.Bits)
}

func TestImportRoundTripIndex(t *testing.T) { roundTripPalette(t, ModeIndex) }
func TestImportRoundTripGrey(t *testing.T)  { roundTripPalette(t, ModeGrey) }
func TestImportRoundTripRGB(t *testing.T)   { roundTripPalette(t, ModeRGB) }

func TestImportRejectsForeignPixel(t *testing.T) {
	// A pixel value that no class maps to under the index palette.
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, image.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	imp := &Importer{}
	_, err := imp.Import(buf.Bytes(), testRegistry(t))
	assert.Error(t, err)
}
