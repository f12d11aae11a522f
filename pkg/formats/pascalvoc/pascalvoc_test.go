package pascalvoc

import (
	"encoding/xml"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvdata/annoconv/pkg/annotation"
	"github.com/openvdata/annoconv/pkg/formats"
	"github.com/openvdata/annoconv/pkg/geometry"
)

const registryYAML = `
labels:
  - name: car
    kind: bounding_box
  - name: road
    kind: polygon
  - name: night
    kind: tag
`

func testRegistry(t *testing.T) *annotation.Registry {
	t.Helper()
	reg, err := annotation.ParseRegistry([]byte(registryYAML))
	require.NoError(t, err)
	return reg
}

func TestExport(t *testing.T) {
	set := &annotation.Set{
		Item: annotation.Item{Name: "street.jpg", Path: "/ds/street.jpg", Width: 640, Height: 480},
		Annotations: []annotation.Annotation{
			{ID: uuid.New(), Label: "car", Box: &geometry.Box{X: 10, Y: 20, W: 100, H: 50}},
		},
	}
	res, err := (&Exporter{}).Export(set, testRegistry(t))
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "street.xml", res.Files[0].Path)

	var doc vocDocument
	require.NoError(t, xml.Unmarshal(res.Files[0].Data, &doc))
	assert.Equal(t, "street.jpg", doc.Filename)
	assert.Equal(t, 640, doc.Size.Width)
	require.Len(t, doc.Objects, 1)
	assert.Equal(t, "car", doc.Objects[0].Name)
	assert.Equal(t, vocBox{Xmin: 10, Ymin: 20, Xmax: 110, Ymax: 70}, doc.Objects[0].Bndbox)
}

func TestExportNarrowsPolygonAndSkipsTag(t *testing.T) {
	set := &annotation.Set{
		Item: annotation.Item{Name: "a.jpg", Width: 100, Height: 100},
		Annotations: []annotation.Annotation{
			{
				ID: uuid.New(), Label: "road",
				Polygon: &geometry.Polygon{Outer: []geometry.Point{
					{X: 5, Y: 5}, {X: 50, Y: 5}, {X: 50, Y: 60}, {X: 5, Y: 60},
				}},
			},
			{ID: uuid.New(), Label: "night", Tag: true},
		},
	}
	res, err := (&Exporter{}).Export(set, testRegistry(t))
	require.NoError(t, err)

	var doc vocDocument
	require.NoError(t, xml.Unmarshal(res.Files[0].Data, &doc))
	require.Len(t, doc.Objects, 1, "tag emits no object")
	assert.Equal(t, vocBox{Xmin: 5, Ymin: 5, Xmax: 50, Ymax: 60}, doc.Objects[0].Bndbox)

	kinds := make(map[formats.WarningKind]int)
	for _, w := range res.Warnings {
		kinds[w.Kind]++
	}
	assert.Equal(t, 1, kinds[formats.WarnNarrowed])
	assert.Equal(t, 1, kinds[formats.WarnSkipped])
}

func TestExportVideoRejected(t *testing.T) {
	set := &annotation.Set{Item: annotation.Item{Name: "v.mp4", Width: 10, Height: 10, FrameCount: 3}}
	_, err := (&Exporter{}).Export(set, testRegistry(t))
	assert.Error(t, err)
}

func TestImport(t *testing.T) {
	doc := `<annotation>
	  <filename>street.jpg</filename>
	  <size><width>640</width><height>480</height><depth>3</depth></size>
	  <object>
	    <name>car</name>
	    <bndbox><xmin>10</xmin><ymin>20</ymin><xmax>110</xmax><ymax>70</ymax></bndbox>
	  </object>
	</annotation>`
	set, err := (&Importer{}).Import([]byte(doc), testRegistry(t))
	require.NoError(t, err)

	assert.Equal(t, "street.jpg", set.Item.Name)
	assert.Equal(t, 640, set.Item.Width)
	require.Len(t, set.Annotations, 1)
	assert.Equal(t, geometry.Box{X: 10, Y: 20, W: 100, H: 50}, *set.Annotations[0].Box)
}

func TestImportErrors(t *testing.T) {
	reg := testRegistry(t)

	_, err := (&Importer{}).Import([]byte(`<annotation><size/></annotation>`), reg)
	assert.Error(t, err, "no filename")

	doc := `<annotation><filename>a.jpg</filename>
	  <size><width>10</width><height>10</height></size>
	  <object><name>bicycle</name><bndbox><xmin>0</xmin><ymin>0</ymin><xmax>1</xmax><ymax>1</ymax></bndbox></object>
	</annotation>`
	_, err = (&Importer{}).Import([]byte(doc), reg)
	assert.Error(t, err, "unresolved label")

	doc = `<annotation><filename>a.jpg</filename>
	  <size><width>10</width><height>10</height></size>
	  <object><name>car</name><bndbox><xmin>5</xmin><ymin>0</ymin><xmax>1</xmax><ymax>1</ymax></bndbox></object>
	</annotation>`
	_, err = (&Importer{}).Import([]byte(doc), reg)
	assert.Error(t, err, "degenerate bndbox")

	_, err = (&Importer{}).Import([]byte(`not xml`), reg)
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	reg := testRegistry(t)
	set := &annotation.Set{
		Item: annotation.Item{Name: "a.jpg", Width: 100, Height: 100},
		Annotations: []annotation.Annotation{
			{ID: uuid.New(), Label: "car", Box: &geometry.Box{X: 1, Y: 2, W: 3, H: 4}},
		},
	}
	res, err := (&Exporter{}).Export(set, reg)
	require.NoError(t, err)

	back, err := (&Importer{}).Import(res.Files[0].Data, reg)
	require.NoError(t, err)
	require.Len(t, back.Annotations, 1)
	assert.Equal(t, *set.Annotations[0].Box, *back.Annotations[0].Box)
}
