package native

import (
	"testing"

	"github.com/google/go-cmp/cmp"
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
    attributes:
      occluded: {type: bool}
  - name: road
    kind: polygon
  - name: pose
    kind: skeleton
  - name: lane
    kind: polyline
  - name: dirt
    kind: mask
  - name: night
    kind: tag
`

func testRegistry(t *testing.T) *annotation.Registry {
	t.Helper()
	reg, err := annotation.ParseRegistry([]byte(registryYAML))
	require.NoError(t, err)
	return reg
}

func testSet() *annotation.Set {
	conf := 0.75
	dirt := geometry.NewMask(640, 480)
	dirt.Set(1, 1, true)
	dirt.Set(2, 1, true)
	return &annotation.Set{
		Item: annotation.Item{Name: "street.jpg", Width: 640, Height: 480},
		Annotations: []annotation.Annotation{
			{
				ID:         uuid.New(),
				Label:      "car",
				Box:        &geometry.Box{X: 10, Y: 20, W: 100, H: 50},
				Attributes: map[string]any{"occluded": false},
				Confidence: &conf,
			},
			{
				ID: uuid.New(), Label: "road",
				Polygon: &geometry.Polygon{Outer: []geometry.Point{
					{X: 0, Y: 300}, {X: 640, Y: 300}, {X: 640, Y: 480}, {X: 0, Y: 480},
				}},
			},
			{
				ID: uuid.New(), Label: "lane",
				Polyline: &geometry.Polyline{Points: []geometry.Point{{X: 0, Y: 400}, {X: 640, Y: 410}}},
			},
			{
				ID: uuid.New(), Label: "pose",
				Skeleton: &geometry.Skeleton{Nodes: []geometry.SkeletonNode{
					{Name: "head", Point: geometry.Point{X: 50, Y: 60}},
					{Name: "foot", Point: geometry.Point{X: 52, Y: 160}, Occluded: true},
				}},
			},
			{ID: uuid.New(), Label: "dirt", Mask: &dirt},
			{ID: uuid.New(), Label: "night", Tag: true},
		},
	}
}

func TestRegistered(t *testing.T) {
	exp, err := formats.NewExporter(FormatName)
	require.NoError(t, err)
	assert.Equal(t, FormatName, exp.Name())

	imp, err := formats.NewImporter(FormatName)
	require.NoError(t, err)
	assert.Equal(t, FormatName, imp.Name())
}

func TestRoundTrip(t *testing.T) {
	reg := testRegistry(t)
	set := testSet()
	set.Annotations[1].Polygon = func() *geometry.Polygon {
		n := set.Annotations[1].Polygon.Normalize()
		return &n
	}()
	require.NoError(t, set.Validate())

	res, err := (&Exporter{}).Export(set, reg)
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "street.json", res.Files[0].Path)
	assert.Empty(t, res.Warnings, "native conversion is lossless")

	back, err := (&Importer{}).Import(res.Files[0].Data, reg)
	require.NoError(t, err)

	if diff := cmp.Diff(set, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestExportUnresolvedLabel(t *testing.T) {
	set := &annotation.Set{
		Item: annotation.Item{Name: "a.jpg", Width: 10, Height: 10},
		Annotations: []annotation.Annotation{
			{ID: uuid.New(), Label: "bicycle", Tag: true},
		},
	}
	_, err := (&Exporter{}).Export(set, testRegistry(t))
	assert.Error(t, err)
}

func TestImportRejectsBadDocument(t *testing.T) {
	_, err := (&Importer{}).Import([]byte(`{"version": "9.9"}`), testRegistry(t))
	assert.Error(t, err)

	_, err = (&Importer{}).Import([]byte(`not json`), testRegistry(t))
	assert.Error(t, err)
}
