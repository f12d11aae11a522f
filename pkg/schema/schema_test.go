package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvdata/annoconv/pkg/annotation"
	"github.com/openvdata/annoconv/pkg/errdefs"
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

const v2Record = `{
  "version": "2.0",
  "item": {"name": "street.jpg", "width": 640, "height": 480},
  "annotations": [
    {
      "id": "6fa459ea-ee8a-3ca4-894e-db77e160355e",
      "name": "car",
      "confidence": 0.9,
      "properties": {"occluded": true},
      "bounding_box": {"x": 10, "y": 20, "w": 100, "h": 50}
    },
    {
      "name": "road",
      "polygon": {"paths": [[{"x": 0, "y": 300}, {"x": 640, "y": 300}, {"x": 640, "y": 480}]]}
    },
    {"name": "night", "tag": {}}
  ]
}`

func TestValidateV2(t *testing.T) {
	rec, err := Validate(json.RawMessage(v2Record))
	require.NoError(t, err)
	assert.Equal(t, Version2, rec.Version)
	assert.Equal(t, "street.jpg", rec.Item.Name)
	require.Len(t, rec.Annotations, 3)
	assert.NotNil(t, rec.Annotations[0].BoundingBox)
	assert.NotNil(t, rec.Annotations[1].Polygon)
	assert.NotNil(t, rec.Annotations[2].Tag)
}

func TestValidateUnknownVersion(t *testing.T) {
	_, err := Validate(json.RawMessage(`{"version": "3.0", "item": {"name": "a.jpg", "width": 1, "height": 1}, "annotations": []}`))
	assert.True(t, errors.Is(err, errdefs.ErrUnsupportedVersion))
}

func TestValidatePointerPaths(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		path string
	}{
		{
			name: "missing item",
			doc:  `{"version": "2.0", "annotations": []}`,
			path: "/item",
		},
		{
			name: "bad confidence",
			doc: `{"version": "2.0", "item": {"name": "a.jpg", "width": 1, "height": 1},
				"annotations": [{"name": "car", "confidence": 2, "bounding_box": {"x":0,"y":0,"w":1,"h":1}}]}`,
			path: "/annotations/0/confidence",
		},
		{
			name: "unknown field",
			doc: `{"version": "2.0", "item": {"name": "a.jpg", "width": 1, "height": 1},
				"annotations": [{"name": "car", "color": "red", "bounding_box": {"x":0,"y":0,"w":1,"h":1}}]}`,
			path: "/annotations/0/color",
		},
		{
			name: "negative box width",
			doc: `{"version": "2.0", "item": {"name": "a.jpg", "width": 1, "height": 1},
				"annotations": [{"name": "car", "bounding_box": {"x":0,"y":0,"w":-1,"h":1}}]}`,
			path: "/annotations/0/bounding_box/w",
		},
		{
			name: "short polygon ring",
			doc: `{"version": "2.0", "item": {"name": "a.jpg", "width": 1, "height": 1},
				"annotations": [{"name": "road", "polygon": {"paths": [[{"x":0,"y":0},{"x":1,"y":1}]]}}]}`,
			path: "/annotations/0/polygon/paths/0",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(json.RawMessage(tc.doc))
			var verr *errdefs.ValidationError
			require.True(t, errors.As(err, &verr), "want ValidationError, got %v", err)
			assert.Equal(t, tc.path, verr.Path)
		})
	}
}

func TestValidateGeometryExclusivity(t *testing.T) {
	doc := `{"version": "2.0", "item": {"name": "a.jpg", "width": 1, "height": 1},
		"annotations": [{"name": "car", "tag": {}, "bounding_box": {"x":0,"y":0,"w":1,"h":1}}]}`
	_, err := Validate(json.RawMessage(doc))
	assert.Error(t, err, "two geometry payloads")

	doc = `{"version": "2.0", "item": {"name": "a.jpg", "width": 1, "height": 1},
		"annotations": [{"name": "car"}]}`
	_, err = Validate(json.RawMessage(doc))
	assert.Error(t, err, "no geometry payload")
}

func TestValidateMaskRLE(t *testing.T) {
	doc := `{"version": "2.0", "item": {"name": "a.jpg", "width": 4, "height": 1},
		"annotations": [{"name": "road", "mask": {"width": 2, "height": 2, "dense_rle": [0, 2, 1, 2]}}]}`
	_, err := Validate(json.RawMessage(doc))
	assert.NoError(t, err)

	short := `{"version": "2.0", "item": {"name": "a.jpg", "width": 4, "height": 1},
		"annotations": [{"name": "road", "mask": {"width": 2, "height": 2, "dense_rle": [0, 3]}}]}`
	_, err = Validate(json.RawMessage(short))
	assert.Error(t, err, "rle decodes short of the grid")
}

func TestValidateV1Normalization(t *testing.T) {
	doc := `{
	  "version": "1.0",
	  "image": {"filename": "old.jpg", "width": 320, "height": 240},
	  "annotations": [
	    {"label": "car", "attributes": {"occluded": true}, "bounding_box": {"x": 1, "y": 2, "w": 3, "h": 4}},
	    {"label": "road", "polygon": {"points": [{"x":0,"y":0},{"x":4,"y":0},{"x":4,"y":4}]}},
	    {"label": "night", "tag": true}
	  ]
	}`
	rec, err := Validate(json.RawMessage(doc))
	require.NoError(t, err)

	assert.Equal(t, Version2, rec.Version)
	assert.Equal(t, "old.jpg", rec.Item.Name)
	require.Len(t, rec.Annotations, 3)
	assert.Equal(t, "car", rec.Annotations[0].Name)
	assert.Equal(t, map[string]any{"occluded": true}, rec.Annotations[0].Properties)
	require.NotNil(t, rec.Annotations[1].Polygon)
	assert.Len(t, rec.Annotations[1].Polygon.Paths, 1)
	assert.NotNil(t, rec.Annotations[2].Tag)
}

func TestMaterialize(t *testing.T) {
	rec, err := Validate(json.RawMessage(v2Record))
	require.NoError(t, err)

	set, err := Materialize(rec, testRegistry(t))
	require.NoError(t, err)
	assert.Equal(t, "street.jpg", set.Item.Name)
	require.Len(t, set.Annotations, 3)
	assert.Equal(t, annotation.KindBox, set.Annotations[0].Kind())
	assert.Equal(t, geometry.Box{X: 10, Y: 20, W: 100, H: 50}, *set.Annotations[0].Box)
	assert.Equal(t, annotation.KindPolygon, set.Annotations[1].Kind())
	assert.True(t, set.Annotations[2].Tag)
}

func TestMaterializeKindMismatch(t *testing.T) {
	doc := `{"version": "2.0", "item": {"name": "a.jpg", "width": 1, "height": 1},
		"annotations": [{"name": "car", "polygon": {"paths": [[{"x":0,"y":0},{"x":4,"y":0},{"x":4,"y":4}]]}}]}`
	rec, err := Validate(json.RawMessage(doc))
	require.NoError(t, err)

	_, err = Materialize(rec, testRegistry(t))
	assert.Error(t, err, "car is registered as bounding_box")
}

func TestMaterializeUnresolvedLabel(t *testing.T) {
	doc := `{"version": "2.0", "item": {"name": "a.jpg", "width": 1, "height": 1},
		"annotations": [{"name": "bicycle", "bounding_box": {"x":0,"y":0,"w":1,"h":1}}]}`
	rec, err := Validate(json.RawMessage(doc))
	require.NoError(t, err)

	_, err = Materialize(rec, testRegistry(t))
	assert.True(t, errors.Is(err, errdefs.ErrUnresolvedLabel))
}

func TestMaterializeMaskDimensionMismatch(t *testing.T) {
	doc := `{"version": "2.0", "item": {"name": "a.jpg", "width": 640, "height": 480},
		"annotations": [{"name": "dirt", "mask": {"width": 2, "height": 2, "dense_rle": [0, 2, 1, 2]}}]}`
	rec, err := Validate(json.RawMessage(doc))
	require.NoError(t, err)

	_, err = Materialize(rec, testRegistry(t))
	assert.True(t, errors.Is(err, errdefs.ErrDimensionMismatch))
}

func TestFromSetRoundTrip(t *testing.T) {
	rec, err := Validate(json.RawMessage(v2Record))
	require.NoError(t, err)
	reg := testRegistry(t)

	set, err := Materialize(rec, reg)
	require.NoError(t, err)

	back := FromSet(set)
	set2, err := Materialize(back, reg)
	require.NoError(t, err)

	if diff := cmp.Diff(set, set2); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
