package annoconv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvdata/annoconv/pkg/annotation"
	"github.com/openvdata/annoconv/pkg/convert"
	"github.com/openvdata/annoconv/pkg/formats"
	"github.com/openvdata/annoconv/pkg/geometry"
)

const registryYAML = `
labels:
  - name: car
    kind: bounding_box
  - name: night
    kind: tag
`

func testConverter(t *testing.T) *Converter {
	t.Helper()
	reg, err := annotation.ParseRegistry([]byte(registryYAML))
	require.NoError(t, err)
	return New(reg)
}

func TestAllFormatsRegistered(t *testing.T) {
	assert.Equal(t, []string{"coco", "mask", "native", "pascal_voc", "yolo"}, formats.ExporterNames())
	assert.Equal(t, []string{"coco", "mask", "native", "pascal_voc", "yolo"}, formats.ImporterNames())
}

func TestExportSet(t *testing.T) {
	conv := testConverter(t)
	set := &annotation.Set{
		Item: annotation.Item{Name: "a.jpg", Width: 100, Height: 100},
		Annotations: []annotation.Annotation{
			{ID: uuid.New(), Label: "car", Box: &geometry.Box{X: 1, Y: 1, W: 10, H: 10}},
		},
	}

	res, err := conv.ExportSet(set, "coco")
	require.NoError(t, err)
	assert.Equal(t, "a.json", res.Files[0].Path)

	_, err = conv.ExportSet(set, "nope")
	assert.Error(t, err)
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "annotations.json")
	doc := `[
	  {"version": "2.0", "item": {"name": "a.jpg", "width": 100, "height": 100},
	   "annotations": [{"name": "car", "bounding_box": {"x": 1, "y": 2, "w": 10, "h": 10}}]},
	  {"version": "2.0", "item": {"name": "b.jpg", "width": 100, "height": 100},
	   "annotations": [{"name": "night", "tag": {}}]}
	]`
	require.NoError(t, os.WriteFile(input, []byte(doc), 0o644))

	conv := testConverter(t)
	outDir := filepath.Join(dir, "out")
	report, err := conv.ConvertFile(context.Background(), input, "pascal_voc", outDir)
	require.NoError(t, err)

	assert.Equal(t, convert.StatusCompleted, report.Status)
	assert.Equal(t, 2, report.Succeeded)
	assert.FileExists(t, filepath.Join(outDir, "a.xml"))
	assert.FileExists(t, filepath.Join(outDir, "b.xml"))

	_, err = conv.ConvertFile(context.Background(), filepath.Join(dir, "missing.json"), "coco", outDir)
	assert.Error(t, err)
}

func TestImportFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.xml")
	doc := `<annotation><filename>a.jpg</filename>
	  <size><width>10</width><height>10</height></size>
	  <object><name>car</name><bndbox><xmin>1</xmin><ymin>1</ymin><xmax>5</xmax><ymax>5</ymax></bndbox></object>
	</annotation>`
	require.NoError(t, os.WriteFile(input, []byte(doc), 0o644))

	conv := testConverter(t)
	set, err := conv.ImportFile(input, "pascal_voc")
	require.NoError(t, err)
	require.Len(t, set.Annotations, 1)
	assert.Equal(t, "car", set.Annotations[0].Label)
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, Version, GetVersion())
}
