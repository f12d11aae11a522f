// Package schema defines the platform's native JSON annotation schema and
// validates raw records against it before they are materialized into the
// annotation model. Validation is versioned: each record declares a schema
// version tag and the matching rule set is applied; unknown versions fail
// closed with errdefs.ErrUnsupportedVersion.
package schema

// Version2 is the current native schema version.
const Version2 = "2.0"

// Version1 is the legacy flat schema, still accepted on import and
// normalized into the current record shape.
const Version1 = "1.0"

// Record is a validated, normalized native annotation record: the full
// annotation content of one image, video or volume.
type Record struct {
	Version     string           `json:"version"`
	Item        ItemData         `json:"item"`
	Annotations []AnnotationData `json:"annotations"`
}

// ItemData identifies the annotated item.
type ItemData struct {
	Name       string `json:"name"`
	Path       string `json:"path,omitempty"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FrameCount int    `json:"frame_count,omitempty"`
}

// AnnotationData is one annotation on the wire. Exactly one geometry field
// is populated.
type AnnotationData struct {
	ID         string         `json:"id,omitempty"`
	Name       string         `json:"name"`
	Confidence *float64       `json:"confidence,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	TrackID    string         `json:"track_id,omitempty"`
	Frame      *int           `json:"frame,omitempty"`

	BoundingBox *BoxData      `json:"bounding_box,omitempty"`
	Polygon     *PolygonData  `json:"polygon,omitempty"`
	Polyline    *PolylineData `json:"polyline,omitempty"`
	Mask        *MaskData     `json:"mask,omitempty"`
	Skeleton    *SkeletonData `json:"skeleton,omitempty"`
	Tag         *TagData      `json:"tag,omitempty"`
}

// PointData is a wire point.
type PointData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoxData is a wire bounding box.
type BoxData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// PolygonData carries one or more rings; the first path is the outer ring
// and any further paths are holes.
type PolygonData struct {
	Paths [][]PointData `json:"paths"`
}

// PolylineData carries an open point sequence.
type PolylineData struct {
	Path []PointData `json:"path"`
}

// MaskData carries a dense run-length encoded pixel grid.
type MaskData struct {
	Width    int   `json:"width"`
	Height   int   `json:"height"`
	DenseRLE []int `json:"dense_rle"`
}

// SkeletonData carries named keypoints; edges come from the class template.
type SkeletonData struct {
	Nodes []SkeletonNodeData `json:"nodes"`
}

// SkeletonNodeData is one wire keypoint.
type SkeletonNodeData struct {
	Name     string  `json:"name"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Occluded bool    `json:"occluded"`
}

// TagData marks a geometry-less whole-item tag. It has no fields; its
// presence is the payload.
type TagData struct{}
