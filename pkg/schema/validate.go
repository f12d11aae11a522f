package schema

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/openvdata/annoconv/pkg/errdefs"
)

// geometryFields lists the mutually exclusive geometry keys of a v2
// annotation.
var geometryFields = []string{"bounding_box", "polygon", "polyline", "mask", "skeleton", "tag"}

var allowedV2Fields = map[string]struct{}{
	"id": {}, "name": {}, "confidence": {}, "properties": {},
	"track_id": {}, "frame": {},
	"bounding_box": {}, "polygon": {}, "polyline": {}, "mask": {},
	"skeleton": {}, "tag": {},
}

// Validate checks a raw JSON record against the rule set selected by its
// declared schema version and returns the normalized record. It is a pure
// function over the input; the first violation is reported as a
// *errdefs.ValidationError carrying the JSON pointer of the offending
// value.
func Validate(raw json.RawMessage) (*Record, error) {
	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, &errdefs.ValidationError{Path: "", Reason: "record is not a JSON object"}
	}
	version, err := requireString(root, "version", "/version")
	if err != nil {
		return nil, err
	}
	switch version {
	case Version2:
		if err := validateV2(root); err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, &errdefs.ValidationError{Path: "", Reason: err.Error()}
		}
		return &rec, nil
	case Version1:
		return validateV1(root)
	default:
		return nil, fmt.Errorf("%w: %q", errdefs.ErrUnsupportedVersion, version)
	}
}

func validateV2(root map[string]any) error {
	item, err := requireObject(root, "item", "/item")
	if err != nil {
		return err
	}
	if _, err := requireString(item, "name", "/item/name"); err != nil {
		return err
	}
	if _, err := requireInt(item, "width", "/item/width", 0); err != nil {
		return err
	}
	if _, err := requireInt(item, "height", "/item/height", 0); err != nil {
		return err
	}
	if _, ok := item["frame_count"]; ok {
		if _, err := requireInt(item, "frame_count", "/item/frame_count", 0); err != nil {
			return err
		}
	}

	raw, ok := root["annotations"]
	if !ok {
		return verr("/annotations", "missing required field")
	}
	anns, ok := raw.([]any)
	if !ok {
		return verr("/annotations", "must be an array")
	}
	for i, entry := range anns {
		path := fmt.Sprintf("/annotations/%d", i)
		obj, ok := entry.(map[string]any)
		if !ok {
			return verr(path, "annotation must be an object")
		}
		if err := validateV2Annotation(obj, path); err != nil {
			return err
		}
	}
	return nil
}

func validateV2Annotation(obj map[string]any, path string) error {
	for key := range obj {
		if _, ok := allowedV2Fields[key]; !ok {
			return verr(path+"/"+key, "unknown field")
		}
	}
	if _, err := requireString(obj, "name", path+"/name"); err != nil {
		return err
	}
	if raw, ok := obj["id"]; ok {
		s, ok := raw.(string)
		if !ok {
			return verr(path+"/id", "must be a string")
		}
		if _, err := uuid.Parse(s); err != nil {
			return verr(path+"/id", "must be a UUID")
		}
	}
	if raw, ok := obj["track_id"]; ok {
		s, ok := raw.(string)
		if !ok {
			return verr(path+"/track_id", "must be a string")
		}
		if _, err := uuid.Parse(s); err != nil {
			return verr(path+"/track_id", "must be a UUID")
		}
	}
	if raw, ok := obj["confidence"]; ok {
		f, ok := raw.(float64)
		if !ok {
			return verr(path+"/confidence", "must be a number")
		}
		if f < 0 || f > 1 {
			return verr(path+"/confidence", fmt.Sprintf("value %v outside [0,1]", f))
		}
	}
	if raw, ok := obj["frame"]; ok {
		f, ok := raw.(float64)
		if !ok || f != math.Trunc(f) || f < 0 {
			return verr(path+"/frame", "must be a non-negative integer")
		}
	}
	if raw, ok := obj["properties"]; ok {
		props, ok := raw.(map[string]any)
		if !ok {
			return verr(path+"/properties", "must be an object")
		}
		for name, v := range props {
			switch v.(type) {
			case string, bool:
			default:
				return verr(path+"/properties/"+name, "must be a string or boolean")
			}
		}
	}

	var present []string
	for _, g := range geometryFields {
		if _, ok := obj[g]; ok {
			present = append(present, g)
		}
	}
	if len(present) == 0 {
		return verr(path, "annotation carries no geometry payload")
	}
	if len(present) > 1 {
		return verr(path, fmt.Sprintf("annotation carries %d geometry payloads: %v", len(present), present))
	}

	key := present[0]
	gpath := path + "/" + key
	switch key {
	case "bounding_box":
		return validateBox(obj[key], gpath)
	case "polygon":
		return validatePolygon(obj[key], gpath)
	case "polyline":
		return validatePolyline(obj[key], gpath)
	case "mask":
		return validateMask(obj[key], gpath)
	case "skeleton":
		return validateSkeleton(obj[key], gpath)
	case "tag":
		if _, ok := obj[key].(map[string]any); !ok {
			return verr(gpath, "must be an object")
		}
	}
	return nil
}

func validateBox(raw any, path string) error {
	box, ok := raw.(map[string]any)
	if !ok {
		return verr(path, "must be an object")
	}
	for _, f := range []string{"x", "y", "w", "h"} {
		v, ok := box[f]
		if !ok {
			return verr(path+"/"+f, "missing required field")
		}
		n, ok := v.(float64)
		if !ok {
			return verr(path+"/"+f, "must be a number")
		}
		if (f == "w" || f == "h") && n < 0 {
			return verr(path+"/"+f, "must be non-negative")
		}
	}
	return nil
}

func validatePolygon(raw any, path string) error {
	poly, ok := raw.(map[string]any)
	if !ok {
		return verr(path, "must be an object")
	}
	paths, ok := poly["paths"].([]any)
	if !ok {
		return verr(path+"/paths", "missing or not an array")
	}
	if len(paths) == 0 {
		return verr(path+"/paths", "needs at least the outer ring")
	}
	for i, rp := range paths {
		ring, ok := rp.([]any)
		if !ok {
			return verr(fmt.Sprintf("%s/paths/%d", path, i), "ring must be an array")
		}
		if len(ring) < 3 {
			return verr(fmt.Sprintf("%s/paths/%d", path, i), "ring needs at least 3 points")
		}
		for j, pp := range ring {
			if err := validatePoint(pp, fmt.Sprintf("%s/paths/%d/%d", path, i, j)); err != nil {
				return err
			}
		}
	}
	return nil
}

func validatePolyline(raw any, path string) error {
	line, ok := raw.(map[string]any)
	if !ok {
		return verr(path, "must be an object")
	}
	pts, ok := line["path"].([]any)
	if !ok {
		return verr(path+"/path", "missing or not an array")
	}
	if len(pts) < 2 {
		return verr(path+"/path", "needs at least 2 points")
	}
	for i, pp := range pts {
		if err := validatePoint(pp, fmt.Sprintf("%s/path/%d", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func validateMask(raw any, path string) error {
	mask, ok := raw.(map[string]any)
	if !ok {
		return verr(path, "must be an object")
	}
	w, err := requireInt(mask, "width", path+"/width", 1)
	if err != nil {
		return err
	}
	h, err := requireInt(mask, "height", path+"/height", 1)
	if err != nil {
		return err
	}
	rle, ok := mask["dense_rle"].([]any)
	if !ok {
		return verr(path+"/dense_rle", "missing or not an array")
	}
	if len(rle)%2 != 0 {
		return verr(path+"/dense_rle", "must hold value/count pairs")
	}
	total := 0
	for i, v := range rle {
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			return verr(fmt.Sprintf("%s/dense_rle/%d", path, i), "must be an integer")
		}
		if i%2 == 0 {
			if f != 0 && f != 1 {
				return verr(fmt.Sprintf("%s/dense_rle/%d", path, i), "run value must be 0 or 1")
			}
		} else {
			if f < 0 {
				return verr(fmt.Sprintf("%s/dense_rle/%d", path, i), "run count must be non-negative")
			}
			total += int(f)
		}
	}
	if total != w*h {
		return verr(path+"/dense_rle", fmt.Sprintf("decodes to %d pixels, want %d", total, w*h))
	}
	return nil
}

func validateSkeleton(raw any, path string) error {
	sk, ok := raw.(map[string]any)
	if !ok {
		return verr(path, "must be an object")
	}
	nodes, ok := sk["nodes"].([]any)
	if !ok {
		return verr(path+"/nodes", "missing or not an array")
	}
	if len(nodes) == 0 {
		return verr(path+"/nodes", "needs at least one node")
	}
	for i, np := range nodes {
		npath := fmt.Sprintf("%s/nodes/%d", path, i)
		node, ok := np.(map[string]any)
		if !ok {
			return verr(npath, "node must be an object")
		}
		if _, err := requireString(node, "name", npath+"/name"); err != nil {
			return err
		}
		for _, f := range []string{"x", "y"} {
			if _, ok := node[f].(float64); !ok {
				return verr(npath+"/"+f, "must be a number")
			}
		}
		if raw, ok := node["occluded"]; ok {
			if _, ok := raw.(bool); !ok {
				return verr(npath+"/occluded", "must be a boolean")
			}
		}
	}
	return nil
}

func validatePoint(raw any, path string) error {
	pt, ok := raw.(map[string]any)
	if !ok {
		return verr(path, "point must be an object")
	}
	for _, f := range []string{"x", "y"} {
		if _, ok := pt[f].(float64); !ok {
			return verr(path+"/"+f, "must be a number")
		}
	}
	return nil
}

// validateV1 checks a legacy flat record and normalizes it into the
// current record shape: image→item, label→name, attributes→properties,
// flat polygon points→single-ring paths.
func validateV1(root map[string]any) (*Record, error) {
	img, err := requireObject(root, "image", "/image")
	if err != nil {
		return nil, err
	}
	name, err := requireString(img, "filename", "/image/filename")
	if err != nil {
		return nil, err
	}
	w, err := requireInt(img, "width", "/image/width", 0)
	if err != nil {
		return nil, err
	}
	h, err := requireInt(img, "height", "/image/height", 0)
	if err != nil {
		return nil, err
	}

	rec := &Record{Version: Version2, Item: ItemData{Name: name, Width: w, Height: h}}

	rawAnns, ok := root["annotations"]
	if !ok {
		return nil, verr("/annotations", "missing required field")
	}
	anns, ok := rawAnns.([]any)
	if !ok {
		return nil, verr("/annotations", "must be an array")
	}
	for i, entry := range anns {
		path := fmt.Sprintf("/annotations/%d", i)
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, verr(path, "annotation must be an object")
		}
		label, err := requireString(obj, "label", path+"/label")
		if err != nil {
			return nil, err
		}
		out := AnnotationData{Name: label}
		if raw, ok := obj["attributes"]; ok {
			props, ok := raw.(map[string]any)
			if !ok {
				return nil, verr(path+"/attributes", "must be an object")
			}
			for aname, v := range props {
				switch v.(type) {
				case string, bool:
				default:
					return nil, verr(path+"/attributes/"+aname, "must be a string or boolean")
				}
			}
			out.Properties = props
		}
		switch {
		case obj["bounding_box"] != nil:
			if err := validateBox(obj["bounding_box"], path+"/bounding_box"); err != nil {
				return nil, err
			}
			box := obj["bounding_box"].(map[string]any)
			out.BoundingBox = &BoxData{
				X: box["x"].(float64), Y: box["y"].(float64),
				W: box["w"].(float64), H: box["h"].(float64),
			}
		case obj["polygon"] != nil:
			poly, ok := obj["polygon"].(map[string]any)
			if !ok {
				return nil, verr(path+"/polygon", "must be an object")
			}
			pts, ok := poly["points"].([]any)
			if !ok {
				return nil, verr(path+"/polygon/points", "missing or not an array")
			}
			if len(pts) < 3 {
				return nil, verr(path+"/polygon/points", "needs at least 3 points")
			}
			ring := make([]PointData, len(pts))
			for j, pp := range pts {
				if err := validatePoint(pp, fmt.Sprintf("%s/polygon/points/%d", path, j)); err != nil {
					return nil, err
				}
				pt := pp.(map[string]any)
				ring[j] = PointData{X: pt["x"].(float64), Y: pt["y"].(float64)}
			}
			out.Polygon = &PolygonData{Paths: [][]PointData{ring}}
		case obj["tag"] == true:
			out.Tag = &TagData{}
		default:
			return nil, verr(path, "annotation carries no geometry payload")
		}
		rec.Annotations = append(rec.Annotations, out)
	}
	return rec, nil
}

func verr(path, reason string) *errdefs.ValidationError {
	return &errdefs.ValidationError{Path: path, Reason: reason}
}

func requireObject(m map[string]any, key, path string) (map[string]any, error) {
	raw, ok := m[key]
	if !ok {
		return nil, verr(path, "missing required field")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, verr(path, "must be an object")
	}
	return obj, nil
}

func requireString(m map[string]any, key, path string) (string, error) {
	raw, ok := m[key]
	if !ok {
		return "", verr(path, "missing required field")
	}
	s, ok := raw.(string)
	if !ok {
		return "", verr(path, "must be a string")
	}
	if s == "" {
		return "", verr(path, "must not be empty")
	}
	return s, nil
}

func requireInt(m map[string]any, key, path string, min int) (int, error) {
	raw, ok := m[key]
	if !ok {
		return 0, verr(path, "missing required field")
	}
	f, ok := raw.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, verr(path, "must be an integer")
	}
	if int(f) < min {
		return 0, verr(path, fmt.Sprintf("must be at least %d", min))
	}
	return int(f), nil
}
