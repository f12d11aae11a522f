package annotation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvdata/annoconv/pkg/errdefs"
	"github.com/openvdata/annoconv/pkg/geometry"
)

func boxAnnotation(label string) Annotation {
	return Annotation{
		ID:    uuid.New(),
		Label: label,
		Box:   &geometry.Box{X: 1, Y: 1, W: 10, H: 10},
	}
}

func TestKindDerivation(t *testing.T) {
	a := boxAnnotation("car")
	assert.Equal(t, KindBox, a.Kind())

	a = Annotation{Label: "sky", Tag: true}
	assert.Equal(t, KindTag, a.Kind())

	a = Annotation{Label: "road", Polygon: &geometry.Polygon{
		Outer: []geometry.Point{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}},
	}}
	assert.Equal(t, KindPolygon, a.Kind())

	assert.Equal(t, KindUnknown, (&Annotation{Label: "empty"}).Kind())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("bounding_box")
	require.NoError(t, err)
	assert.Equal(t, KindBox, k)

	_, err = ParseKind("circle")
	assert.Error(t, err)
}

func TestAnnotationValidate(t *testing.T) {
	a := boxAnnotation("car")
	assert.NoError(t, a.Validate())

	t.Run("two payloads", func(t *testing.T) {
		b := boxAnnotation("car")
		b.Tag = true
		assert.Error(t, b.Validate())
	})

	t.Run("no payload", func(t *testing.T) {
		b := Annotation{ID: uuid.New(), Label: "car"}
		assert.Error(t, b.Validate())
	})

	t.Run("empty label", func(t *testing.T) {
		b := boxAnnotation("")
		assert.Error(t, b.Validate())
	})

	t.Run("confidence range", func(t *testing.T) {
		b := boxAnnotation("car")
		conf := 0.5
		b.Confidence = &conf
		assert.NoError(t, b.Validate())

		bad := 1.5
		b.Confidence = &bad
		assert.Error(t, b.Validate())
	})

	t.Run("attribute types", func(t *testing.T) {
		b := boxAnnotation("car")
		b.Attributes = map[string]any{"occluded": true, "colour": "red"}
		assert.NoError(t, b.Validate())

		b.Attributes = map[string]any{"count": 3}
		assert.Error(t, b.Validate())
	})
}

func TestAnnotationBounds(t *testing.T) {
	a := Annotation{Label: "road", Polygon: &geometry.Polygon{
		Outer: []geometry.Point{{X: 2, Y: 3}, {X: 8, Y: 3}, {X: 8, Y: 9}},
	}}
	assert.Equal(t, geometry.Box{X: 2, Y: 3, W: 6, H: 6}, a.Bounds())

	tag := Annotation{Label: "night", Tag: true}
	assert.Zero(t, tag.Bounds())
}

func TestSetValidate(t *testing.T) {
	set := &Set{
		Item:        Item{Name: "a.jpg", Width: 100, Height: 100},
		Annotations: []Annotation{boxAnnotation("car")},
	}
	require.NoError(t, set.Validate())

	t.Run("missing name", func(t *testing.T) {
		s := &Set{Item: Item{Width: 10, Height: 10}}
		assert.Error(t, s.Validate())
	})

	t.Run("mask dims must match item", func(t *testing.T) {
		m := geometry.NewMask(2, 2)
		m.Set(0, 0, true)
		s := &Set{
			Item:        Item{Name: "a.jpg", Width: 640, Height: 480},
			Annotations: []Annotation{{ID: uuid.New(), Label: "dirt", Mask: &m}},
		}
		assert.ErrorIs(t, s.Validate(), errdefs.ErrDimensionMismatch)
	})

	t.Run("frame outside count", func(t *testing.T) {
		frame := 5
		a := boxAnnotation("car")
		a.Frame = &frame
		s := &Set{
			Item:        Item{Name: "v.mp4", Width: 10, Height: 10, FrameCount: 3},
			Annotations: []Annotation{a},
		}
		assert.Error(t, s.Validate())
	})

	t.Run("track frames must not decrease", func(t *testing.T) {
		track := uuid.New()
		f0, f1 := 2, 1
		a := boxAnnotation("car")
		a.TrackID = &track
		a.Frame = &f0
		b := boxAnnotation("car")
		b.TrackID = &track
		b.Frame = &f1
		s := &Set{
			Item:        Item{Name: "v.mp4", Width: 10, Height: 10, FrameCount: 10},
			Annotations: []Annotation{a, b},
		}
		assert.Error(t, s.Validate())
	})
}

func TestSetLabels(t *testing.T) {
	set := &Set{
		Item: Item{Name: "a.jpg", Width: 10, Height: 10},
		Annotations: []Annotation{
			boxAnnotation("car"), boxAnnotation("person"), boxAnnotation("car"),
		},
	}
	assert.Equal(t, []string{"car", "person"}, set.Labels())
}
