package annotation

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/openvdata/annoconv/pkg/errdefs"
)

// Item identifies the image, video or volume an annotation set belongs to.
// FrameCount is zero for still images.
type Item struct {
	Name       string
	Path       string
	Width      int
	Height     int
	FrameCount int
}

// Set is the ordered collection of annotations for one item. Sets are
// built by the streaming parser, read by exporters and discarded when a
// conversion run completes.
type Set struct {
	Item        Item
	Annotations []Annotation
}

// Validate checks the per-annotation invariants plus the set-level ones:
// mask grids match the declared item dimensions, frame indices stay within
// the declared frame count and every track visits frames in non-decreasing
// order of appearance.
func (s *Set) Validate() error {
	if s.Item.Name == "" {
		return fmt.Errorf("item has no name")
	}
	if s.Item.Width < 0 || s.Item.Height < 0 || s.Item.FrameCount < 0 {
		return fmt.Errorf("item %q: negative dimensions", s.Item.Name)
	}
	lastFrame := make(map[uuid.UUID]int)
	for i := range s.Annotations {
		a := &s.Annotations[i]
		if err := a.Validate(); err != nil {
			return fmt.Errorf("annotation %d: %w", i, err)
		}
		if a.Mask != nil && s.Item.Width > 0 && s.Item.Height > 0 {
			if a.Mask.W != s.Item.Width || a.Mask.H != s.Item.Height {
				return fmt.Errorf("annotation %d: %w: mask is %dx%d, item is %dx%d",
					i, errdefs.ErrDimensionMismatch, a.Mask.W, a.Mask.H, s.Item.Width, s.Item.Height)
			}
		}
		if a.Frame != nil {
			if *a.Frame < 0 {
				return &errdefs.GeometryError{Reason: fmt.Sprintf("annotation %d: negative frame index %d", i, *a.Frame)}
			}
			if s.Item.FrameCount > 0 && *a.Frame >= s.Item.FrameCount {
				return &errdefs.GeometryError{
					Reason: fmt.Sprintf("annotation %d: frame %d outside declared frame count %d", i, *a.Frame, s.Item.FrameCount),
				}
			}
		}
		if a.TrackID != nil {
			frame := 0
			if a.Frame != nil {
				frame = *a.Frame
			}
			if prev, seen := lastFrame[*a.TrackID]; seen && frame < prev {
				return &errdefs.GeometryError{
					Reason: fmt.Sprintf("track %s visits frame %d after frame %d", a.TrackID, frame, prev),
				}
			}
			lastFrame[*a.TrackID] = frame
		}
	}
	return nil
}

// Labels returns the distinct labels referenced by the set, in first-use
// order.
func (s *Set) Labels() []string {
	seen := make(map[string]struct{})
	var labels []string
	for i := range s.Annotations {
		l := s.Annotations[i].Label
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		labels = append(labels, l)
	}
	return labels
}
