package annotation

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/openvdata/annoconv/pkg/errdefs"
)

// AttrSpec declares the allowed values for one class attribute.
type AttrSpec struct {
	// Type is one of "string", "bool" or "enum".
	Type string `yaml:"type"`
	// Values lists the permitted values for enum attributes.
	Values []string `yaml:"values,omitempty"`
}

// Class describes one entry of the label registry: the geometry kind the
// label applies to and its allowed attribute schema.
type Class struct {
	Name       string              `yaml:"name"`
	Kind       Kind                `yaml:"-"`
	KindName   string              `yaml:"kind"`
	Attributes map[string]AttrSpec `yaml:"attributes,omitempty"`
	// SkeletonEdges is the fixed edge list for skeleton classes, given as
	// pairs of node names.
	SkeletonEdges [][2]string `yaml:"skeleton_edges,omitempty"`
}

// ValidateAttributes checks an annotation's attribute map against the
// class schema. Unknown attribute names and out-of-range enum values are
// rejected.
func (c *Class) ValidateAttributes(attrs map[string]any) error {
	for name, value := range attrs {
		spec, ok := c.Attributes[name]
		if !ok {
			return fmt.Errorf("attribute %q not allowed for class %q", name, c.Name)
		}
		switch spec.Type {
		case "bool":
			if _, ok := value.(bool); !ok {
				return fmt.Errorf("attribute %q of class %q must be a boolean", name, c.Name)
			}
		case "string":
			if _, ok := value.(string); !ok {
				return fmt.Errorf("attribute %q of class %q must be a string", name, c.Name)
			}
		case "enum":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("attribute %q of class %q must be an enum string", name, c.Name)
			}
			found := false
			for _, v := range spec.Values {
				if v == s {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("attribute %q of class %q: value %q not in enum %v", name, c.Name, s, spec.Values)
			}
		default:
			return fmt.Errorf("attribute %q of class %q has unknown type %q", name, c.Name, spec.Type)
		}
	}
	return nil
}

// Registry maps label names to their class definitions. It is read-only
// for the duration of a conversion run and safe to share across parallel
// workers.
type Registry struct {
	classes map[string]Class
	labels  []string
}

// NewRegistry builds a registry from class definitions. Duplicate names
// are rejected.
func NewRegistry(classes []Class) (*Registry, error) {
	r := &Registry{classes: make(map[string]Class, len(classes))}
	for _, c := range classes {
		if c.Name == "" {
			return nil, fmt.Errorf("registry class without a name")
		}
		if _, dup := r.classes[c.Name]; dup {
			return nil, fmt.Errorf("duplicate registry class %q", c.Name)
		}
		if c.Kind == KindUnknown {
			k, err := ParseKind(c.KindName)
			if err != nil {
				return nil, fmt.Errorf("class %q: %w", c.Name, err)
			}
			c.Kind = k
		}
		r.classes[c.Name] = c
	}
	for name := range r.classes {
		r.labels = append(r.labels, name)
	}
	// Sorted label order is the contract behind deterministic label-index
	// assignment in exporters.
	sort.Strings(r.labels)
	return r, nil
}

// LoadRegistry reads a registry from a YAML mapping file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry parses registry YAML of the form:
//
//	labels:
//	  - name: car
//	    kind: polygon
//	    attributes:
//	      occluded: {type: bool}
//	      colour: {type: enum, values: [red, blue]}
func ParseRegistry(data []byte) (*Registry, error) {
	var doc struct {
		Labels []Class `yaml:"labels"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if len(doc.Labels) == 0 {
		return nil, fmt.Errorf("registry defines no labels")
	}
	return NewRegistry(doc.Labels)
}

// Labels returns the registered label names in sorted order. The slice is
// shared; callers must not mutate it.
func (r *Registry) Labels() []string {
	return r.labels
}

// Lookup resolves a label name to its class definition.
func (r *Registry) Lookup(name string) (Class, error) {
	c, ok := r.classes[name]
	if !ok {
		return Class{}, fmt.Errorf("%w: %q", errdefs.ErrUnresolvedLabel, name)
	}
	return c, nil
}

// Index returns the position of a label in the sorted label order, the
// basis for deterministic label-index mapping in exporters.
func (r *Registry) Index(name string) (int, error) {
	if _, err := r.Lookup(name); err != nil {
		return 0, err
	}
	return sort.SearchStrings(r.labels, name), nil
}
