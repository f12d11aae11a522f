// Package formats defines the capability set shared by all interchange
// format converters and a name-based registry over the built-in ones.
// Concrete formats live in subpackages; each documents its geometry
// mapping rules and its lossy-narrowing policy.
package formats

import (
	"fmt"
	"sort"

	"github.com/openvdata/annoconv/pkg/annotation"
)

// WarningKind classifies converter warnings.
type WarningKind string

const (
	// WarnNarrowed records a deliberate fidelity reduction, e.g. a polygon
	// flattened to its bounding box for a box-only format.
	WarnNarrowed WarningKind = "narrowed"
	// WarnAttributeDropped records an attribute the target format cannot
	// represent.
	WarnAttributeDropped WarningKind = "attribute_dropped"
	// WarnSkipped records an annotation the target format cannot carry in
	// any narrowed form, e.g. a whole-item tag in a box-only format.
	WarnSkipped WarningKind = "skipped"
)

// Warning is one recorded conversion caveat. Warnings never abort a
// record; they surface in the conversion report.
type Warning struct {
	Kind         WarningKind
	AnnotationID string
	Message      string
}

// File is one produced output file: a relative path and its content. The
// core never touches the filesystem; the caller's sink does.
type File struct {
	Path string
	Data []byte
}

// Result is the outcome of exporting one annotation set.
type Result struct {
	Files    []File
	Warnings []Warning
}

// Exporter maps annotation sets to a target format's on-disk
// representation.
type Exporter interface {
	Name() string
	Export(set *annotation.Set, reg *annotation.Registry) (*Result, error)
}

// Importer maps a format's on-disk representation back to an annotation
// set.
type Importer interface {
	Name() string
	Import(data []byte, reg *annotation.Registry) (*annotation.Set, error)
}

var (
	exporters = map[string]func() Exporter{}
	importers = map[string]func() Importer{}
)

// RegisterExporter adds an exporter constructor under its format name.
// Concrete format packages call this from init.
func RegisterExporter(name string, fn func() Exporter) {
	if _, dup := exporters[name]; dup {
		panic("formats: duplicate exporter " + name)
	}
	exporters[name] = fn
}

// RegisterImporter adds an importer constructor under its format name.
func RegisterImporter(name string, fn func() Importer) {
	if _, dup := importers[name]; dup {
		panic("formats: duplicate importer " + name)
	}
	importers[name] = fn
}

// NewExporter returns a fresh exporter for the named format.
func NewExporter(name string) (Exporter, error) {
	fn, ok := exporters[name]
	if !ok {
		return nil, fmt.Errorf("unknown export format %q (have %v)", name, ExporterNames())
	}
	return fn(), nil
}

// NewImporter returns a fresh importer for the named format.
func NewImporter(name string) (Importer, error) {
	fn, ok := importers[name]
	if !ok {
		return nil, fmt.Errorf("unknown import format %q (have %v)", name, ImporterNames())
	}
	return fn(), nil
}

// ExporterNames lists the registered export formats in sorted order.
func ExporterNames() []string {
	names := make([]string, 0, len(exporters))
	for n := range exporters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ImporterNames lists the registered import formats in sorted order.
func ImporterNames() []string {
	names := make([]string, 0, len(importers))
	for n := range importers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
