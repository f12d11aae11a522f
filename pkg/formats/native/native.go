// Package native converts annotation sets to and from the platform's own
// JSON record schema. The conversion is lossless: importing an exported
// record reproduces the original set exactly, so native is the reference
// round-trip format.
package native

import (
	"encoding/json"
	"fmt"

	"github.com/openvdata/annoconv/pkg/annotation"
	"github.com/openvdata/annoconv/pkg/formats"
	"github.com/openvdata/annoconv/pkg/schema"
)

// FormatName is the registry name of the native format.
const FormatName = "native"

func init() {
	formats.RegisterExporter(FormatName, func() formats.Exporter { return &Exporter{} })
	formats.RegisterImporter(FormatName, func() formats.Importer { return &Importer{} })
}

// Exporter writes one native JSON record per annotation set.
type Exporter struct{}

// Name implements formats.Exporter.
func (e *Exporter) Name() string { return FormatName }

// Export serializes the set as an indented native record named after the
// item.
func (e *Exporter) Export(set *annotation.Set, reg *annotation.Registry) (*formats.Result, error) {
	for _, label := range set.Labels() {
		if _, err := reg.Lookup(label); err != nil {
			return nil, err
		}
	}
	rec := schema.FromSet(set)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal native record: %w", err)
	}
	data = append(data, '\n')
	return &formats.Result{
		Files: []formats.File{{Path: stemOf(set.Item.Name) + ".json", Data: data}},
	}, nil
}

// Importer reads one native JSON record.
type Importer struct{}

// Name implements formats.Importer.
func (i *Importer) Name() string { return FormatName }

// Import validates and materializes a single native record document.
func (i *Importer) Import(data []byte, reg *annotation.Registry) (*annotation.Set, error) {
	rec, err := schema.Validate(data)
	if err != nil {
		return nil, err
	}
	return schema.Materialize(rec, reg)
}

func stemOf(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i]
		}
		if name[i] == '/' {
			break
		}
	}
	return name
}
