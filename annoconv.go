// Package annoconv converts dataset annotation files between formats.
//
// The native interchange format is a JSON array of per-image records in
// the versioned schema understood by pkg/schema; pkg/stream reads such
// files record by record in bounded memory. Converters for COCO, YOLO,
// Pascal VOC, and semantic mask rasters live under pkg/formats, and
// pkg/convert drives whole-file batches with per-record error isolation.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		"github.com/openvdata/annoconv"
//		"github.com/openvdata/annoconv/pkg/annotation"
//	)
//
//	func main() {
//		reg, err := annotation.LoadRegistry("classes.yaml")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		conv := annoconv.New(reg)
//		report, err := conv.ConvertFile(context.Background(), "annotations.json", "coco", "./out")
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("%s: %d/%d records converted", report.Status, report.Succeeded, report.Records)
//	}
//
// The package consists of four layers:
//
// 1. Model (pkg/geometry, pkg/annotation): geometric primitives and the
// validated in-memory annotation set
// 2. Interchange (pkg/schema, pkg/stream): versioned wire records and
// the streaming reader
// 3. Raster (pkg/raster): polygon/mask conversion with an exact
// round-trip at tolerance zero
// 4. Formats (pkg/formats, pkg/convert): per-format converters and the
// batch driver
package annoconv

import (
	"context"
	"fmt"
	"os"

	"github.com/openvdata/annoconv/internal/config"
	"github.com/openvdata/annoconv/pkg/annotation"
	"github.com/openvdata/annoconv/pkg/convert"
	"github.com/openvdata/annoconv/pkg/formats"
	"github.com/openvdata/annoconv/pkg/formats/coco"
	"github.com/openvdata/annoconv/pkg/formats/maskimg"
	_ "github.com/openvdata/annoconv/pkg/formats/native"
	_ "github.com/openvdata/annoconv/pkg/formats/pascalvoc"
	_ "github.com/openvdata/annoconv/pkg/formats/yolo"
)

// Version of the annotation converter library
const Version = "1.0.0"

// Converter provides a high-level interface for annotation conversion
type Converter struct {
	reg *annotation.Registry
	cfg *config.Config
}

// New creates a new Converter with default configuration
func New(reg *annotation.Registry) *Converter {
	return NewWithConfig(reg, config.Default())
}

// NewWithConfig creates a new Converter with custom configuration
func NewWithConfig(reg *annotation.Registry, cfg *config.Config) *Converter {
	return &Converter{reg: reg, cfg: cfg}
}

// Registry returns the class registry the converter resolves labels with
func (c *Converter) Registry() *annotation.Registry {
	return c.reg
}

// ExportSet converts one annotation set to the named format
func (c *Converter) ExportSet(set *annotation.Set, format string) (*formats.Result, error) {
	exp, err := c.newExporter(format)
	if err != nil {
		return nil, err
	}
	return exp.Export(set, c.reg)
}

// ImportFile reads one foreign-format file into an annotation set
func (c *Converter) ImportFile(path, format string) (*annotation.Set, error) {
	imp, err := formats.NewImporter(format)
	if err != nil {
		return nil, err
	}
	if m, ok := imp.(*maskimg.Importer); ok {
		m.Mode = c.cfg.Mask.Mode
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	return imp.Import(data, c.reg)
}

// ConvertFile streams a native annotation file through the named
// exporter, writing output files under outputDir
func (c *Converter) ConvertFile(ctx context.Context, inputPath, format, outputDir string) (*convert.Report, error) {
	exp, err := c.newExporter(format)
	if err != nil {
		return nil, err
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	batch := convert.New(c.reg, exp, &convert.DirSink{Dir: outputDir}, convert.Options{
		Workers: c.cfg.Convert.Workers,
	})
	return batch.Run(ctx, in)
}

// newExporter builds an exporter with configuration applied
func (c *Converter) newExporter(format string) (formats.Exporter, error) {
	exp, err := formats.NewExporter(format)
	if err != nil {
		return nil, err
	}
	switch e := exp.(type) {
	case *maskimg.Exporter:
		e.Mode = c.cfg.Mask.Mode
		e.Codec = c.cfg.Mask.Codec
	case *coco.Exporter:
		e.Tolerance = c.cfg.Raster.Tolerance
	}
	return exp, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
