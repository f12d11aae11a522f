package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/openvdata/annoconv"
	"github.com/openvdata/annoconv/internal/config"
	"github.com/openvdata/annoconv/internal/fsutil"
	"github.com/openvdata/annoconv/pkg/annotation"
	"github.com/openvdata/annoconv/pkg/convert"
	"github.com/openvdata/annoconv/pkg/formats"
	"github.com/openvdata/annoconv/pkg/formats/native"
	"github.com/openvdata/annoconv/pkg/formats/yolo"
)

func main() {
	var in, out, registryPath, cfgPath string
	var from, to string
	var workers int
	var tolerance float64
	var maskMode, maskCodec string
	var imgName string
	var imgW, imgH int
	var saveCfg bool

	flag.StringVar(&in, "in", "", "input annotation file or directory of native files")
	flag.StringVar(&out, "out", "out", "output directory")
	flag.StringVar(&registryPath, "registry", "", "class registry YAML file")
	flag.StringVar(&cfgPath, "config", "", "configuration file (default "+config.GetConfigPath()+" when present)")
	flag.BoolVar(&saveCfg, "saveconfig", false, "write the effective configuration to "+config.GetConfigPath()+" and exit")

	flag.StringVar(&from, "from", "native", "input format: "+listNames(formats.ImporterNames()))
	flag.StringVar(&to, "to", "coco", "output format: "+listNames(formats.ExporterNames()))

	flag.IntVar(&workers, "workers", 1, "concurrent export workers for native input")
	flag.Float64Var(&tolerance, "tolerance", 0, "mask vectorization tolerance in pixels (0 = exact)")
	flag.StringVar(&maskMode, "maskmode", "index", "semantic mask palette: index|grey|rgb")
	flag.StringVar(&maskCodec, "maskcodec", "png", "semantic mask codec: png|webp")

	flag.StringVar(&imgName, "name", "", "item name for formats that do not carry one (yolo, mask)")
	flag.IntVar(&imgW, "width", 0, "image width for YOLO input")
	flag.IntVar(&imgH, "height", 0, "image height for YOLO input")

	flag.Parse()

	cfg := config.Default()
	if cfgPath == "" {
		if p := config.GetConfigPath(); fsutil.FileExists(p) {
			cfgPath = p
		}
	}
	if cfgPath != "" {
		var err error
		cfg, err = config.LoadFromFile(cfgPath)
		if err != nil {
			log.Fatal(err)
		}
	}
	cfg.Convert.Workers = workers
	cfg.Raster.Tolerance = tolerance
	cfg.Mask.Mode = maskMode
	cfg.Mask.Codec = maskCodec
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	if saveCfg {
		p := config.GetConfigPath()
		if err := cfg.SaveToFile(p); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", p)
		return
	}
	if in == "" || registryPath == "" {
		log.Fatalf("usage: %s -in annotations.json -registry classes.yaml [-from native] [-to coco] [-out outdir] [-workers 4]", filepath.Base(os.Args[0]))
	}

	reg, err := annotation.LoadRegistry(registryPath)
	if err != nil {
		log.Fatal(err)
	}
	conv := annoconv.NewWithConfig(reg, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Native input streams through the batch driver, one batch per file
	// when -in names a directory; everything else is a single foreign
	// file imported and re-exported.
	if from == native.FormatName {
		inputs := []string{in}
		if fi, err := os.Stat(in); err == nil && fi.IsDir() {
			inputs, err = fsutil.ListAnnotationFiles(in)
			if err != nil {
				log.Fatal(err)
			}
			if len(inputs) == 0 {
				log.Fatalf("no .json annotation files under %s", in)
			}
		}
		failed := false
		for _, f := range inputs {
			report, err := conv.ConvertFile(ctx, f, to, out)
			if report != nil {
				printReport(report)
			}
			if err != nil {
				log.Fatalf("batch aborted: %v", err)
			}
			if len(report.Failures) > 0 {
				failed = true
			}
		}
		if failed {
			os.Exit(1)
		}
		return
	}

	set, err := importForeign(conv, in, from, imgName, imgW, imgH)
	if err != nil {
		log.Fatal(err)
	}
	res, err := conv.ExportSet(set, to)
	if err != nil {
		log.Fatal(err)
	}
	for _, w := range res.Warnings {
		log.Printf("warning: %s: %s", w.AnnotationID, w.Message)
	}
	for _, f := range res.Files {
		path := filepath.Join(out, filepath.FromSlash(f.Path))
		if err := fsutil.AtomicWrite(path, f.Data); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", path)
	}
}

// importForeign reads one non-native input file, wiring in the flags
// formats like YOLO need because their files carry no image metadata.
func importForeign(conv *annoconv.Converter, in, from, name string, w, h int) (*annotation.Set, error) {
	if from == yolo.FormatName {
		if w <= 0 || h <= 0 {
			return nil, fmt.Errorf("yolo input needs -width and -height")
		}
		data, err := os.ReadFile(in)
		if err != nil {
			return nil, err
		}
		imp := &yolo.Importer{ItemName: name, Width: w, Height: h}
		return imp.Import(data, conv.Registry())
	}
	return conv.ImportFile(in, from)
}

func printReport(r *convert.Report) {
	log.Printf("status: %s", r.Status)
	log.Printf("records: %d, succeeded: %d, failed: %d", r.Records, r.Succeeded, len(r.Failures))
	for _, w := range r.Warnings {
		log.Printf("warning: %s: %s", w.AnnotationID, w.Message)
	}
	for _, f := range r.Failures {
		log.Printf("record %d (%s): %v", f.Index, f.RecordID, f.Err)
	}
}

func listNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += "|"
		}
		out += n
	}
	return out
}
