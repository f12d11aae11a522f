// Package convert drives whole-file conversions: it streams records from
// a native annotation file, materializes each into a set, hands the set
// to an exporter, and writes the resulting files through a sink.
//
// A batch moves Pending -> InProgress -> one of Completed,
// CompletedWithErrors, or Aborted. Malformed records are recorded and
// skipped; structural corruption, an unsupported schema version, or
// context cancellation abort the batch. The report lists failures in
// record order regardless of how many workers ran.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/openvdata/annoconv/pkg/annotation"
	"github.com/openvdata/annoconv/pkg/errdefs"
	"github.com/openvdata/annoconv/pkg/formats"
	"github.com/openvdata/annoconv/pkg/stream"
)

// Status is the lifecycle state of a batch.
type Status int32

const (
	// StatusPending means Run has not been called yet.
	StatusPending Status = iota
	// StatusInProgress means records are being converted.
	StatusInProgress
	// StatusCompleted means every record converted cleanly.
	StatusCompleted
	// StatusCompletedWithErrors means the batch finished but some
	// records failed.
	StatusCompletedWithErrors
	// StatusAborted means the batch stopped before reaching the end of
	// the input.
	StatusAborted
)

// String returns the lifecycle state name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusCompletedWithErrors:
		return "completed_with_errors"
	case StatusAborted:
		return "aborted"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Sink receives the files an exporter produces.
type Sink interface {
	// WriteFile stores data under path. Writing the same path twice
	// replaces the earlier content.
	WriteFile(path string, data []byte) error
}

// Failure describes one record that did not convert.
type Failure struct {
	// Index is the zero-based position of the record in the input.
	Index int
	// RecordID names the record when the input carried a usable name.
	RecordID string
	// Err is what went wrong.
	Err error
}

// Report summarizes a finished (or aborted) batch.
type Report struct {
	Status    Status
	Records   int
	Succeeded int
	Failures  []Failure
	Warnings  []formats.Warning
}

// Options tune a batch.
type Options struct {
	// Workers is the number of concurrent export workers. Values below
	// 2 run the batch sequentially.
	Workers int
	// Logger receives progress lines. Nil uses the standard logger.
	Logger *log.Logger
}

// Batch converts one native input through one exporter.
type Batch struct {
	reg    *annotation.Registry
	exp    formats.Exporter
	sink   Sink
	opts   Options
	status atomic.Int32
}

// New returns a batch in the pending state.
func New(reg *annotation.Registry, exp formats.Exporter, sink Sink, opts Options) *Batch {
	return &Batch{reg: reg, exp: exp, sink: sink, opts: opts}
}

// Status reports the batch's current lifecycle state. Safe to call from
// other goroutines while Run is in flight.
func (b *Batch) Status() Status {
	return Status(b.status.Load())
}

// Run converts every record in r. The returned report is non-nil even
// when the batch aborts; the error is non-nil only for an abort.
func (b *Batch) Run(ctx context.Context, r io.Reader) (*Report, error) {
	if Status(b.status.Load()) != StatusPending {
		return nil, errors.New("convert: batch already ran")
	}
	b.status.Store(int32(StatusInProgress))

	logger := b.opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	report := &Report{}
	var err error
	if b.opts.Workers > 1 {
		err = b.runParallel(ctx, r, report, logger)
	} else {
		err = b.runSequential(ctx, r, report, logger)
	}

	switch {
	case err != nil:
		report.Status = StatusAborted
	case len(report.Failures) > 0:
		report.Status = StatusCompletedWithErrors
	default:
		report.Status = StatusCompleted
	}
	b.status.Store(int32(report.Status))
	logger.Printf("convert: batch %s: %d/%d records succeeded", report.Status, report.Succeeded, report.Records)
	return report, err
}

func (b *Batch) runSequential(ctx context.Context, r io.Reader, report *Report, logger *log.Logger) error {
	p := stream.NewParser(r, b.reg)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		set, err := p.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if !b.recordFailure(report, err, logger) {
				return err
			}
			continue
		}
		index := p.Index() - 1
		report.Records++
		res, err := b.exp.Export(set, b.reg)
		if err == nil {
			err = b.writeResult(res)
		}
		if err != nil {
			report.Failures = append(report.Failures, Failure{Index: index, RecordID: set.Item.Name, Err: err})
			logger.Printf("convert: record %d (%s): %v", index, set.Item.Name, err)
			continue
		}
		report.Succeeded++
		report.Warnings = append(report.Warnings, res.Warnings...)
	}
}

func (b *Batch) runParallel(ctx context.Context, r io.Reader, report *Report, logger *log.Logger) error {
	type job struct {
		index int
		set   *annotation.Set
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)

	var mu sync.Mutex
	failures := make(map[int]Failure)
	var warnings []formats.Warning
	succeeded := 0

	p := stream.NewParser(r, b.reg)
	var runErr error
	for {
		if err := gctx.Err(); err != nil {
			runErr = err
			break
		}
		set, err := p.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !b.recordFailureLocked(&mu, failures, report, err, logger) {
				runErr = err
				break
			}
			continue
		}
		mu.Lock()
		report.Records++
		mu.Unlock()
		j := job{index: p.Index() - 1, set: set}
		g.Go(func() error {
			res, err := b.exp.Export(j.set, b.reg)
			if err == nil {
				err = b.writeResult(res)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[j.index] = Failure{Index: j.index, RecordID: j.set.Item.Name, Err: err}
				logger.Printf("convert: record %d (%s): %v", j.index, j.set.Item.Name, err)
				return nil
			}
			succeeded++
			if res != nil {
				warnings = append(warnings, res.Warnings...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}

	report.Succeeded = succeeded
	report.Warnings = append(report.Warnings, warnings...)
	for _, f := range failures {
		report.Failures = append(report.Failures, f)
	}
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Index < report.Failures[j].Index
	})
	return runErr
}

// recordFailure files a parser error. It returns false when the error is
// fatal and the batch must abort.
func (b *Batch) recordFailure(report *Report, err error, logger *log.Logger) bool {
	if errdefs.IsFatal(err) || !errdefs.IsRecordError(err) {
		return false
	}
	var rerr *errdefs.RecordError
	errors.As(err, &rerr)
	report.Records++
	report.Failures = append(report.Failures, Failure{Index: rerr.Index, RecordID: rerr.RecordID, Err: err})
	logger.Printf("convert: record %d (%s): %v", rerr.Index, rerr.RecordID, err)
	return true
}

func (b *Batch) recordFailureLocked(mu *sync.Mutex, failures map[int]Failure, report *Report, err error, logger *log.Logger) bool {
	if errdefs.IsFatal(err) || !errdefs.IsRecordError(err) {
		return false
	}
	var rerr *errdefs.RecordError
	errors.As(err, &rerr)
	mu.Lock()
	report.Records++
	failures[rerr.Index] = Failure{Index: rerr.Index, RecordID: rerr.RecordID, Err: err}
	mu.Unlock()
	logger.Printf("convert: record %d (%s): %v", rerr.Index, rerr.RecordID, err)
	return true
}

// writeResult stores a set's files. Files land in the sink only after
// the whole set exported cleanly.
func (b *Batch) writeResult(res *formats.Result) error {
	for _, f := range res.Files {
		if err := b.sink.WriteFile(f.Path, f.Data); err != nil {
			return fmt.Errorf("writing %s: %w", f.Path, err)
		}
	}
	return nil
}
