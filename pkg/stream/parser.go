// Package stream incrementally decodes large native annotation documents.
// The top level of a document is a JSON array of per-item records; the
// parser consumes it record by record through a bounded read buffer, so
// peak memory depends on the largest single record, not on the file size.
package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/openvdata/annoconv/pkg/annotation"
	"github.com/openvdata/annoconv/pkg/errdefs"
	"github.com/openvdata/annoconv/pkg/schema"
)

// defaultBufferSize is the size of the bounded read buffer.
const defaultBufferSize = 64 * 1024

// Parser is a single-pass pull iterator over a native annotation stream.
// It is not restartable once consumed.
type Parser struct {
	dec     *json.Decoder
	reg     *annotation.Registry
	index   int
	started bool
	done    bool
	fatal   error
}

// NewParser wraps a byte stream. The registry resolves class labels while
// records are materialized.
func NewParser(r io.Reader, reg *annotation.Registry) *Parser {
	return &Parser{
		dec: json.NewDecoder(bufio.NewReaderSize(r, defaultBufferSize)),
		reg: reg,
	}
}

// Next returns the next validated annotation set. It returns io.EOF when
// the stream is exhausted. A *errdefs.RecordError reports a failed record
// and the caller may keep calling Next; any other error is fatal and the
// sequence has ended.
func (p *Parser) Next() (*annotation.Set, error) {
	if p.fatal != nil {
		return nil, p.fatal
	}
	if p.done {
		return nil, io.EOF
	}
	if !p.started {
		if err := p.expectDelim('['); err != nil {
			return nil, p.abort(err)
		}
		p.started = true
	}
	if !p.dec.More() {
		if err := p.expectDelim(']'); err != nil {
			return nil, p.abort(err)
		}
		p.done = true
		return nil, io.EOF
	}

	index := p.index
	p.index++

	var raw json.RawMessage
	if err := p.dec.Decode(&raw); err != nil {
		// A decode failure inside the array means the container itself is
		// broken; there is no way to resynchronize on the next record.
		return nil, p.abort(fmt.Errorf("%w: %v", errdefs.ErrStructuralCorruption, err))
	}

	rec, err := schema.Validate(raw)
	if err != nil {
		if errors.Is(err, errdefs.ErrUnsupportedVersion) {
			return nil, p.abort(err)
		}
		return nil, &errdefs.RecordError{Index: index, RecordID: recordID(raw), Err: err}
	}
	set, err := schema.Materialize(rec, p.reg)
	if err != nil {
		return nil, &errdefs.RecordError{Index: index, RecordID: rec.Item.Name, Err: err}
	}
	return set, nil
}

// Index returns the number of records consumed so far.
func (p *Parser) Index() int { return p.index }

func (p *Parser) expectDelim(want json.Delim) error {
	tok, err := p.dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", errdefs.ErrStructuralCorruption, err)
	}
	d, ok := tok.(json.Delim)
	if !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", errdefs.ErrStructuralCorruption, want, tok)
	}
	return nil
}

func (p *Parser) abort(err error) error {
	p.fatal = err
	return err
}

// recordID digs the item name out of a raw record for error reporting,
// tolerating any malformation.
func recordID(raw json.RawMessage) string {
	var peek struct {
		Item struct {
			Name string `json:"name"`
		} `json:"item"`
		Image struct {
			Filename string `json:"filename"`
		} `json:"image"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return ""
	}
	if peek.Item.Name != "" {
		return peek.Item.Name
	}
	return peek.Image.Filename
}
