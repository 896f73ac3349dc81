package transform

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/carlodf/harvest/connector"
)

var errNilMapper = errors.New("transform: nil mapper")

// CSVOptions configures a CSV decoder.
//
// When Header is non-empty it is the canonical header and every record must
// match its length; otherwise the first record of the stream is taken as
// the header. Comma defaults to ','.
type CSVOptions struct {
	Comma  rune
	Header []string
}

// NewCSVDecoder returns a Decoder for RFC-4180-style CSV input.
//
// The decoder understands streams assembled from several sources by
// connector.Stream: when the header was inferred, a row at the start of a
// new source that equals the canonical header is treated as that source's
// local header and dropped. Empty lines are skipped; quoted fields may
// contain commas, quotes (doubled), and newlines.
func NewCSVDecoder(opt CSVOptions) Decoder {
	d := &csvDecoder{comma: ',', header: opt.Header}
	if opt.Comma != 0 {
		d.comma = opt.Comma
	}
	return d
}

type csvDecoder struct {
	comma  rune
	header []string
}

func (d *csvDecoder) Decode(ctx context.Context, rc connector.SrcAwareStreamer) (RecordIterator, error) {
	r := csv.NewReader(rc)
	r.Comma = d.comma
	r.ReuseRecord = false
	r.TrimLeadingSpace = true

	inferred := len(d.header) == 0
	var header []string
	if inferred {
		first, err := r.Read()
		if err != nil {
			return nil, fmt.Errorf("infer header: %w", err)
		}
		header = append(header, first...)
	} else {
		header = append(header, d.header...)
	}
	r.FieldsPerRecord = len(header)
	if err := validateHeader(header); err != nil {
		return nil, fmt.Errorf("malformed header: %w", err)
	}

	it := &csvIterator{
		reader:   r,
		stream:   rc,
		header:   header,
		inferred: inferred,
		index:    indexNames(header),
		lastMeta: rc.Current(),
	}
	// Release the stream if the caller's context ends before iteration does.
	go func() {
		<-ctx.Done()
		_ = rc.Close()
	}()
	return it, nil
}

type csvIterator struct {
	reader *csv.Reader
	stream connector.SrcAwareStreamer

	header   []string
	inferred bool
	index    map[string]int

	// atStart marks a source boundary: the next row must be classified as
	// either a repeated header (dropped) or data.
	atStart bool
	pending []string
	// pendingMeta travels with pending so provenance stays attached to the
	// pushed-back row.
	pendingMeta connector.SrcMeta
	hasPending  bool

	current     []string
	currentMeta connector.SrcMeta
	lastMeta    connector.SrcMeta

	// stickyErr latches the first failure; Next returns false forever after.
	stickyErr error
}

func (it *csvIterator) Next() bool {
	if it.stickyErr != nil {
		return false
	}
	for {
		if it.hasPending {
			it.current = it.pending
			it.currentMeta = it.pendingMeta
			it.hasPending = false
			return true
		}
		row, err := it.reader.Read()
		meta := it.stream.Current()
		if it.sourceChanged(meta) {
			it.atStart = true
		}
		if it.atStart {
			if err == io.EOF {
				// Empty source; wait for the stream to move on.
				it.atStart = false
				it.lastMeta = meta
				continue
			}
			if err != nil {
				it.stickyErr = err
				return false
			}
			it.atStart = false
			it.lastMeta = meta
			if it.inferred && it.isHeader(row) {
				continue
			}
			it.pending = row
			it.pendingMeta = meta
			it.hasPending = true
			continue
		}
		if err == io.EOF {
			return false
		}
		if err != nil {
			it.stickyErr = err
			return false
		}
		it.current = row
		it.currentMeta = meta
		it.lastMeta = meta
		return true
	}
}

func (it *csvIterator) Record() Extractor {
	return record{fields: it.current, header: it.header, index: it.index, meta: it.currentMeta}
}

func (it *csvIterator) Err() error {
	return it.stickyErr
}

func (it *csvIterator) Close() error {
	return it.stream.Close()
}

func (it *csvIterator) isHeader(row []string) bool {
	if len(row) != len(it.header) {
		return false
	}
	for i := range row {
		if row[i] != it.header[i] {
			return false
		}
	}
	return true
}

// sourceChanged reports whether meta belongs to a different source than the
// last observed one, or to a re-emitted source whose offset wrapped to zero.
func (it *csvIterator) sourceChanged(meta connector.SrcMeta) bool {
	if it.lastMeta.Name == "" {
		return true
	}
	if meta.Name != it.lastMeta.Name {
		return true
	}
	return meta.ByteOffset == 0 && it.lastMeta.ByteOffset != 0
}

// record is the Extractor over one CSV row.
type record struct {
	fields []string
	header []string
	index  map[string]int
	meta   connector.SrcMeta
}

func (r record) ByIndex(i int) (string, bool) {
	if i < 0 || i >= len(r.fields) {
		return "", false
	}
	return r.fields[i], true
}

func (r record) ByName(name string) (string, bool) {
	i, ok := r.index[name]
	if !ok {
		return "", false
	}
	return r.fields[i], true
}

func (r record) Len() int {
	return len(r.fields)
}

func (r record) Names() []string {
	out := make([]string, len(r.header))
	copy(out, r.header)
	return out
}

func (r record) Meta() connector.SrcMeta {
	return r.meta
}

func validateHeader(h []string) error {
	seen := make(map[string]struct{}, len(h))
	for _, name := range h {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate column %q in header %q", name, h)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func indexNames(names []string) map[string]int {
	idx := make(map[string]int, len(names))
	for i, name := range names {
		idx[name] = i
	}
	return idx
}
