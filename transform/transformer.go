// Package transform decodes source-aware byte streams into records and maps
// them into typed values. The extraction pipeline is:
//
//	connector.SrcAwareStreamer (bytes + provenance)
//	  → Decoder (stream of generic records)
//	  → Mapper[T] (record → T)
//	  → StructIterator[T] (stream of typed values)
//
// The decoder layer is format-specific (CSV here); the mapper layer is
// schema-specific. Keeping them separate lets one decoder serve any mapping;
// ReadTable is the mapping the engine uses to materialize tables.
package transform

import (
	"context"

	"github.com/carlodf/harvest/connector"
)

// Extractor is read-only access to a single decoded record: a flat list of
// fields addressable by position and, when the format has a header, by name.
type Extractor interface {
	// ByIndex returns the field at index i; ok is false out of bounds.
	ByIndex(i int) (string, bool)

	// ByName returns the field under the given header name; ok is false
	// when the name is unknown or the format carries no header.
	ByName(name string) (string, bool)

	// Len reports the number of fields in the record.
	Len() int

	// Names returns a copy of the header names, or nil without a header.
	Names() []string

	// Meta returns the provenance of the record (source name, offset).
	Meta() connector.SrcMeta
}

// RecordIterator is a forward-only iterator over decoded records.
//
//	it, err := dec.Decode(ctx, stream)
//	defer it.Close()
//	for it.Next() {
//	    rec := it.Record()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type RecordIterator interface {
	// Next advances to the next record. A false return means EOF or a
	// terminal error; check Err to distinguish.
	Next() bool

	// Record returns the current record. Valid only after Next returned
	// true, and only until the next call to Next.
	Record() Extractor

	// Err returns the first non-EOF error encountered, or nil.
	Err() error

	// Close releases the underlying stream. Safe to call more than once.
	Close() error
}

// StructIterator iterates typed values produced by a Mapper.
type StructIterator[T any] interface {
	Next() bool
	Struct() T
	Err() error
	Close() error
}

// Decoder turns a source-aware byte stream into records. Format-specific
// configuration belongs to the Decoder's constructor, not to Decode.
type Decoder interface {
	// Decode consumes rc and returns an iterator over its records. The
	// iterator owns rc and closes it when iteration ends.
	Decode(ctx context.Context, rc connector.SrcAwareStreamer) (RecordIterator, error)
}

// Mapper converts one decoded record into a value of type T.
type Mapper[T any] func(Extractor) (T, error)

// Transformer composes a Decoder with a Mapper into a typed stream.
type Transformer[T any] interface {
	Transform(ctx context.Context, rc connector.SrcAwareStreamer, mapFn Mapper[T]) (StructIterator[T], error)
}

// NewTransformer builds a Transformer[T] over the given Decoder.
func NewTransformer[T any](decoder Decoder) Transformer[T] {
	if decoder == nil {
		panic("transform: decoder is nil")
	}
	return &decodeMapTransform[T]{decoder: decoder}
}

type decodeMapTransform[T any] struct {
	decoder Decoder
}

func (t *decodeMapTransform[T]) Transform(
	ctx context.Context,
	rc connector.SrcAwareStreamer,
	mapFn Mapper[T],
) (StructIterator[T], error) {
	if mapFn == nil {
		return nil, errNilMapper
	}
	recIt, err := t.decoder.Decode(ctx, rc)
	if err != nil {
		return nil, err
	}
	return &mappedIterator[T]{inner: recIt, mapFn: mapFn}, nil
}

type mappedIterator[T any] struct {
	inner RecordIterator
	mapFn Mapper[T]

	cur  T
	err  error
	done bool
}

func (m *mappedIterator[T]) Next() bool {
	if m.done || m.err != nil {
		m.done = true
		return false
	}
	if !m.inner.Next() {
		m.done = true
		return false
	}
	val, err := m.mapFn(m.inner.Record())
	if err != nil {
		m.err = err
		m.done = true
		return false
	}
	m.cur = val
	return true
}

func (m *mappedIterator[T]) Struct() T {
	return m.cur
}

func (m *mappedIterator[T]) Err() error {
	if m.err != nil {
		return m.err
	}
	return m.inner.Err()
}

func (m *mappedIterator[T]) Close() error {
	m.done = true
	return m.inner.Close()
}
