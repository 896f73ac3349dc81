// Package connector turns one or more openers into a single byte stream
// while tracking which source the bytes came from. The CSV decoder uses
// that provenance to drop repeated header rows when a data source is split
// across several files.
package connector

import (
	"context"
	"io"
)

// SrcMeta locates the stream position inside the active source. ByteOffset
// counts bytes emitted from that source so far.
type SrcMeta struct {
	Name       string
	ByteOffset int64
}

// SrcAwareStreamer is a readable byte stream that can report, at any time,
// which underlying source is currently being emitted.
type SrcAwareStreamer interface {
	io.ReadCloser

	// Current returns a snapshot of the active source and position. Safe to
	// call concurrently with Read.
	Current() SrcMeta
}

// Stream concatenates the given openers into one SrcAwareStreamer. It is
// the entry point both the engine (one payload per source) and the CLI
// (possibly several files per source) use to feed the decoder.
func Stream(ctx context.Context, ops ...Openable) SrcAwareStreamer {
	return newMux(ctx, ops)
}

// Openable mirrors opener.Opener without importing it, keeping the
// dependency direction opener → connector-free.
type Openable interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
}
