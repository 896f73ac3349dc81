package opener

import (
	"bytes"
	"context"
	"io"
)

// Payload is an Opener over an in-memory byte slice. The upload registry
// stores one Payload per bound data source; tests use it to feed synthetic
// CSVs through the pipeline without touching the filesystem.
type Payload struct {
	// SourceName identifies the payload, typically the uploaded file name.
	SourceName string
	// Data is returned verbatim by Open.
	Data []byte
}

// Open returns a fresh reader positioned at the start of the payload bytes.
// The bytes are read in place, not copied; Open always succeeds.
func (p Payload) Open(_ context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(p.Data)), nil
}

// Name returns the payload's source identity.
func (p Payload) Name() string {
	return p.SourceName
}

// Size reports the payload length in bytes.
func (p Payload) Size() int64 {
	return int64(len(p.Data))
}
