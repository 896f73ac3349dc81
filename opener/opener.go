// Package opener abstracts where a data source's bytes come from: an
// uploaded payload held in memory, a local file, or anything else that can
// hand back a ReadCloser. The extraction engine only ever sees Openers, so
// the HTTP upload path and the offline CLI path share one read pipeline.
package opener

import (
	"context"
	"io"
)

// Opener provides lazy read access to one byte source. Name is the stable
// identity of the source; for files it is the cleaned path, for uploaded
// payloads the declared file name.
type Opener interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
}
