package opener

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is an Opener over a regular filesystem file. The file is opened
// lazily; no existence or permission check happens at construction.
type File struct {
	Path string
}

// NewFile constructs a File opener for the given path. The path is cleaned
// but otherwise unchecked until Open.
func NewFile(path string) File {
	return File{Path: filepath.Clean(path)}
}

// Open opens the underlying file. The context is checked before any I/O so
// an already-canceled call short-circuits; os.Open itself is not
// interruptible once begun.
func (f File) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return os.Open(f.Path)
}

// Name returns the cleaned file path.
func (f File) Name() string {
	return f.Path
}

// FilesFromSpec resolves a path or glob specification into one Opener per
// matching file, sorted lexicographically so multi-part sources concatenate
// deterministically. A spec that matches nothing is an error.
func FilesFromSpec(spec string) ([]Opener, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty file spec")
	}
	matches, err := filepath.Glob(spec)
	if err != nil {
		return nil, fmt.Errorf("bad file spec %q: %w", spec, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no files matched %q", spec)
	}
	sort.Strings(matches)
	openers := make([]Opener, len(matches))
	for i, m := range matches {
		openers[i] = NewFile(m)
	}
	return openers, nil
}
