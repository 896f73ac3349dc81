package connector

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
)

// mux reads its sources sequentially and exposes them as one stream.
//
// Semantics:
//   - Sources are emitted in slice order; only one is open at a time.
//   - Partial data survives read errors: bytes read before the error are
//     forwarded, then the error is propagated through the pipe.
//   - Current() snapshots the active source name and byte offset; the
//     decoder detects a source boundary when the offset resets to zero
//     under a new (or same) name.
//   - After the last source drains, Read returns io.EOF.
type mux struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	// current holds the latest SrcMeta. Only the pump goroutine stores;
	// readers load via Current().
	current atomic.Value
}

func newMux(ctx context.Context, ops []Openable) *mux {
	pr, pw := io.Pipe()
	m := &mux{pr: pr, pw: pw}

	go m.pump(ctx, ops)
	return m
}

func (m *mux) pump(ctx context.Context, ops []Openable) {
	defer m.pw.Close()

	buf := make([]byte, 32*1024)
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			_ = m.pw.CloseWithError(err)
			return
		}
		rc, err := op.Open(ctx)
		if err != nil {
			_ = m.pw.CloseWithError(fmt.Errorf("open %s: %w", op.Name(), err))
			return
		}
		meta := SrcMeta{Name: op.Name()}
		m.current.Store(meta)

		for {
			n, rerr := rc.Read(buf)
			if n > 0 {
				meta.ByteOffset += int64(n)
				if _, werr := m.pw.Write(buf[:n]); werr != nil {
					rc.Close()
					_ = m.pw.CloseWithError(werr)
					return
				}
				m.current.Store(meta)
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				rc.Close()
				_ = m.pw.CloseWithError(fmt.Errorf("read %s: %w", op.Name(), rerr))
				return
			}
		}
		rc.Close()
	}
}

// Read proxies the multiplexed byte stream.
func (m *mux) Read(p []byte) (int, error) {
	return m.pr.Read(p)
}

// Close closes the read side; the pump goroutine notices the closed pipe
// and terminates.
func (m *mux) Close() error {
	return m.pr.Close()
}

// Current returns the latest source position snapshot.
func (m *mux) Current() SrcMeta {
	val := m.current.Load()
	if val == nil {
		return SrcMeta{}
	}
	return val.(SrcMeta)
}
