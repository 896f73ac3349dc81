package connector

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSource is a minimal Openable for exercising the mux.
type memSource struct {
	name string
	data []byte
	err  error
}

func (m memSource) Open(context.Context) (io.ReadCloser, error) {
	if m.err != nil {
		return nil, m.err
	}
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

func (m memSource) Name() string { return m.name }

func TestStreamConcatenatesSources(t *testing.T) {
	s := Stream(context.Background(),
		memSource{name: "a", data: []byte("hello ")},
		memSource{name: "b", data: []byte("world")},
	)
	defer s.Close()

	out, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))

	// After full consumption the snapshot points at the last source.
	meta := s.Current()
	assert.Equal(t, "b", meta.Name)
	assert.Equal(t, int64(5), meta.ByteOffset)
}

func TestStreamOpenErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	s := Stream(context.Background(),
		memSource{name: "a", data: []byte("ok")},
		memSource{name: "b", err: boom},
	)
	defer s.Close()

	_, err := io.ReadAll(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open b")
}

func TestStreamEmptySourceList(t *testing.T) {
	s := Stream(context.Background())
	defer s.Close()

	out, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStreamCloseStopsPump(t *testing.T) {
	s := Stream(context.Background(),
		memSource{name: "a", data: bytes.Repeat([]byte("x"), 1<<20)},
	)
	buf := make([]byte, 16)
	_, err := s.Read(buf)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Read(buf)
	assert.Error(t, err)
}

func TestStreamCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := Stream(ctx, memSource{name: "a", data: []byte("data")})
	defer s.Close()

	_, err := io.ReadAll(s)
	assert.Error(t, err)
}
