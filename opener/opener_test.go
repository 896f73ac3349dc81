package opener

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadOpen(t *testing.T) {
	p := Payload{SourceName: "patients.csv", Data: []byte("pid\n7\n")}

	rc, err := p.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "pid\n7\n", string(data))
	assert.Equal(t, "patients.csv", p.Name())
	assert.Equal(t, int64(6), p.Size())
}

func TestFileOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	f := NewFile(path)
	rc, err := f.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))
}

func TestFileOpenCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFile("anywhere.csv").Open(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileOpenMissing(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "nope.csv")).Open(context.Background())
	assert.Error(t, err)
}

func TestFilesFromSpec(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.csv", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0o644))
	}

	ops, err := FilesFromSpec(filepath.Join(dir, "*.csv"))
	require.NoError(t, err)
	require.Len(t, ops, 2)
	// Lexicographic order keeps multi-part concatenation deterministic.
	assert.Equal(t, filepath.Join(dir, "a.csv"), ops[0].Name())
	assert.Equal(t, filepath.Join(dir, "b.csv"), ops[1].Name())
}

func TestFilesFromSpecNoMatch(t *testing.T) {
	_, err := FilesFromSpec(filepath.Join(t.TempDir(), "*.csv"))
	assert.Error(t, err)

	_, err = FilesFromSpec("   ")
	assert.Error(t, err)
}
