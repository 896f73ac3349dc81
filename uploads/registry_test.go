package uploads

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlodf/harvest/opener"
)

func TestBindAndGet(t *testing.T) {
	reg := NewRegistry()
	sess := NewSessionID()

	require.NoError(t, reg.Bind(sess, 1, opener.Payload{SourceName: "a.csv", Data: []byte("a,b\n1,2\n")}))

	p, ok := reg.Get(sess, 1)
	require.True(t, ok)
	assert.Equal(t, "a.csv", p.Name())

	_, ok = reg.Get(sess, 2)
	assert.False(t, ok)
}

func TestBindReplacesPrior(t *testing.T) {
	reg := NewRegistry()
	sess := NewSessionID()

	require.NoError(t, reg.Bind(sess, 1, opener.Payload{SourceName: "old.csv", Data: []byte("x\n1\n")}))
	require.NoError(t, reg.Bind(sess, 1, opener.Payload{SourceName: "new.csv", Data: []byte("x\n2\n")}))

	p, ok := reg.Get(sess, 1)
	require.True(t, ok)
	assert.Equal(t, "new.csv", p.Name())
}

func TestSessionsAreIsolated(t *testing.T) {
	reg := NewRegistry()
	alice, bob := NewSessionID(), NewSessionID()

	require.NoError(t, reg.Bind(alice, 1, opener.Payload{SourceName: "alice.csv", Data: []byte("a\n1\n")}))

	_, ok := reg.Get(bob, 1)
	assert.False(t, ok, "bindings must not leak across sessions")

	_, ok = reg.Session(bob).Payloads(1)
	assert.False(t, ok)

	ops, ok := reg.Session(alice).Payloads(1)
	require.True(t, ok)
	require.Len(t, ops, 1)
	assert.Equal(t, "alice.csv", ops[0].Name())
}

func TestEmptyPayloadRejected(t *testing.T) {
	reg := NewRegistry()
	err := reg.Bind(NewSessionID(), 1, opener.Payload{SourceName: "empty.csv"})
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestBOMStripped(t *testing.T) {
	reg := NewRegistry()
	sess := NewSessionID()
	require.NoError(t, reg.Bind(sess, 1, opener.Payload{
		SourceName: "bom.csv",
		Data:       append([]byte{0xEF, 0xBB, 0xBF}, []byte("a,b\n1,2\n")...),
	}))

	p, _ := reg.Get(sess, 1)
	rc, err := p.Open(context.Background())
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))
}

func TestDrop(t *testing.T) {
	reg := NewRegistry()
	sess := NewSessionID()
	require.NoError(t, reg.Bind(sess, 1, opener.Payload{SourceName: "a.csv", Data: []byte("x\n1\n")}))

	reg.Drop(sess)
	_, ok := reg.Get(sess, 1)
	assert.False(t, ok)
}
