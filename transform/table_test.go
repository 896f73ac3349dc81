package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlodf/harvest/opener"
)

func TestReadTable(t *testing.T) {
	table, err := ReadTable(context.Background(),
		stream(t, opener.Payload{SourceName: "patients", Data: []byte(" pid , dob \n 7 , 15-JAN-2020 \n8,\n")}))
	require.NoError(t, err)

	assert.Equal(t, []string{"pid", "dob"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, Row{"pid": "7", "dob": "15-JAN-2020"}, table.Rows[0])
	assert.Equal(t, Row{"pid": "8", "dob": ""}, table.Rows[1])

	assert.True(t, table.HasColumn("pid"))
	assert.False(t, table.HasColumn("name"))
}

func TestReadTableHeaderOnly(t *testing.T) {
	table, err := ReadTable(context.Background(),
		stream(t, opener.Payload{SourceName: "empty", Data: []byte("a,b\n")}))
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
}

func TestReadTableParseError(t *testing.T) {
	_, err := ReadTable(context.Background(),
		stream(t, opener.Payload{SourceName: "bad", Data: []byte("a,b\n1,2,3\n")}))
	require.Error(t, err)
}

func TestReadTableMultiPart(t *testing.T) {
	table, err := ReadTable(context.Background(), stream(t,
		opener.Payload{SourceName: "p1", Data: []byte("id,v\n1,x\n")},
		opener.Payload{SourceName: "p2", Data: []byte("id,v\n2,y\n")},
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "v"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "2", table.Rows[1]["id"])
}
