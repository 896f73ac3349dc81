package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlodf/harvest/connector"
	"github.com/carlodf/harvest/opener"
)

func stream(t *testing.T, payloads ...opener.Payload) connector.SrcAwareStreamer {
	t.Helper()
	ops := make([]connector.Openable, len(payloads))
	for i, p := range payloads {
		ops[i] = p
	}
	return connector.Stream(context.Background(), ops...)
}

func TestCSVDecoder(t *testing.T) {
	cases := []struct {
		name       string
		sources    []opener.Payload
		opt        CSVOptions
		wantHeader []string
		wantRows   [][]string
		wantErr    string
	}{
		{
			name:       "infer header",
			sources:    []opener.Payload{{SourceName: "a", Data: []byte("a,b\n1,2\n")}},
			wantHeader: []string{"a", "b"},
			wantRows:   [][]string{{"1", "2"}},
		},
		{
			name:    "empty stream",
			sources: []opener.Payload{{SourceName: "a", Data: []byte("")}},
			wantErr: "infer header",
		},
		{
			name:       "explicit header",
			sources:    []opener.Payload{{SourceName: "a", Data: []byte("1,2\n")}},
			opt:        CSVOptions{Header: []string{"a", "b"}},
			wantHeader: []string{"a", "b"},
			wantRows:   [][]string{{"1", "2"}},
		},
		{
			name:    "field count mismatch",
			sources: []opener.Payload{{SourceName: "a", Data: []byte("a,b\n1,2,3\n")}},
			wantErr: "wrong number of fields",
		},
		{
			name:    "duplicate header column",
			sources: []opener.Payload{{SourceName: "a", Data: []byte("a,a\n1,2\n")}},
			wantErr: "duplicate column",
		},
		{
			name: "quoted fields with commas and doubled quotes",
			sources: []opener.Payload{
				{SourceName: "a", Data: []byte("name,notes\n\"Smith, John\",\"said \"\"hi\"\"\"\n")},
			},
			wantHeader: []string{"name", "notes"},
			wantRows:   [][]string{{"Smith, John", `said "hi"`}},
		},
		{
			name:       "empty lines skipped",
			sources:    []opener.Payload{{SourceName: "a", Data: []byte("a,b\n\n1,2\n\n3,4\n")}},
			wantHeader: []string{"a", "b"},
			wantRows:   [][]string{{"1", "2"}, {"3", "4"}},
		},
		{
			name:    "unterminated quote",
			sources: []opener.Payload{{SourceName: "a", Data: []byte("a,b\n\"open,2\n")}},
			wantErr: "quote",
		},
		{
			name: "repeated header dropped at source boundary",
			sources: []opener.Payload{
				{SourceName: "part1", Data: []byte("col1,col2\na1,b1\n")},
				{SourceName: "part2", Data: []byte("col1,col2\na2,b2\n")},
			},
			wantHeader: []string{"col1", "col2"},
			wantRows:   [][]string{{"a1", "b1"}, {"a2", "b2"}},
		},
		{
			name: "headerless continuation source",
			sources: []opener.Payload{
				{SourceName: "part1", Data: []byte("col1,col2\na1,b1\n")},
				{SourceName: "part2", Data: []byte("a2,b2\n")},
			},
			wantHeader: []string{"col1", "col2"},
			wantRows:   [][]string{{"a1", "b1"}, {"a2", "b2"}},
		},
		{
			name: "empty source between parts",
			sources: []opener.Payload{
				{SourceName: "part1", Data: []byte("col1,col2\na1,b1\n")},
				{SourceName: "part2", Data: []byte("")},
				{SourceName: "part3", Data: []byte("col1,col2\na3,b3\n")},
			},
			wantHeader: []string{"col1", "col2"},
			wantRows:   [][]string{{"a1", "b1"}, {"a3", "b3"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dec := NewCSVDecoder(tc.opt)
			it, err := dec.Decode(context.Background(), stream(t, tc.sources...))
			var rows [][]string
			var header []string
			if err == nil {
				defer it.Close()
				for it.Next() {
					rec := it.Record()
					header = rec.Names()
					row := make([]string, rec.Len())
					for i := range row {
						row[i], _ = rec.ByIndex(i)
					}
					rows = append(rows, row)
				}
				err = it.Err()
			}
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantRows, rows)
			if len(rows) > 0 {
				assert.Equal(t, tc.wantHeader, header)
			}
		})
	}
}

func TestExtractorAccess(t *testing.T) {
	it, err := NewCSVDecoder(CSVOptions{}).Decode(context.Background(),
		stream(t, opener.Payload{SourceName: "src", Data: []byte("id,name\n7,Ada\n")}))
	require.NoError(t, err)
	defer it.Close()

	require.True(t, it.Next())
	rec := it.Record()

	v, ok := rec.ByName("name")
	assert.True(t, ok)
	assert.Equal(t, "Ada", v)

	_, ok = rec.ByName("missing")
	assert.False(t, ok)

	_, ok = rec.ByIndex(5)
	assert.False(t, ok)

	assert.Equal(t, 2, rec.Len())
	assert.Equal(t, "src", rec.Meta().Name)
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
}
