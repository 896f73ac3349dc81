package transform

import (
	"context"
	"strings"

	"github.com/carlodf/harvest/connector"
)

// Row maps header name → cell value for one decoded data row.
type Row map[string]string

// Table is a fully materialized CSV: header columns in declared order plus
// every data row. The extraction engine holds the master table and all
// reference tables in memory for the duration of one run.
type Table struct {
	Columns []string
	Rows    []Row
}

// HasColumn reports whether the table's header contains name.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ReadTable decodes the stream into a Table. Header names and cells are
// trimmed of surrounding whitespace; fully empty lines never reach the
// record stream. Quoting follows RFC 4180. Columns is taken from the first
// data row, so a payload with a header and no data rows yields a Table with
// no Columns and no Rows.
func ReadTable(ctx context.Context, rc connector.SrcAwareStreamer) (*Table, error) {
	table := &Table{}

	// The mapper sees the header through each record's extractor; capture
	// the column order from the first record.
	mapFn := func(rec Extractor) (Row, error) {
		names := rec.Names()
		if table.Columns == nil {
			cols := make([]string, len(names))
			for i, n := range names {
				cols[i] = strings.TrimSpace(n)
			}
			table.Columns = cols
		}
		row := make(Row, len(names))
		for i, name := range names {
			val, _ := rec.ByIndex(i)
			row[strings.TrimSpace(name)] = strings.TrimSpace(val)
		}
		return row, nil
	}

	it, err := NewTransformer[Row](NewCSVDecoder(CSVOptions{})).Transform(ctx, rc, mapFn)
	if err != nil {
		rc.Close()
		return nil, err
	}
	defer it.Close()

	for it.Next() {
		table.Rows = append(table.Rows, it.Struct())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return table, nil
}
