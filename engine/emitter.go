package engine

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/carlodf/harvest/transform"
)

// emitCSV serializes the collected output rows. The header is the canonical
// column list; cells follow the same order, with absent keys emitted empty.
// Quoting is RFC-4180 (encoding/csv doubles embedded quotes and quotes
// cells containing commas, quotes, or newlines); lines end in CRLF.
func emitCSV(columns []string, rows []transform.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	if err := w.Write(columns); err != nil {
		return nil, wrap(KindInternal, err, "write output header")
	}
	cells := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			cells[i] = row[col]
		}
		// encoding/csv renders a lone empty field as a blank line, which
		// readers then skip; quote it explicitly so the row survives.
		if len(cells) == 1 && cells[0] == "" {
			w.Flush()
			buf.WriteString("\"\"\r\n")
			continue
		}
		if err := w.Write(cells); err != nil {
			return nil, wrap(KindInternal, err, "write output row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, wrap(KindInternal, err, "flush output")
	}
	return buf.Bytes(), nil
}

// OutputFilename is the suggested attachment name for an extraction
// produced at the given local time.
func OutputFilename(now time.Time) string {
	return fmt.Sprintf("extracted_data_%s.csv", now.Format("2006-01-02"))
}
