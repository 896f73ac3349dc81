package format

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/carlodf/harvest/catalog"
)

// Value normalizes one raw cell value according to the attribute it was
// read through.
//
// Rules:
//   - empty or whitespace-only input yields the empty string
//   - attributes without both a data type and a format pass through trimmed
//   - date-typed attributes with a format are parsed with the permissive
//     grammar and re-rendered; on parse failure the trimmed raw value is
//     returned and a warning logged — a bad date never fails an extraction
//   - every other data type passes through trimmed
func Value(raw string, attr catalog.Attribute) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if attr.DataType == catalog.TypeUnspecified || attr.Format == "" {
		return trimmed
	}
	if attr.DataType != catalog.TypeDate {
		return trimmed
	}
	t, err := ParseDate(trimmed)
	if err != nil {
		log.WithFields(log.Fields{
			"attribute": attr.Name,
			"value":     trimmed,
		}).Warn("date value matches no accepted shape, passing through raw")
		return trimmed
	}
	return RenderDate(t, attr.Format)
}
