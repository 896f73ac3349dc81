package format

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carlodf/harvest/catalog"
)

func TestValue(t *testing.T) {
	dateAttr := catalog.Attribute{Name: "dob", DataType: catalog.TypeDate, Format: "YYYY-MM-DD"}

	cases := []struct {
		name string
		raw  string
		attr catalog.Attribute
		want string
	}{
		{name: "empty", raw: "", attr: dateAttr, want: ""},
		{name: "whitespace only", raw: "   ", attr: dateAttr, want: ""},
		{name: "no type metadata", raw: " hello ", attr: catalog.Attribute{Name: "x"}, want: "hello"},
		{name: "type without format", raw: "15-JAN-2020", attr: catalog.Attribute{Name: "d", DataType: catalog.TypeDate}, want: "15-JAN-2020"},
		{name: "date reformatted", raw: "15-JAN-2020", attr: dateAttr, want: "2020-01-15"},
		{name: "date already canonical", raw: "2020-01-15", attr: dateAttr, want: "2020-01-15"},
		{name: "date parse failure passes through", raw: "tomorrow", attr: dateAttr, want: "tomorrow"},
		{name: "date parse failure trimmed", raw: "  tomorrow  ", attr: dateAttr, want: "tomorrow"},
		{
			name: "number passes through",
			raw:  " 42.5 ",
			attr: catalog.Attribute{Name: "n", DataType: catalog.TypeNumber, Format: "0.00"},
			want: "42.5",
		},
		{
			name: "string passes through",
			raw:  "Ada",
			attr: catalog.Attribute{Name: "s", DataType: catalog.TypeString, Format: "upper"},
			want: "Ada",
		},
		{
			name: "unknown output format falls back to US order",
			raw:  "2020-01-15",
			attr: catalog.Attribute{Name: "d", DataType: catalog.TypeDate, Format: "QQQ"},
			want: "01/15/2020",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Value(tc.raw, tc.attr))
		})
	}
}
