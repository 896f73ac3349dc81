package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  time.Time
		fails bool
	}{
		{name: "day month-name year", input: "15-JAN-2020", want: date(2020, time.January, 15)},
		{name: "month name lower case", input: "3-feb-1999", want: date(1999, time.February, 3)},
		{name: "month name mixed case", input: "28-Dec-2021", want: date(2021, time.December, 28)},
		{name: "slash month first", input: "1/15/2020", want: date(2020, time.January, 15)},
		{name: "slash zero padded", input: "01/05/2020", want: date(2020, time.January, 5)},
		{name: "iso", input: "2020-01-15", want: date(2020, time.January, 15)},
		{name: "dash month first", input: "7-4-1776", want: date(1776, time.July, 4)},
		{name: "surrounding whitespace", input: "  15-JAN-2020 ", want: date(2020, time.January, 15)},
		{name: "word", input: "tomorrow", fails: true},
		{name: "empty", input: "", fails: true},
		{name: "bad month name", input: "15-JANU-2020", fails: true},
		{name: "day out of range", input: "32-JAN-2020", fails: true},
		{name: "month out of range", input: "13/45/2020", fails: true},
		{name: "two digit year", input: "15-JAN-20", fails: true},
		{name: "time attached", input: "2020-01-15T00:00:00", fails: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDate(tc.input)
			if tc.fails {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tc.want), "got %v want %v", got, tc.want)
		})
	}
}

func TestRenderDate(t *testing.T) {
	d := date(2020, time.January, 5)
	cases := []struct {
		format string
		want   string
	}{
		{"DD/MM/YYYY", "05/01/2020"},
		{"MM/DD/YYYY", "01/05/2020"},
		{"YYYY-MM-DD", "2020-01-05"},
		{"MM-DD-YYYY", "01-05-2020"},
		{"DD-MM-YYYY", "05-01-2020"},
		{"M/D/YYYY", "1/5/2020"},
		{"D/M/YYYY", "5/1/2020"},
		{"yyyy-mm-dd", "2020-01-05"}, // case-insensitive token match
		{"dd/mm/yyyy", "05/01/2020"},
		{"something else", "01/05/2020"}, // fallback
		{"", "01/05/2020"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RenderDate(d, tc.format), "format %q", tc.format)
	}
}

// Round trip: a value already in a recognized format renders back to the
// format's own representation after parsing.
func TestParseRenderRoundTrip(t *testing.T) {
	cases := []struct {
		format string
		value  string
	}{
		{"YYYY-MM-DD", "2020-01-15"},
		{"MM/DD/YYYY", "01/15/2020"},
		{"MM-DD-YYYY", "01-15-2020"},
		{"M/D/YYYY", "1/15/2020"},
	}
	for _, tc := range cases {
		parsed, err := ParseDate(tc.value)
		require.NoError(t, err, tc.value)
		assert.Equal(t, tc.value, RenderDate(parsed, tc.format))
	}
}
