// Package format normalizes raw CSV cell values according to the attribute
// metadata they are mapped through. Today that means dates: a permissive
// parser over the handful of input shapes seen in source files, and a
// deterministic renderer over the declared output format.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var monthsByName = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// layoutGrammars are the slash/dash input shapes, tried after DD-MON-YYYY
// and in this order.
var layoutGrammars = []string{
	"1/2/2006", // M[M]/D[D]/YYYY, month first
	"2006-1-2", // YYYY-MM-DD
	"1-2-2006", // M[M]-D[D]-YYYY, month first
}

// ParseDate parses a value against the accepted input grammars, in order:
//
//  1. DD-MON-YYYY with an English month abbreviation, any case
//  2. M[M]/D[D]/YYYY
//  3. YYYY-MM-DD
//  4. M[M]-D[D]-YYYY
//
// No time-of-day or zone handling; anything outside these shapes fails.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, ok := parseDayMonthName(value); ok {
		return t, nil
	}
	for _, layout := range layoutGrammars {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q matches no accepted date shape", value)
}

// parseDayMonthName handles the DD-MON-YYYY grammar, e.g. "15-JAN-2020".
func parseDayMonthName(value string) (time.Time, bool) {
	parts := strings.Split(value, "-")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, false
	}
	month, ok := monthsByName[strings.ToUpper(parts[1])]
	if !ok {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil || len(parts[2]) != 4 {
		return time.Time{}, false
	}
	if day < 1 || day > daysIn(month, year) {
		return time.Time{}, false
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// RenderDate formats t according to the declared output format. The format
// string is matched case-insensitively against the recognized tokens;
// anything unrecognized falls back to MM/DD/YYYY.
func RenderDate(t time.Time, outFormat string) string {
	switch strings.ToUpper(strings.TrimSpace(outFormat)) {
	case "DD/MM/YYYY":
		return t.Format("02/01/2006")
	case "MM/DD/YYYY":
		return t.Format("01/02/2006")
	case "YYYY-MM-DD":
		return t.Format("2006-01-02")
	case "MM-DD-YYYY":
		return t.Format("01-02-2006")
	case "DD-MM-YYYY":
		return t.Format("02-01-2006")
	case "M/D/YYYY":
		return t.Format("1/2/2006")
	case "D/M/YYYY":
		return t.Format("2/1/2006")
	default:
		return t.Format("01/02/2006")
	}
}
