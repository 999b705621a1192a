package util

import (
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"2-Jan-2006",
	"2-Jan-06",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006/01/02",
}

// excel serial day 1 is 1900-01-01, with the fictitious 1900 leap day baked
// in, so day 0 maps to 1899-12-30.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ParseCellDate parses a spreadsheet date cell, accepting the common text
// layouts plus raw excel serial numbers. The result is normalized to
// midnight in loc. ok is false for blank or unrecognized cells.
func ParseCellDate(input string, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return Midnight(parsed, loc), true
		}
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 200000 {
		parsed := excelEpoch.Add(time.Duration(serial * 24 * float64(time.Hour)))
		return Midnight(parsed, loc), true
	}

	return time.Time{}, false
}

// Midnight rebuilds t at 00:00:00 in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
