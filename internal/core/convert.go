package core

// convert.go coerces raw spreadsheet cells into attribute values.
//
// These functions handle the messy reality of hand-maintained workbooks:
//   - Thousands separators, currency symbols and spaces inside numbers
//   - Comma or dot decimal separators
//   - Native date cells, spreadsheet date serials and several string layouts
//   - Excel formula prefixes (="value") and stray quotes around numbers and dates
//
// None of them return errors: an unusable cell yields ok=false and the caller
// decides between a fallback value and leaving the attribute unset.

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// dateLayouts are tried in order; the first layout that parses wins.
// Day-first comes before month-first, so 03/04/2024 is the 3rd of April.
var dateLayouts = []string{
	"2006-1-2",
	"2/1/2006",
	"1/2/2006",
	"2-1-2006",
}

// isoTimestampLayouts are accepted in addition to dateLayouts; the time part is dropped.
var isoTimestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// ToText returns the cell text with surrounding whitespace trimmed; quotes and
// other characters are kept. ok is false when nothing is left.
func ToText(c Cell) (string, bool) {
	if c.IsEmpty() {
		return "", false
	}
	s := strings.TrimSpace(c.String())
	return s, s != ""
}

// ParseNumeric converts a noisy numeric string into a float64.
//
// Everything except digits, '.', ',' and a leading sign is discarded, so
// "1 234,50 €" and "$1,234.50" both give 1234.5. Accounting negatives
// "(123.45)" are honoured.
//
// Separator rules:
//   - both '.' and ',' present: the right-most one is the decimal separator
//   - one kind present several times: it groups thousands
//   - one kind present once: it is the decimal separator
func ParseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	var b strings.Builder
	b.Grow(len(s))
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
			b.WriteRune(r)
		case r == '.' || r == ',':
			b.WriteRune(r)
		case r == '-' && digits == 0 && b.Len() == 0:
			negative = !negative
		}
	}
	if digits == 0 {
		return 0, false
	}

	cleaned := normalizeSeparators(b.String())
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		f = -f
	}
	return f, true
}

// normalizeSeparators rewrites s (digits, '.' and ',' only) so that '.' is
// the sole decimal separator and grouping separators are removed.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec := lastDot
		if lastComma > lastDot {
			dec = lastComma
		}
		intPart := strings.NewReplacer(".", "", ",", "").Replace(s[:dec])
		fracPart := strings.NewReplacer(".", "", ",", "").Replace(s[dec+1:])
		return intPart + "." + fracPart

	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)

	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			return strings.ReplaceAll(s, ".", "")
		}
		return s
	}
	return s
}

// ToNumeric converts a cell to float64. Native numbers pass through.
func ToNumeric(c Cell) (float64, bool) {
	switch c.Kind {
	case CellNumber:
		return c.Num, true
	case CellString:
		return ParseNumeric(CleanCell(c.Str))
	default:
		return 0, false
	}
}

// ParseDate parses a date string against the supported layouts.
// The result is a UTC date at midnight.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), true
		}
	}
	for _, layout := range isoTimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), true
		}
	}
	return time.Time{}, false
}

// ToDate converts a cell to a date. Native date cells are taken as-is and a
// number in a date column is read as a spreadsheet date serial.
func ToDate(c Cell) (time.Time, bool) {
	switch c.Kind {
	case CellTime:
		return dateOnly(c.Time), true
	case CellNumber:
		t, err := excelize.ExcelDateToTime(c.Num, false)
		if err != nil {
			return time.Time{}, false
		}
		return dateOnly(t), true
	case CellString:
		return ParseDate(CleanCell(c.Str))
	default:
		return time.Time{}, false
	}
}

// NormalizeEnum maps a label to an internal code through a synonym table.
// Lookup is on the trimmed, lowercased label; internal codes map to
// themselves. Unknown labels yield fallback, so the result is never empty
// unless fallback is.
func NormalizeEnum(label string, synonyms map[string]string, fallback string) (code string, matched bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	if key == "" {
		return fallback, false
	}
	if code, ok := synonyms[key]; ok {
		return code, true
	}
	for _, code := range synonyms {
		if code == key {
			return code, true
		}
	}
	if key == fallback {
		return fallback, true
	}
	return fallback, false
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
