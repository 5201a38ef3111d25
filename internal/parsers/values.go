package parsers

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"statement-engine/internal/models"
)

// DateFormats is the ordered list of layouts tried by ParseDate: day-first
// European layouts, then ISO, then textual month names.
var DateFormats = []string{
	// day-first
	"2.1.2006",
	"2.1.06",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006 15:04",
	"2.1.2006 15:04:05",
	// ISO
	"2006-01-02",
	"2006/01/02",
	"20060102",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	// textual
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2-Jan-2006",
	"2-Jan-06",
}

// ParseAmount converts bank-export amount text into a decimal. It never
// fails: unparseable input yields zero.
//
// Currency symbols and codes, whitespace (including non-breaking spaces) and
// apostrophe group separators are removed. When both '.' and ',' occur the
// rightmost one is the decimal separator. A single separator followed by
// exactly three digits is a thousands separator, any other single separator
// is the decimal point. A leading or trailing '-' or enclosing parentheses
// make the amount negative.
func ParseAmount(text string) decimal.Decimal {
	s := stripAmountNoise(text)
	if s == "" {
		return decimal.Zero
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimFunc(s[1:len(s)-1], unicode.IsLetter)
	}

	switch {
	case strings.HasPrefix(s, "-"):
		negative = !negative
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		negative = !negative
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "+"):
		s = s[:len(s)-1]
	}
	s = strings.TrimFunc(s, unicode.IsLetter)

	number, ok := normalizeSeparators(s)
	if !ok {
		return decimal.Zero
	}

	d, err := decimal.NewFromString(number)
	if err != nil {
		return decimal.Zero
	}
	if negative {
		d = d.Neg()
	}
	return d
}

// stripAmountNoise drops whitespace, currency symbols, apostrophes and
// currency codes around the number
func stripAmountNoise(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsSpace(r), r == '\'', r == '\u2019', unicode.Is(unicode.Sc, r):
			continue
		case r == '\u2212':
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}

	s := strings.TrimFunc(b.String(), unicode.IsLetter)
	// "-EUR12,00" and "12,00EUR-"
	if len(s) > 1 && (s[0] == '-' || s[0] == '+') {
		s = s[:1] + strings.TrimLeftFunc(s[1:], unicode.IsLetter)
	}
	if n := len(s); n > 1 && (s[n-1] == '-' || s[n-1] == '+') {
		s = strings.TrimRightFunc(s[:n-1], unicode.IsLetter) + s[n-1:]
	}
	return s
}

// normalizeSeparators rewrites digits with locale separators into a plain
// decimal literal
func normalizeSeparators(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9') && r != '.' && r != ',' {
			return "", false
		}
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	var decimalSep, groupSep string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			decimalSep, groupSep = ".", ","
		} else {
			decimalSep, groupSep = ",", "."
		}
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		idx := lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		intPart := s[:idx]
		trailing := len(s) - idx - 1
		switch {
		case strings.Count(s, sep) > 1:
			groupSep = sep
		case trailing == 3 && intPart != "" && intPart != "0":
			groupSep = sep
		default:
			decimalSep = sep
		}
	}

	if groupSep != "" {
		s = strings.ReplaceAll(s, groupSep, "")
	}
	if decimalSep != "" {
		if strings.Count(s, decimalSep) > 1 {
			return "", false
		}
		s = strings.Replace(s, decimalSep, ".", 1)
	}

	if !strings.ContainsAny(s, "0123456789") {
		return "", false
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")
	return s, true
}

// ParseDate parses a statement date using DateFormats. It returns false for
// empty or unrecognized input. The result is midnight UTC of the parsed day.
func ParseDate(text string) (time.Time, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range DateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return models.DateOnly(t), true
		}
	}
	return time.Time{}, false
}

// FormatAmount renders an amount with exactly two fraction digits
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatDate renders a date as ISO 8601
func FormatDate(t time.Time) string {
	return t.Format(models.DateLayout)
}

// CleanText trims s and collapses internal whitespace runs to single spaces
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
