// Package coerce provides locale-tolerant parsing of monetary amounts and
// dates found in Mexican bank statements. Both parsers are pure functions
// that report failure instead of returning errors: an unparsable token is a
// data-quality signal, not a fault.
package coerce

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// currencyTokens are stripped before numeric parsing, longest first so that
// "MXN" is removed before "MN".
var currencyTokens = []string{"MXN", "USD", "EUR", "M.N.", "MN", "US$", "$", "€", "£"}

// ParseAmount parses a monetary token with ambiguous thousands/decimal
// separators. The disambiguation rule:
//
//   - both '.' and ',' present: the right-most separator is the decimal
//     separator, the other marks thousands
//   - a single ',' with no '.' is the decimal separator
//   - multiple '.' with no ',' collapse to thousands except the last
//
// Parentheses mark a negative amount. Returns ok=false on anything that does
// not survive the normalization.
func ParseAmount(token string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(token)
	if s == "" {
		return decimal.Decimal{}, false
	}

	for _, cur := range currencyTokens {
		s = strings.ReplaceAll(s, cur, "")
		s = strings.ReplaceAll(s, strings.ToLower(cur), "")
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.TrimPrefix(s, "+")
	if strings.HasPrefix(s, "-") {
		neg = !neg
		s = strings.TrimPrefix(s, "-")
	}
	if s == "" {
		return decimal.Decimal{}, false
	}

	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			// European: 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			last := strings.LastIndex(s, ",")
			s = strings.ReplaceAll(s[:last], ",", "") + "." + s[last+1:]
		} else {
			// US: 1,234.56
			s = strings.ReplaceAll(s, ",", "")
			s = collapseDots(s)
		}
	case commas == 1:
		s = strings.Replace(s, ",", ".", 1)
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case dots > 1:
		s = collapseDots(s)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if neg {
		d = d.Neg()
	}
	return d, true
}

// collapseDots removes every '.' except the last, treating the earlier ones
// as thousands separators.
func collapseDots(s string) string {
	last := strings.LastIndex(s, ".")
	if last < 0 {
		return s
	}
	return strings.ReplaceAll(s[:last], ".", "") + s[last:]
}

var (
	isoDateRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	// day first, month numeric or named, year optional ("11/JUL", "15/01/2024")
	fuzzyDateRe = regexp.MustCompile(`(\d{1,2})[-/.]([0-9]{1,2}|[A-Za-zÁÉÍÓÚáéíóú]{3,})(?:[-/.](\d{2,4}))?`)
)

var monthNames = map[string]time.Month{
	"ene": time.January, "jan": time.January,
	"feb": time.February,
	"mar": time.March,
	"abr": time.April, "apr": time.April,
	"may": time.May,
	"jun": time.June,
	"jul": time.July,
	"ago": time.August, "aug": time.August,
	"sep": time.September, "sept": time.September,
	"oct": time.October,
	"nov": time.November,
	"dic": time.December, "dec": time.December,
}

// ParseDate parses a statement date token. Day-first is fixed policy: every
// supported source is a Mexican-locale statement. Partial tokens without a
// year ("11/JUL", "15/01") resolve against refYear so one pipeline run is
// deterministic. ISO dates (as emitted by AI collaborators) are accepted
// as-is.
func ParseDate(token string, refYear int) (time.Time, bool) {
	s := strings.TrimSpace(token)
	if s == "" {
		return time.Time{}, false
	}

	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}

	m := fuzzyDateRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}

	day := atoi(m[1])
	if day < 1 || day > 31 {
		return time.Time{}, false
	}

	month, ok := parseMonth(m[2])
	if !ok {
		return time.Time{}, false
	}

	year := refYear
	if m[3] != "" {
		year = atoi(m[3])
		if year < 100 {
			year += 2000
		}
	}
	if year == 0 {
		year = time.Now().Year()
	}

	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// Reject overflowed dates such as 31/02.
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

func parseMonth(tok string) (time.Month, bool) {
	if tok == "" {
		return 0, false
	}
	if tok[0] >= '0' && tok[0] <= '9' {
		n := atoi(tok)
		if n < 1 || n > 12 {
			return 0, false
		}
		return time.Month(n), true
	}
	name := strings.ToLower(tok)
	if len(name) > 4 {
		name = name[:3]
	}
	if m, ok := monthNames[name]; ok {
		return m, true
	}
	return 0, false
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	return n
}
