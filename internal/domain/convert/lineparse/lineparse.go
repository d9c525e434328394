// Package lineparse recovers (date, date, description, amount) tuples from
// unstructured statement text lines. It is both a whole-document strategy
// and the row-level rescue for grids that defeat the column mappers.
package lineparse

import (
	"regexp"
	"strings"
)

var (
	// A monetary token anchored at the end of the line: grouped digits,
	// optional thousands separators, exactly two decimals, optional sign or
	// parentheses.
	amountRe = regexp.MustCompile(`([+-]?\(?\d{1,3}(?:[.,]\d{3})*[.,]\d{2}\)?)\s*$`)

	// A date-shaped token: day plus month-or-day, optional year.
	dateRe = regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2}|[A-Za-z]{3,})(?:[-/.]\d{2,4})?\b`)

	// Date tokens anchored at the start of a description.
	leadingDateRe = regexp.MustCompile(`^\s*(\d{1,2}[-/.](?:\d{1,2}|[A-Za-z]{3,})(?:[-/.]\d{2,4})?)\b`)
)

const descriptionCutset = " \t-•|"

// Line is the tuple recovered from one transaction-shaped text line.
type Line struct {
	OperationDate string
	ChargeDate    string
	Description   string
	Amount        string
}

// Parse extracts a transaction tuple from a raw text line. Lines with no
// trailing monetary token are rejected. Up to two date-shaped tokens are
// consumed left-to-right from the region before the amount; the text after
// the last consumed date becomes the description.
func Parse(raw string) (Line, bool) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Line{}, false
	}

	am := amountRe.FindStringSubmatchIndex(line)
	if am == nil {
		return Line{}, false
	}
	amount := line[am[2]:am[3]]
	rest := strings.TrimSpace(line[:am[0]])

	out := Line{Amount: amount, Description: rest}

	dates := findDates(rest, 2)
	if len(dates) > 0 {
		first := dates[0]
		out.OperationDate = rest[first[0]:first[1]]
		out.Description = strings.Trim(rest[first[1]:], descriptionCutset)
		if len(dates) > 1 {
			second := dates[1]
			out.ChargeDate = rest[second[0]:second[1]]
			out.Description = strings.Trim(rest[second[1]:], descriptionCutset)
		}
	}

	return out, true
}

// ExtractLeadingDates splits up to two date tokens off the front of a
// description, for rows whose mapped schema carries no explicit dates.
func ExtractLeadingDates(desc string) (op, charge, rest string) {
	rest = desc
	if m := leadingDateRe.FindStringSubmatchIndex(rest); m != nil && validDate(rest[m[2]:m[3]]) {
		op = rest[m[2]:m[3]]
		rest = strings.Trim(rest[m[3]:], descriptionCutset)
		if m2 := leadingDateRe.FindStringSubmatchIndex(rest); m2 != nil && validDate(rest[m2[2]:m2[3]]) {
			charge = rest[m2[2]:m2[3]]
			rest = strings.Trim(rest[m2[3]:], descriptionCutset)
		}
	}
	return op, charge, rest
}

// findDates returns up to max index pairs of validated date tokens.
func findDates(s string, max int) [][2]int {
	var out [][2]int
	for _, m := range dateRe.FindAllStringSubmatchIndex(s, -1) {
		if !validDate(s[m[0]:m[1]]) {
			continue
		}
		out = append(out, [2]int{m[0], m[1]})
		if len(out) == max {
			break
		}
	}
	return out
}

// validDate filters out decimal fragments such as "15.00" that share the
// date shape: the day must be 1–31 and a numeric second component 1–31.
func validDate(tok string) bool {
	m := dateRe.FindStringSubmatch(tok)
	if m == nil {
		return false
	}
	day := atoi(m[1])
	if day < 1 || day > 31 {
		return false
	}
	second := m[2]
	if second[0] >= '0' && second[0] <= '9' {
		n := atoi(second)
		if n < 1 || n > 31 {
			return false
		}
	}
	return true
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
