// Package grid models the raw 2-D cell extraction for one detected table
// region and collapses its leading header rows into a single canonical
// header row.
package grid

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/conversor-edc/backend/internal/domain/convert/coerce"
)

// RawGrid is an unprocessed table region: rows of cell strings. It is
// ephemeral and owned by the pipeline invocation that produced it.
type RawGrid [][]string

// maxHeaderRows bounds how many leading rows may be merged into the header.
const maxHeaderRows = 3

// nonNumericShare is the minimum share of non-empty cells that must fail
// numeric parsing for a row to count as headerish.
const nonNumericShare = 0.6

// headerKeywords identify statement header rows. Tokens are matched against
// folded (lower-case, diacritic-free) cell text.
var headerKeywords = []string{
	"fecha", "operacion", "liquidacion", "movimiento",
	"descripcion", "concepto", "detalle", "referencia", "folio",
	"cargo", "abono", "deposito", "retiro",
	"saldo", "monto", "importe",
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lower-cases, trims and strips diacritics so that "Descripción" and
// "DESCRIPCION" compare equal.
func Fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// MergeHeader inspects up to three leading rows of the grid and joins the
// consecutive headerish ones token-wise per column into a single header row,
// dropping them from the data region. A grid with no headerish leading row
// passes through unchanged.
func MergeHeader(g RawGrid) RawGrid {
	count := 0
	for i := 0; i < len(g) && i < maxHeaderRows; i++ {
		if !headerish(g[i]) {
			break
		}
		count++
	}
	if count <= 1 {
		return g
	}

	width := 0
	for _, row := range g[:count] {
		if len(row) > width {
			width = len(row)
		}
	}

	header := make([]string, width)
	for col := 0; col < width; col++ {
		var tokens []string
		for _, row := range g[:count] {
			if col >= len(row) {
				continue
			}
			cell := strings.TrimSpace(row[col])
			if cell == "" || isNoneToken(cell) {
				continue
			}
			tokens = append(tokens, cell)
		}
		header[col] = strings.Join(tokens, " ")
	}

	out := make(RawGrid, 0, len(g)-count+1)
	out = append(out, header)
	out = append(out, g[count:]...)
	return out
}

// headerish reports whether the row looks like a header: it mentions at
// least one known column keyword and most of its non-empty cells are not
// numeric tokens.
func headerish(row []string) bool {
	nonEmpty := 0
	nonNumeric := 0
	keyword := false
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		nonEmpty++
		folded := Fold(cell)
		if !keyword {
			for _, kw := range headerKeywords {
				if strings.Contains(folded, kw) {
					keyword = true
					break
				}
			}
		}
		if _, ok := coerce.ParseAmount(cell); !ok {
			nonNumeric++
		}
	}
	if nonEmpty == 0 || !keyword {
		return false
	}
	return float64(nonNumeric) >= nonNumericShare*float64(nonEmpty)
}

func isNoneToken(cell string) bool {
	switch Fold(cell) {
	case "none", "nan", "null", "-", "--":
		return true
	}
	return false
}
