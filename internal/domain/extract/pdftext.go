package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/conversor-edc/backend/internal/domain/convert/grid"
)

// Gap widths (in points) used to split a text row into cells. The column
// configuration clusters cell positions across the whole page; the spacing
// configuration splits each row independently.
const (
	cellGap      = 12.0
	columnSnap   = 10.0
	minGridRows  = 2
	minGridCells = 2
)

// PDFExtractor is the default ingestion collaborator, built on
// ledongthuc/pdf. It runs two table-detection configurations per page:
// x-position column clustering and multi-space splitting.
type PDFExtractor struct {
	logger *slog.Logger
}

// NewPDFExtractor returns the default PDF ingestion collaborator.
func NewPDFExtractor(logger *slog.Logger) *PDFExtractor {
	return &PDFExtractor{logger: logger}
}

// Extract reads the document and returns per-page text and grids. A page
// whose text extraction fails contributes an empty page rather than an
// error. Failure to open the document at all maps to ErrDocumentUnreadable.
func (e *PDFExtractor) Extract(ctx context.Context, r io.ReaderAt, size int64, maxPages int) (*Document, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentUnreadable, err)
	}

	total := reader.NumPage()
	if maxPages > 0 && total > maxPages {
		return nil, fmt.Errorf("%w: %d pages, limit %d", ErrTooManyPages, total, maxPages)
	}

	doc := &Document{PageCount: total}
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc.Pages = append(doc.Pages, e.extractPage(reader, n))
	}
	return doc, nil
}

func (e *PDFExtractor) extractPage(reader *pdf.Reader, n int) Page {
	page := Page{Number: n, Grids: make([][]grid.RawGrid, 2)}

	p := reader.Page(n)
	if p.V.IsNull() {
		return page
	}

	rows, err := p.GetTextByRow()
	if err != nil {
		// Contract: never drop a page, return it empty.
		e.logger.Warn("page text extraction failed",
			slog.Int("page", n), slog.Any("error", err))
		return page
	}

	textRows := make([][]pdf.Text, 0, len(rows))
	for _, row := range rows {
		if len(row.Content) == 0 {
			continue
		}
		words := make([]pdf.Text, len(row.Content))
		copy(words, row.Content)
		sort.SliceStable(words, func(i, j int) bool { return words[i].X < words[j].X })
		textRows = append(textRows, words)
	}

	for _, words := range textRows {
		page.Lines = append(page.Lines, joinWords(words))
	}

	if g := columnGrid(textRows); g != nil {
		page.Grids[0] = []grid.RawGrid{g}
	}
	if g := spacingGrid(page.Lines); g != nil {
		page.Grids[1] = []grid.RawGrid{g}
	}
	return page
}

// joinWords renders a text row, keeping a double space wherever the
// horizontal gap between words is column-sized so the spacing configuration
// can recover cell boundaries from the rendered line.
func joinWords(words []pdf.Text) string {
	var sb strings.Builder
	lastEnd := 0.0
	for i, w := range words {
		if i > 0 {
			if w.X-lastEnd > cellGap {
				sb.WriteString("  ")
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(w.S)
		lastEnd = w.X + w.W
	}
	return sb.String()
}

// cell is a run of words separated by less than cellGap.
type cell struct {
	x    float64
	text string
}

func splitCells(words []pdf.Text) []cell {
	var cells []cell
	var sb strings.Builder
	start := 0.0
	lastEnd := 0.0

	flush := func() {
		if sb.Len() > 0 {
			cells = append(cells, cell{x: start, text: sb.String()})
			sb.Reset()
		}
	}

	for _, w := range words {
		if sb.Len() > 0 && w.X-lastEnd > cellGap {
			flush()
		}
		if sb.Len() == 0 {
			start = w.X
		} else {
			sb.WriteByte(' ')
		}
		sb.WriteString(w.S)
		lastEnd = w.X + w.W
	}
	flush()
	return cells
}

// columnGrid clusters cell x-positions page-wide into column edges and
// assigns every cell to its nearest column, producing one aligned grid for
// the page, or nil when no tabular structure emerges.
func columnGrid(textRows [][]pdf.Text) grid.RawGrid {
	rowCells := make([][]cell, 0, len(textRows))
	var xs []float64
	for _, words := range textRows {
		cells := splitCells(words)
		rowCells = append(rowCells, cells)
		for _, c := range cells {
			xs = append(xs, c.x)
		}
	}
	if len(xs) == 0 {
		return nil
	}

	sort.Float64s(xs)
	var edges []float64
	for _, x := range xs {
		if len(edges) == 0 || x-edges[len(edges)-1] > columnSnap {
			edges = append(edges, x)
		}
	}
	if len(edges) < minGridCells {
		return nil
	}

	var g grid.RawGrid
	multiCell := 0
	for _, cells := range rowCells {
		row := make([]string, len(edges))
		filled := 0
		for _, c := range cells {
			idx := nearestEdge(edges, c.x)
			if row[idx] != "" {
				row[idx] += " " + c.text
			} else {
				row[idx] = c.text
				filled++
			}
		}
		if filled == 0 {
			continue
		}
		if filled >= minGridCells {
			multiCell++
		}
		g = append(g, row)
	}
	if len(g) < minGridRows || multiCell < minGridRows {
		return nil
	}
	return g
}

func nearestEdge(edges []float64, x float64) int {
	best := 0
	for i := range edges {
		if abs(x-edges[i]) < abs(x-edges[best]) {
			best = i
		}
	}
	return best
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// spacingGrid splits every line on runs of two or more spaces. It is the
// second, looser detection configuration.
func spacingGrid(lines []string) grid.RawGrid {
	var g grid.RawGrid
	multiCell := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := multiSpaceRe.Split(strings.TrimSpace(line), -1)
		if len(cells) >= minGridCells {
			multiCell++
		}
		g = append(g, cells)
	}
	if len(g) < minGridRows || multiCell < minGridRows {
		return nil
	}
	return g
}
