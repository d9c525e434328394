// Package extract defines the page/table ingestion boundary: given a
// document, it yields per-page raw text lines and candidate table grids
// under two alternative detection configurations. Implementations must not
// silently drop pages; a page that fails extraction yields empty content.
package extract

import (
	"context"
	"errors"
	"io"

	"github.com/conversor-edc/backend/internal/domain/convert/grid"
)

var (
	// ErrDocumentUnreadable means the document could not be opened at all.
	// It is raised before any strategy runs and propagates unchanged.
	ErrDocumentUnreadable = errors.New("document could not be read")

	// ErrTooManyPages rejects documents beyond the configured page cap.
	ErrTooManyPages = errors.New("document exceeds the page limit")
)

// Page is the extraction result for one document page.
type Page struct {
	Number int
	// Lines is the raw text of the page, one entry per visual row.
	Lines []string
	// Grids holds the detected table regions per detection configuration,
	// ordered by configuration priority.
	Grids [][]grid.RawGrid
}

// Document is the full per-page extraction for one statement.
type Document struct {
	Pages     []Page
	PageCount int
}

// Extractor is the ingestion collaborator contract.
type Extractor interface {
	Extract(ctx context.Context, r io.ReaderAt, size int64, maxPages int) (*Document, error)
}
