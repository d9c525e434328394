// Package pipeline drives the extraction strategy cascade for one document:
// table-structured mapping, the text-line fallback, and the optional AI
// review. Strategy results are unioned, never replaced, and only the total
// absence of rows is fatal.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/conversor-edc/backend/internal/domain/convert/grid"
	"github.com/conversor-edc/backend/internal/domain/convert/lineparse"
	"github.com/conversor-edc/backend/internal/domain/convert/mapper"
	"github.com/conversor-edc/backend/internal/domain/convert/schema"
	"github.com/conversor-edc/backend/internal/domain/extract"
)

// ErrNoTransactions is the only fatal condition of the cascade itself: no
// strategy recovered a single row. It is terminal for the given input.
var ErrNoTransactions = errors.New("no transactions recognized in document")

// Strategy is one independent extraction algorithm contributing candidate
// row batches. A strategy that finds nothing returns an empty slice; errors
// are logged by the orchestrator without stopping the cascade.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, doc *extract.Document) ([]schema.Batch, error)
}

// QualityChecker optionally reviews the merged table. The AI pass plugs in
// here; its failures are swallowed and the heuristic result is kept.
type QualityChecker interface {
	Review(ctx context.Context, table schema.Table) (schema.Table, error)
}

// Pipeline converts one statement document into a canonical ledger table.
type Pipeline struct {
	extractor  extract.Extractor
	strategies []Strategy
	checker    QualityChecker
	maxPages   int
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithQualityChecker attaches the optional review pass.
func WithQualityChecker(qc QualityChecker) Option {
	return func(p *Pipeline) { p.checker = qc }
}

// WithMaxPages caps the number of document pages accepted for extraction.
func WithMaxPages(n int) Option {
	return func(p *Pipeline) { p.maxPages = n }
}

// WithStrategies replaces the default strategy list. Order matters: earlier
// strategies win deduplication priority.
func WithStrategies(strategies ...Strategy) Option {
	return func(p *Pipeline) { p.strategies = strategies }
}

// New builds a pipeline with the default cascade: table extraction first,
// then the whole-document line fallback.
func New(extractor extract.Extractor, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor: extractor,
		logger:    logger,
		strategies: []Strategy{
			&TableStrategy{Logger: logger},
			&LineStrategy{},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Convert runs the full cascade over one document and returns the aligned,
// deduplicated table.
func (p *Pipeline) Convert(ctx context.Context, r io.ReaderAt, size int64) (schema.Table, error) {
	doc, err := p.extractor.Extract(ctx, r, size, p.maxPages)
	if err != nil {
		return schema.Table{}, err
	}

	var batches []schema.Batch
	total := 0
	for _, s := range p.strategies {
		got, err := s.Extract(ctx, doc)
		if err != nil {
			// Cancellation is the caller's verdict, not a strategy miss;
			// degrading it to ErrNoTransactions would mark a retryable
			// request as terminally empty.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return schema.Table{}, err
			}
			p.logger.Warn("extraction strategy failed",
				slog.String("strategy", s.Name()), slog.Any("error", err))
			continue
		}
		rows := 0
		for _, b := range got {
			rows += len(b.Rows)
		}
		p.logger.Info("extraction strategy finished",
			slog.String("strategy", s.Name()),
			slog.Int("batches", len(got)),
			slog.Int("rows", rows))
		batches = append(batches, got...)
		total += rows
	}

	if total == 0 {
		return schema.Table{}, ErrNoTransactions
	}

	table := schema.Dedup(schema.Align(batches))

	if p.checker != nil {
		reviewed, err := p.checker.Review(ctx, table)
		switch {
		case err != nil:
			p.logger.Warn("quality check failed, keeping heuristic result",
				slog.Any("error", err))
		case len(reviewed.Rows) == 0:
			p.logger.Warn("quality check returned no rows, keeping heuristic result")
		default:
			table = reviewed
		}
	}

	return table, nil
}

// basicRoles is the four-column schema shared by the line fallback and the
// grid rescue.
var basicRoles = []schema.Role{
	schema.RoleOperationDate, schema.RoleChargeDate,
	schema.RoleDescription, schema.RoleAmount,
}

// TableStrategy maps detected grids to canonical rows. Per page the first
// detection configuration that produced grids wins; grids that defeat both
// column mappers are rescued row-by-row through the line parser.
type TableStrategy struct {
	Logger *slog.Logger
}

func (s *TableStrategy) Name() string { return "table" }

func (s *TableStrategy) Extract(ctx context.Context, doc *extract.Document) ([]schema.Batch, error) {
	var batches []schema.Batch
	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, g := range firstDetection(page) {
			merged := grid.MergeHeader(g)
			if batch, ok := mapper.Map(merged); ok {
				batches = append(batches, rescueDates(batch))
				continue
			}
			if batch, ok := rescueGrid(merged); ok {
				batches = append(batches, batch)
			} else if s.Logger != nil {
				s.Logger.Debug("grid not mappable", slog.Int("page", page.Number))
			}
		}
	}
	return batches, nil
}

// firstDetection returns the grids of the highest-priority detection
// configuration that found any on this page.
func firstDetection(page extract.Page) []grid.RawGrid {
	for _, grids := range page.Grids {
		if len(grids) > 0 {
			return grids
		}
	}
	return nil
}

// rescueGrid joins each row's cells into a synthetic line and re-parses it
// with the fallback line parser.
func rescueGrid(g grid.RawGrid) (schema.Batch, bool) {
	batch := schema.Batch{Source: "table/rescue", Roles: basicRoles}
	for _, cells := range g {
		parsed, ok := lineparse.Parse(strings.Join(cells, " "))
		if !ok {
			continue
		}
		batch.Rows = append(batch.Rows, lineRow(parsed))
	}
	return batch, len(batch.Rows) > 0
}

// rescueDates re-runs the leading date pattern over descriptions, but only
// for batches in the minimal four-role schema whose rows carry no explicit
// dates. Extended schemas already carry their dates and must not be split
// twice.
func rescueDates(b schema.Batch) schema.Batch {
	if !mapper.BasicSchema(b) || !b.HasRole(schema.RoleDescription) {
		return b
	}
	foundOp, foundCharge := false, false
	for _, row := range b.Rows {
		if strings.TrimSpace(row[schema.RoleOperationDate]) != "" ||
			strings.TrimSpace(row[schema.RoleChargeDate]) != "" {
			continue
		}
		op, charge, rest := lineparse.ExtractLeadingDates(row[schema.RoleDescription])
		if op == "" {
			continue
		}
		row[schema.RoleOperationDate] = op
		row[schema.RoleDescription] = rest
		foundOp = true
		if charge != "" {
			row[schema.RoleChargeDate] = charge
			foundCharge = true
		}
	}
	if foundOp && !b.HasRole(schema.RoleOperationDate) {
		b.Roles = append([]schema.Role{schema.RoleOperationDate}, b.Roles...)
	}
	if foundCharge && !b.HasRole(schema.RoleChargeDate) {
		b.Roles = insertAfter(b.Roles, schema.RoleOperationDate, schema.RoleChargeDate)
	}
	return b
}

func insertAfter(roles []schema.Role, after, role schema.Role) []schema.Role {
	out := make([]schema.Role, 0, len(roles)+1)
	inserted := false
	for _, r := range roles {
		out = append(out, r)
		if r == after {
			out = append(out, role)
			inserted = true
		}
	}
	if !inserted {
		out = append(out, role)
	}
	return out
}

// LineStrategy runs the fallback parser over every raw text line of every
// page, independently of the table strategy.
type LineStrategy struct{}

func (s *LineStrategy) Name() string { return "lines" }

func (s *LineStrategy) Extract(ctx context.Context, doc *extract.Document) ([]schema.Batch, error) {
	batch := schema.Batch{Source: "lines", Roles: basicRoles}
	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, line := range page.Lines {
			parsed, ok := lineparse.Parse(line)
			if !ok {
				continue
			}
			batch.Rows = append(batch.Rows, lineRow(parsed))
		}
	}
	if len(batch.Rows) == 0 {
		return nil, nil
	}
	return []schema.Batch{batch}, nil
}

func lineRow(l lineparse.Line) schema.Row {
	row := schema.Row{
		schema.RoleDescription: l.Description,
		schema.RoleAmount:      l.Amount,
	}
	if l.OperationDate != "" {
		row[schema.RoleOperationDate] = l.OperationDate
	}
	if l.ChargeDate != "" {
		row[schema.RoleChargeDate] = l.ChargeDate
	}
	return row
}
