package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conversor-edc/backend/internal/domain/convert/grid"
	"github.com/conversor-edc/backend/internal/domain/convert/schema"
	"github.com/conversor-edc/backend/internal/domain/extract"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeExtractor serves a canned document regardless of input.
type fakeExtractor struct {
	doc *extract.Document
	err error
}

func (f *fakeExtractor) Extract(_ context.Context, _ io.ReaderAt, _ int64, _ int) (*extract.Document, error) {
	return f.doc, f.err
}

// stubStrategy returns fixed batches or a fixed error.
type stubStrategy struct {
	name    string
	batches []schema.Batch
	err     error
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Extract(_ context.Context, _ *extract.Document) ([]schema.Batch, error) {
	return s.batches, s.err
}

type stubChecker struct {
	table schema.Table
	err   error
}

func (c *stubChecker) Review(_ context.Context, _ schema.Table) (schema.Table, error) {
	return c.table, c.err
}

func docWithLines(lines ...string) *extract.Document {
	return &extract.Document{
		Pages:     []extract.Page{{Number: 1, Lines: lines, Grids: make([][]grid.RawGrid, 2)}},
		PageCount: 1,
	}
}

func batchWithRow(desc, amount string) schema.Batch {
	return schema.Batch{
		Roles: []schema.Role{schema.RoleDescription, schema.RoleAmount},
		Rows:  []schema.Row{{schema.RoleDescription: desc, schema.RoleAmount: amount}},
	}
}

func TestConvertUnionsStrategies(t *testing.T) {
	p := New(&fakeExtractor{doc: docWithLines()}, testLogger(),
		WithStrategies(
			&stubStrategy{name: "a", batches: []schema.Batch{batchWithRow("COMPRA", "150.00")}},
			&stubStrategy{name: "b", batches: []schema.Batch{batchWithRow("PAGO", "200.00")}},
		))

	table, err := p.Convert(context.Background(), strings.NewReader(""), 0)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
}

func TestConvertDeduplicatesOverlap(t *testing.T) {
	same := batchWithRow("COMPRA", "150.00")
	p := New(&fakeExtractor{doc: docWithLines()}, testLogger(),
		WithStrategies(
			&stubStrategy{name: "a", batches: []schema.Batch{same}},
			&stubStrategy{name: "b", batches: []schema.Batch{same}},
		))

	table, err := p.Convert(context.Background(), strings.NewReader(""), 0)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 1)
}

func TestConvertDeduplicatesAcrossStrategies(t *testing.T) {
	// The same transaction reaches the table as a grid row with a blank
	// charge-date cell and the line parser as raw text without that field.
	// Both renditions must collapse into one row.
	g := grid.RawGrid{
		{"Fecha de Operación", "Fecha de Cargo", "Descripción", "Monto"},
		{"15/01", "", "COMPRA OXXO", "150.00"},
	}
	doc := &extract.Document{Pages: []extract.Page{{
		Number: 1,
		Lines:  []string{"15/01 COMPRA OXXO 150.00"},
		Grids:  [][]grid.RawGrid{{g}, nil},
	}}, PageCount: 1}

	p := New(&fakeExtractor{doc: doc}, testLogger())
	table, err := p.Convert(context.Background(), strings.NewReader(""), 0)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "COMPRA OXXO", table.Rows[0][schema.RoleDescription])
	assert.Equal(t, "150.00", table.Rows[0][schema.RoleAmount])
}

func TestConvertReportsCancellation(t *testing.T) {
	p := New(&fakeExtractor{doc: docWithLines("15/01 COMPRA OXXO 150.00")}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Convert(ctx, strings.NewReader(""), 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrNoTransactions)
}

func TestConvertContinuesPastStrategyError(t *testing.T) {
	p := New(&fakeExtractor{doc: docWithLines()}, testLogger(),
		WithStrategies(
			&stubStrategy{name: "broken", err: errors.New("boom")},
			&stubStrategy{name: "ok", batches: []schema.Batch{batchWithRow("COMPRA", "150.00")}},
		))

	table, err := p.Convert(context.Background(), strings.NewReader(""), 0)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 1)
}

func TestConvertFailsClosedWithoutRows(t *testing.T) {
	p := New(&fakeExtractor{doc: docWithLines("sin movimientos aqui")}, testLogger(),
		WithStrategies(&stubStrategy{name: "empty"}))

	_, err := p.Convert(context.Background(), strings.NewReader(""), 0)
	assert.ErrorIs(t, err, ErrNoTransactions)
}

func TestConvertPropagatesExtractorError(t *testing.T) {
	p := New(&fakeExtractor{err: extract.ErrDocumentUnreadable}, testLogger())
	_, err := p.Convert(context.Background(), strings.NewReader(""), 0)
	assert.ErrorIs(t, err, extract.ErrDocumentUnreadable)
}

func TestQualityChecker(t *testing.T) {
	base := []Strategy{
		&stubStrategy{name: "a", batches: []schema.Batch{batchWithRow("COMPRA", "150.00")}},
	}

	t.Run("failure keeps the heuristic table", func(t *testing.T) {
		p := New(&fakeExtractor{doc: docWithLines()}, testLogger(),
			WithStrategies(base...),
			WithQualityChecker(&stubChecker{err: errors.New("model down")}))

		table, err := p.Convert(context.Background(), strings.NewReader(""), 0)
		require.NoError(t, err)
		assert.Equal(t, "COMPRA", table.Rows[0][schema.RoleDescription])
	})

	t.Run("empty review keeps the heuristic table", func(t *testing.T) {
		p := New(&fakeExtractor{doc: docWithLines()}, testLogger(),
			WithStrategies(base...),
			WithQualityChecker(&stubChecker{}))

		table, err := p.Convert(context.Background(), strings.NewReader(""), 0)
		require.NoError(t, err)
		assert.Len(t, table.Rows, 1)
	})

	t.Run("non-empty review replaces the table", func(t *testing.T) {
		reviewed := schema.Table{
			Roles: []schema.Role{schema.RoleDescription},
			Rows:  []schema.Row{{schema.RoleDescription: "CORREGIDO"}},
		}
		p := New(&fakeExtractor{doc: docWithLines()}, testLogger(),
			WithStrategies(base...),
			WithQualityChecker(&stubChecker{table: reviewed}))

		table, err := p.Convert(context.Background(), strings.NewReader(""), 0)
		require.NoError(t, err)
		assert.Equal(t, "CORREGIDO", table.Rows[0][schema.RoleDescription])
	})
}

func TestLineStrategy(t *testing.T) {
	doc := docWithLines(
		"ESTADO DE CUENTA ENERO",
		"15/01 15/01 COMPRA OXXO 150.00",
		"16/01 DEPOSITO SPEI 2,300.00",
		"pie de pagina",
	)

	batches, err := (&LineStrategy{}).Extract(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Rows, 2)
	assert.Equal(t, "COMPRA OXXO", batches[0].Rows[0][schema.RoleDescription])
	assert.Equal(t, "2,300.00", batches[0].Rows[1][schema.RoleAmount])
}

func TestTableStrategy(t *testing.T) {
	t.Run("mapped grid", func(t *testing.T) {
		g := grid.RawGrid{
			{"Fecha de Operación", "Descripción", "Cargos", "Abonos"},
			{"15/01/2024", "COMPRA OXXO", "150.00", ""},
		}
		doc := &extract.Document{Pages: []extract.Page{{
			Number: 1,
			Grids:  [][]grid.RawGrid{{g}, nil},
		}}, PageCount: 1}

		batches, err := (&TableStrategy{}).Extract(context.Background(), doc)
		require.NoError(t, err)
		require.Len(t, batches, 1)
		assert.Equal(t, "table/extended", batches[0].Source)
		assert.Equal(t, "150.00", batches[0].Rows[0][schema.RoleCharge])
	})

	t.Run("first detection configuration wins", func(t *testing.T) {
		mapped := grid.RawGrid{
			{"Fecha", "Concepto", "Importe"},
			{"15/01/2024", "COMPRA", "150.00"},
		}
		other := grid.RawGrid{
			{"Fecha", "Concepto", "Importe"},
			{"16/01/2024", "PAGO", "999.00"},
		}
		doc := &extract.Document{Pages: []extract.Page{{
			Number: 1,
			Grids:  [][]grid.RawGrid{{mapped}, {other}},
		}}, PageCount: 1}

		batches, err := (&TableStrategy{}).Extract(context.Background(), doc)
		require.NoError(t, err)
		require.Len(t, batches, 1)
		assert.Equal(t, "COMPRA", batches[0].Rows[0][schema.RoleDescription])
	})

	t.Run("unmappable grid rescued through the line parser", func(t *testing.T) {
		g := grid.RawGrid{
			{"15/01/2024", "COMPRA OXXO", "150.00"},
			{"16/01/2024", "DEPOSITO SPEI", "2,300.00"},
		}
		doc := &extract.Document{Pages: []extract.Page{{
			Number: 1,
			Grids:  [][]grid.RawGrid{{g}, nil},
		}}, PageCount: 1}

		batches, err := (&TableStrategy{}).Extract(context.Background(), doc)
		require.NoError(t, err)
		require.Len(t, batches, 1)
		assert.Equal(t, "table/rescue", batches[0].Source)
		require.Len(t, batches[0].Rows, 2)
		assert.Equal(t, "COMPRA OXXO", batches[0].Rows[0][schema.RoleDescription])
	})
}

func TestRescueDates(t *testing.T) {
	b := schema.Batch{
		Source: "table/basic",
		Roles:  []schema.Role{schema.RoleDescription, schema.RoleAmount},
		Rows: []schema.Row{
			{schema.RoleDescription: "15/01 16/01 COMPRA OXXO", schema.RoleAmount: "150.00"},
		},
	}

	out := rescueDates(b)
	assert.Equal(t, "15/01", out.Rows[0][schema.RoleOperationDate])
	assert.Equal(t, "16/01", out.Rows[0][schema.RoleChargeDate])
	assert.Equal(t, "COMPRA OXXO", out.Rows[0][schema.RoleDescription])
	assert.True(t, out.HasRole(schema.RoleOperationDate))
	assert.True(t, out.HasRole(schema.RoleChargeDate))
}
