package writer

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/conversor-edc/backend/internal/domain/convert/schema"
)

func sampleTable() schema.Table {
	return schema.Table{
		Roles: []schema.Role{
			schema.RoleOperationDate, schema.RoleDescription,
			schema.RoleCharge, schema.RoleCredit, schema.RoleAmount,
		},
		Rows: []schema.Row{
			{
				schema.RoleOperationDate: "15/01/2024",
				schema.RoleDescription:   "COMPRA   OXXO",
				schema.RoleCharge:        "150.00",
			},
			{
				schema.RoleOperationDate: "16/01/2024",
				schema.RoleDescription:   "DEPOSITO SPEI",
				schema.RoleCredit:        "2,300.00",
			},
		},
	}
}

func TestAssemble(t *testing.T) {
	t.Run("coerces and signs amounts", func(t *testing.T) {
		l := Assemble(sampleTable(), AssembleOptions{RefYear: 2024})
		require.Len(t, l.Rows, 2)

		first := l.Rows[0]
		require.NotNil(t, first.OperationDate)
		assert.Equal(t, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), *first.OperationDate)
		assert.Equal(t, "COMPRA OXXO", first.Description)
		require.NotNil(t, first.Amount)
		assert.Equal(t, "-150.00", first.Amount.StringFixed(2))

		second := l.Rows[1]
		require.NotNil(t, second.Amount)
		assert.Equal(t, "2300.00", second.Amount.StringFixed(2))
	})

	t.Run("both sides known overrides the extracted amount", func(t *testing.T) {
		table := schema.Table{
			Roles: []schema.Role{schema.RoleDescription, schema.RoleCharge, schema.RoleCredit, schema.RoleAmount},
			Rows: []schema.Row{{
				schema.RoleDescription: "AJUSTE",
				schema.RoleCharge:      "100.00",
				schema.RoleCredit:      "40.00",
				schema.RoleAmount:      "999.99",
			}},
		}
		l := Assemble(table, AssembleOptions{RefYear: 2024})
		require.NotNil(t, l.Rows[0].Amount)
		assert.Equal(t, "-60.00", l.Rows[0].Amount.StringFixed(2))
	})

	t.Run("charge and credit normalize to absolute values", func(t *testing.T) {
		table := schema.Table{
			Roles: []schema.Role{schema.RoleDescription, schema.RoleCharge},
			Rows: []schema.Row{{
				schema.RoleDescription: "COMISION",
				schema.RoleCharge:      "(500.00)",
			}},
		}
		l := Assemble(table, AssembleOptions{RefYear: 2024})
		require.NotNil(t, l.Rows[0].Charge)
		assert.Equal(t, "500.00", l.Rows[0].Charge.StringFixed(2))
		require.NotNil(t, l.Rows[0].Amount)
		assert.Equal(t, "-500.00", l.Rows[0].Amount.StringFixed(2))
	})

	t.Run("unusable rows are dropped", func(t *testing.T) {
		table := schema.Table{
			Roles: []schema.Role{schema.RoleDescription, schema.RoleAmount},
			Rows: []schema.Row{
				{schema.RoleDescription: "", schema.RoleAmount: "no-numerico"},
				{schema.RoleDescription: "REAL", schema.RoleAmount: "10.00"},
			},
		}
		l := Assemble(table, AssembleOptions{RefYear: 2024})
		require.Len(t, l.Rows, 1)
		assert.Equal(t, "REAL", l.Rows[0].Description)
	})

	t.Run("categorizer fills the category column", func(t *testing.T) {
		l := Assemble(sampleTable(), AssembleOptions{
			RefYear:    2024,
			Categorize: func(string) string { return "prueba" },
		})
		assert.Contains(t, l.Roles, schema.RoleCategory)
		assert.Equal(t, "prueba", l.Rows[0].Category)
	})

	t.Run("failed coercions become nil not errors", func(t *testing.T) {
		table := schema.Table{
			Roles: []schema.Role{schema.RoleOperationDate, schema.RoleDescription, schema.RoleAmount},
			Rows: []schema.Row{{
				schema.RoleOperationDate: "99/99/9999",
				schema.RoleDescription:   "FECHA ROTA",
				schema.RoleAmount:        "10.00",
			}},
		}
		l := Assemble(table, AssembleOptions{RefYear: 2024})
		require.Len(t, l.Rows, 1)
		assert.Nil(t, l.Rows[0].OperationDate)
		require.NotNil(t, l.Rows[0].Amount)
	})
}

func TestSum(t *testing.T) {
	l := Assemble(sampleTable(), AssembleOptions{RefYear: 2024})
	totals := l.Sum()
	assert.Equal(t, 2, totals.Count)
	assert.Equal(t, "150.00", totals.Charges.StringFixed(2))
	assert.Equal(t, "2300.00", totals.Credits.StringFixed(2))
	assert.Equal(t, "2150.00", totals.Amount.StringFixed(2))
}

func TestWriteWorkbook(t *testing.T) {
	l := Assemble(sampleTable(), AssembleOptions{RefYear: 2024})
	buf, err := WriteWorkbook(l, WorkbookOptions{Raw: sampleTable()})
	require.NoError(t, err)
	require.NotZero(t, buf.Len())

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Movimientos", "Resumen", "Original"}, f.GetSheetList())

	header, err := f.GetCellValue("Movimientos", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Fecha de Operacion", header)

	desc, err := f.GetCellValue("Movimientos", "B2")
	require.NoError(t, err)
	assert.Equal(t, "COMPRA OXXO", desc)

	// Total row lands right below the data, under the description column.
	total, err := f.GetCellValue("Movimientos", "B4")
	require.NoError(t, err)
	assert.Equal(t, "Total", total)

	count, err := f.GetCellValue("Resumen", "B1")
	require.NoError(t, err)
	assert.Equal(t, "2", count)
}

func TestWriteCSV(t *testing.T) {
	l := Assemble(sampleTable(), AssembleOptions{RefYear: 2024})
	var sb strings.Builder
	require.NoError(t, WriteCSV(l, &sb))

	out := sb.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Fecha de Operacion")
	assert.Contains(t, lines[0], "Monto")
	assert.Contains(t, lines[1], "15/01/2024")
	assert.Contains(t, lines[1], "-150.00")
	assert.Contains(t, lines[2], "2300.00")
}
