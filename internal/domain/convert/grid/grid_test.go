package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "descripcion", Fold("Descripción"))
	assert.Equal(t, "fecha de operacion", Fold("  FECHA DE OPERACIÓN "))
	assert.Equal(t, "saldo", Fold("Saldo"))
}

func TestMergeHeader(t *testing.T) {
	t.Run("two header rows merge token wise", func(t *testing.T) {
		g := RawGrid{
			{"Fecha de", "Descripción", "Cargos"},
			{"Operación", "", "-"},
			{"15/01/2024", "COMPRA OXXO", "150.00"},
			{"16/01/2024", "PAGO SPEI", "2,300.00"},
		}

		merged := MergeHeader(g)
		require.Len(t, merged, 3)
		assert.Equal(t, []string{"Fecha de Operación", "Descripción", "Cargos"}, merged[0])
		assert.Equal(t, "15/01/2024", merged[1][0])
		assert.Equal(t, "16/01/2024", merged[2][0])
	})

	t.Run("single header row passes through", func(t *testing.T) {
		g := RawGrid{
			{"Fecha", "Concepto", "Importe"},
			{"15/01/2024", "COMPRA", "150.00"},
		}
		assert.Equal(t, g, MergeHeader(g))
	})

	t.Run("numeric row ends the header region", func(t *testing.T) {
		g := RawGrid{
			{"Fecha", "Concepto", "Importe"},
			{"15/01/2024", "COMPRA", "150.00"},
			{"Fecha", "Concepto", "Importe"},
		}
		// Row 2 is data, so only the first row can be headerish and no merge
		// happens.
		assert.Equal(t, g, MergeHeader(g))
	})

	t.Run("placeholder tokens are skipped when joining", func(t *testing.T) {
		g := RawGrid{
			{"Fecha", "Descripción", "Saldo"},
			{"Operación", "nan", "--"},
			{"15/01/2024", "COMPRA", "150.00"},
		}
		merged := MergeHeader(g)
		require.Len(t, merged, 2)
		assert.Equal(t, []string{"Fecha Operación", "Descripción", "Saldo"}, merged[0])
	})

	t.Run("row without keywords is not a header", func(t *testing.T) {
		g := RawGrid{
			{"Uno", "Dos", "Tres"},
			{"15/01/2024", "COMPRA", "150.00"},
		}
		assert.Equal(t, g, MergeHeader(g))
	})
}
