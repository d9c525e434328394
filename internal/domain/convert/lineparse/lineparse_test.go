package lineparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("two dates description and amount", func(t *testing.T) {
		l, ok := Parse("15/01 15/01 Compra en tienda REF123 150.00")
		require.True(t, ok)
		assert.Equal(t, "15/01", l.OperationDate)
		assert.Equal(t, "15/01", l.ChargeDate)
		assert.Equal(t, "Compra en tienda REF123", l.Description)
		assert.Equal(t, "150.00", l.Amount)
	})

	t.Run("single date", func(t *testing.T) {
		l, ok := Parse("31/12/2024 PAGO TARJETA 1,234.56")
		require.True(t, ok)
		assert.Equal(t, "31/12/2024", l.OperationDate)
		assert.Empty(t, l.ChargeDate)
		assert.Equal(t, "PAGO TARJETA", l.Description)
		assert.Equal(t, "1,234.56", l.Amount)
	})

	t.Run("no date keeps the whole prefix as description", func(t *testing.T) {
		l, ok := Parse("SALDO ANTERIOR 15.00")
		require.True(t, ok)
		assert.Empty(t, l.OperationDate)
		assert.Equal(t, "SALDO ANTERIOR", l.Description)
		assert.Equal(t, "15.00", l.Amount)
	})

	t.Run("named month date", func(t *testing.T) {
		l, ok := Parse("11/JUL TRANSFERENCIA SPEI 2,500.00")
		require.True(t, ok)
		assert.Equal(t, "11/JUL", l.OperationDate)
		assert.Equal(t, "TRANSFERENCIA SPEI", l.Description)
	})

	t.Run("negative amount in parentheses", func(t *testing.T) {
		l, ok := Parse("15/01 COMISION (500.00)")
		require.True(t, ok)
		assert.Equal(t, "(500.00)", l.Amount)
	})

	t.Run("line without trailing amount is rejected", func(t *testing.T) {
		_, ok := Parse("15/01/2024 Compra sin monto")
		assert.False(t, ok)

		_, ok = Parse("")
		assert.False(t, ok)
	})

	t.Run("decimal fragment is not a date", func(t *testing.T) {
		l, ok := Parse("ABONO 99.99 INTERESES 1,000.00")
		require.True(t, ok)
		assert.Empty(t, l.OperationDate)
		assert.Equal(t, "1,000.00", l.Amount)
	})
}

func TestExtractLeadingDates(t *testing.T) {
	t.Run("two leading dates", func(t *testing.T) {
		op, charge, rest := ExtractLeadingDates("15/01 16/01 COMPRA OXXO")
		assert.Equal(t, "15/01", op)
		assert.Equal(t, "16/01", charge)
		assert.Equal(t, "COMPRA OXXO", rest)
	})

	t.Run("one leading date", func(t *testing.T) {
		op, charge, rest := ExtractLeadingDates("15/01/2024 - PAGO SPEI")
		assert.Equal(t, "15/01/2024", op)
		assert.Empty(t, charge)
		assert.Equal(t, "PAGO SPEI", rest)
	})

	t.Run("no leading date", func(t *testing.T) {
		op, charge, rest := ExtractLeadingDates("COMPRA 15/01 OXXO")
		assert.Empty(t, op)
		assert.Empty(t, charge)
		assert.Equal(t, "COMPRA 15/01 OXXO", rest)
	})
}
