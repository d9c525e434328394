// Package writer performs the final value coercion over an aligned table and
// renders the result as an Excel workbook or a CSV export. Coercion failures
// surface as empty cells, never as errors.
package writer

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/conversor-edc/backend/internal/domain/convert/coerce"
	"github.com/conversor-edc/backend/internal/domain/convert/schema"
)

// LedgerRow is one fully coerced transaction. Nil pointers mark values that
// were absent or failed coercion.
type LedgerRow struct {
	OperationDate     *time.Time
	ChargeDate        *time.Time
	SettlementDate    *time.Time
	Description       string
	Reference         string
	Charge            *decimal.Decimal
	Credit            *decimal.Decimal
	OperationBalance  *decimal.Decimal
	SettlementBalance *decimal.Decimal
	Amount            *decimal.Decimal
	Category          string
}

// Ledger is the coerced document: the populated role subset in canonical
// order plus the rows themselves.
type Ledger struct {
	Roles []schema.Role
	Rows  []LedgerRow
}

// AssembleOptions tune the final coercion pass.
type AssembleOptions struct {
	// RefYear resolves date tokens without a year. Zero means current year.
	RefYear int
	// Categorize, when set, labels every row from its description and adds
	// the category column to the ledger.
	Categorize func(description string) string
}

// Assemble coerces every raw cell to its typed form. Charge and credit are
// normalized to absolute values; the signed amount is credit minus charge
// whenever both sides are known, overriding any directly extracted amount.
// Rows with neither a description nor any resolvable monetary value are
// dropped.
func Assemble(t schema.Table, opts AssembleOptions) Ledger {
	refYear := opts.RefYear
	if refYear == 0 {
		refYear = time.Now().Year()
	}

	roles := t.Roles
	if opts.Categorize != nil && !hasRole(roles, schema.RoleCategory) {
		roles = append(append([]schema.Role{}, roles...), schema.RoleCategory)
	}

	out := Ledger{Roles: roles, Rows: make([]LedgerRow, 0, len(t.Rows))}
	for _, raw := range t.Rows {
		row := LedgerRow{
			Description: normalizeSpace(raw[schema.RoleDescription]),
			Reference:   normalizeSpace(raw[schema.RoleReference]),
			Category:    normalizeSpace(raw[schema.RoleCategory]),
		}
		row.OperationDate = parseDate(raw[schema.RoleOperationDate], refYear)
		row.ChargeDate = parseDate(raw[schema.RoleChargeDate], refYear)
		row.SettlementDate = parseDate(raw[schema.RoleSettlementDate], refYear)
		row.Charge = parseAbs(raw[schema.RoleCharge])
		row.Credit = parseAbs(raw[schema.RoleCredit])
		row.OperationBalance = parseAmount(raw[schema.RoleOperationBalance])
		row.SettlementBalance = parseAmount(raw[schema.RoleSettlementBalance])
		row.Amount = parseAmount(raw[schema.RoleAmount])

		switch {
		case row.Charge != nil && row.Credit != nil:
			amt := row.Credit.Sub(*row.Charge)
			row.Amount = &amt
		case row.Amount == nil && row.Credit != nil:
			row.Amount = row.Credit
		case row.Amount == nil && row.Charge != nil:
			amt := row.Charge.Neg()
			row.Amount = &amt
		}

		if row.Description == "" && row.Amount == nil &&
			row.Charge == nil && row.Credit == nil {
			continue
		}

		if opts.Categorize != nil && row.Category == "" {
			row.Category = opts.Categorize(row.Description)
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// Totals aggregates the ledger's monetary columns.
type Totals struct {
	Amount  decimal.Decimal
	Charges decimal.Decimal
	Credits decimal.Decimal
	Count   int
}

// Sum computes column totals over every row with a resolved value.
func (l Ledger) Sum() Totals {
	t := Totals{Count: len(l.Rows)}
	for _, r := range l.Rows {
		if r.Amount != nil {
			t.Amount = t.Amount.Add(*r.Amount)
		}
		if r.Charge != nil {
			t.Charges = t.Charges.Add(*r.Charge)
		}
		if r.Credit != nil {
			t.Credits = t.Credits.Add(*r.Credit)
		}
	}
	return t
}

const (
	sheetMovements = "Movimientos"
	sheetSummary   = "Resumen"
	sheetOriginal  = "Original"
)

// WorkbookOptions tune the rendered workbook.
type WorkbookOptions struct {
	// Raw, when non-empty, is echoed verbatim into an extra sheet for
	// auditing the coercion.
	Raw schema.Table
}

// WriteWorkbook renders the ledger into an xlsx workbook: the movement sheet
// with a trailing total row and a summary sheet with formatted MXN totals.
func WriteWorkbook(l Ledger, opts WorkbookOptions) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetMovements); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return nil, fmt.Errorf("money style: %w", err)
	}
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr("dd/mm/yyyy")})
	if err != nil {
		return nil, fmt.Errorf("date style: %w", err)
	}

	for i, role := range l.Roles {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetMovements, cell, schema.Labels[role]); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
		if err := f.SetCellStyle(sheetMovements, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("style header: %w", err)
		}
	}

	for rowIdx, row := range l.Rows {
		for colIdx, role := range l.Roles {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			value, style := cellValue(row, role, moneyStyle, dateStyle)
			if value == nil {
				continue
			}
			if err := f.SetCellValue(sheetMovements, cell, value); err != nil {
				return nil, fmt.Errorf("write cell %s: %w", cell, err)
			}
			if style != 0 {
				if err := f.SetCellStyle(sheetMovements, cell, cell, style); err != nil {
					return nil, fmt.Errorf("style cell %s: %w", cell, err)
				}
			}
		}
	}

	if err := writeTotalRow(f, l, headerStyle, moneyStyle); err != nil {
		return nil, err
	}
	if err := writeSummary(f, l, headerStyle); err != nil {
		return nil, err
	}
	if len(opts.Raw.Rows) > 0 {
		if err := writeOriginal(f, opts.Raw); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf, nil
}

// cellValue resolves the typed value and style for one ledger cell. A nil
// value means the cell stays blank.
func cellValue(row LedgerRow, role schema.Role, moneyStyle, dateStyle int) (any, int) {
	switch role {
	case schema.RoleOperationDate:
		return datePtr(row.OperationDate), dateStyle
	case schema.RoleChargeDate:
		return datePtr(row.ChargeDate), dateStyle
	case schema.RoleSettlementDate:
		return datePtr(row.SettlementDate), dateStyle
	case schema.RoleDescription:
		return strValue(row.Description), 0
	case schema.RoleReference:
		return strValue(row.Reference), 0
	case schema.RoleCharge:
		return decPtr(row.Charge), moneyStyle
	case schema.RoleCredit:
		return decPtr(row.Credit), moneyStyle
	case schema.RoleOperationBalance:
		return decPtr(row.OperationBalance), moneyStyle
	case schema.RoleSettlementBalance:
		return decPtr(row.SettlementBalance), moneyStyle
	case schema.RoleAmount:
		return decPtr(row.Amount), moneyStyle
	case schema.RoleCategory:
		return strValue(row.Category), 0
	}
	return nil, 0
}

// writeTotalRow appends the trailing total: the word "Total" under the
// description column and the column sums under each monetary column.
func writeTotalRow(f *excelize.File, l Ledger, headerStyle, moneyStyle int) error {
	totals := l.Sum()
	rowIdx := len(l.Rows) + 2
	for colIdx, role := range l.Roles {
		cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx)
		var value any
		style := moneyStyle
		switch role {
		case schema.RoleDescription:
			value, style = "Total", headerStyle
		case schema.RoleCharge:
			value = totals.Charges.InexactFloat64()
		case schema.RoleCredit:
			value = totals.Credits.InexactFloat64()
		case schema.RoleAmount:
			value = totals.Amount.InexactFloat64()
		default:
			continue
		}
		if err := f.SetCellValue(sheetMovements, cell, value); err != nil {
			return fmt.Errorf("write total: %w", err)
		}
		if err := f.SetCellStyle(sheetMovements, cell, cell, style); err != nil {
			return fmt.Errorf("style total: %w", err)
		}
	}
	return nil
}

func writeSummary(f *excelize.File, l Ledger, headerStyle int) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	totals := l.Sum()
	lines := []struct {
		label string
		value any
	}{
		{"Movimientos", totals.Count},
		{"Total Cargos", displayMXN(totals.Charges)},
		{"Total Abonos", displayMXN(totals.Credits)},
		{"Total", displayMXN(totals.Amount)},
	}
	for i, line := range lines {
		labelCell, _ := excelize.CoordinatesToCellName(1, i+1)
		valueCell, _ := excelize.CoordinatesToCellName(2, i+1)
		if err := f.SetCellValue(sheetSummary, labelCell, line.label); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
		if err := f.SetCellStyle(sheetSummary, labelCell, labelCell, headerStyle); err != nil {
			return fmt.Errorf("style summary: %w", err)
		}
		if err := f.SetCellValue(sheetSummary, valueCell, line.value); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}

// writeOriginal echoes the uncoerced table for auditing.
func writeOriginal(f *excelize.File, t schema.Table) error {
	if _, err := f.NewSheet(sheetOriginal); err != nil {
		return fmt.Errorf("original sheet: %w", err)
	}
	for i, role := range t.Roles {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetOriginal, cell, schema.Labels[role]); err != nil {
			return fmt.Errorf("write original header: %w", err)
		}
	}
	for rowIdx, row := range t.Rows {
		for colIdx, role := range t.Roles {
			v, ok := row[role]
			if !ok || v == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheetOriginal, cell, v); err != nil {
				return fmt.Errorf("write original cell: %w", err)
			}
		}
	}
	return nil
}

// displayMXN formats a decimal as Mexican pesos for the summary sheet.
func displayMXN(d decimal.Decimal) string {
	cents := d.Mul(decimal.New(1, 2)).Round(0).IntPart()
	return money.New(cents, money.MXN).Display()
}

// csvRecord is the flat CSV projection of a ledger row. Columns mirror the
// workbook headers.
type csvRecord struct {
	OperationDate     string `csv:"Fecha de Operacion"`
	ChargeDate        string `csv:"Fecha de Cargo"`
	SettlementDate    string `csv:"Fecha de Liquidacion"`
	Description       string `csv:"Descripcion"`
	Reference         string `csv:"Referencia"`
	Charge            string `csv:"Cargos"`
	Credit            string `csv:"Abonos"`
	OperationBalance  string `csv:"Saldo Operacion"`
	SettlementBalance string `csv:"Saldo Liquidacion"`
	Amount            string `csv:"Monto"`
	Category          string `csv:"Categoria"`
}

// WriteCSV streams the ledger as CSV with the same column labels as the
// workbook. All populated roles are emitted; unresolved cells are blank.
func WriteCSV(l Ledger, w io.Writer) error {
	records := make([]csvRecord, 0, len(l.Rows))
	for _, r := range l.Rows {
		records = append(records, csvRecord{
			OperationDate:     formatDate(r.OperationDate),
			ChargeDate:        formatDate(r.ChargeDate),
			SettlementDate:    formatDate(r.SettlementDate),
			Description:       r.Description,
			Reference:         r.Reference,
			Charge:            formatDec(r.Charge),
			Credit:            formatDec(r.Credit),
			OperationBalance:  formatDec(r.OperationBalance),
			SettlementBalance: formatDec(r.SettlementBalance),
			Amount:            formatDec(r.Amount),
			Category:          r.Category,
		})
	}
	if err := gocsv.Marshal(&records, w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func parseDate(token string, refYear int) *time.Time {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	t, ok := coerce.ParseDate(token, refYear)
	if !ok {
		return nil
	}
	return &t
}

func parseAmount(token string) *decimal.Decimal {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	d, ok := coerce.ParseAmount(token)
	if !ok {
		return nil
	}
	return &d
}

func parseAbs(token string) *decimal.Decimal {
	d := parseAmount(token)
	if d == nil {
		return nil
	}
	abs := d.Abs()
	return &abs
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hasRole(roles []schema.Role, role schema.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func datePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func decPtr(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.InexactFloat64()
}

func strValue(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02/01/2006")
}

func formatDec(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

func strPtr(s string) *string { return &s }
