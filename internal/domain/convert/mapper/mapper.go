// Package mapper assigns raw grid columns to canonical ledger roles using
// keyword heuristics over the header row. Two strategies exist: an extended
// multi-column mapping and a basic four-column fallback. Rules live in
// ordered (predicate, role) tables so individual rules stay testable.
package mapper

import (
	"strings"

	"github.com/conversor-edc/backend/internal/domain/convert/grid"
	"github.com/conversor-edc/backend/internal/domain/convert/schema"
)

// rule pairs a canonical role with its header predicate. Rules are evaluated
// in order per column; the first match for an unclaimed role wins and is
// never re-assigned.
type rule struct {
	role  schema.Role
	match func(h string) bool
}

func contains(h string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(h, s) {
			return true
		}
	}
	return false
}

// extendedRules cover the full role set. Date rules run before amount rules
// so "fecha de cargo" claims the charge-date role, not the charge column.
var extendedRules = []rule{
	{schema.RoleOperationDate, func(h string) bool {
		return strings.Contains(h, "fecha") && contains(h, "oper", "mov", "trans")
	}},
	{schema.RoleChargeDate, func(h string) bool {
		return strings.Contains(h, "fecha") && strings.Contains(h, "cargo")
	}},
	{schema.RoleSettlementDate, func(h string) bool {
		return strings.Contains(h, "fecha") && contains(h, "liquid", "valor")
	}},
	{schema.RoleDescription, func(h string) bool {
		return contains(h, "desc", "concept", "detalle")
	}},
	{schema.RoleReference, func(h string) bool {
		return contains(h, "referen", "folio")
	}},
	{schema.RoleCharge, func(h string) bool {
		return contains(h, "cargo", "retiro") && !strings.Contains(h, "fecha")
	}},
	{schema.RoleCredit, func(h string) bool {
		return contains(h, "abono", "deposito") && !strings.Contains(h, "fecha")
	}},
	{schema.RoleOperationBalance, func(h string) bool {
		return h == "operacion" || (strings.Contains(h, "saldo") && strings.Contains(h, "oper"))
	}},
	{schema.RoleSettlementBalance, func(h string) bool {
		return h == "liquidacion" || strings.Contains(h, "saldo")
	}},
	{schema.RoleAmount, func(h string) bool {
		return contains(h, "monto", "importe")
	}},
}

// Map tries the extended mapping first and falls back to the basic one.
func Map(g grid.RawGrid) (schema.Batch, bool) {
	if b, ok := MapExtended(g); ok {
		return b, true
	}
	return MapBasic(g)
}

// MapExtended assigns columns via the extended rule table. It succeeds when
// at least one role resolves. Unresolved roles are simply absent from the
// resulting batch schema.
func MapExtended(g grid.RawGrid) (schema.Batch, bool) {
	headers := headerRow(g)
	if headers == nil {
		return schema.Batch{}, false
	}

	cols := make(map[schema.Role]int)
	for i, h := range headers {
		if h == "" {
			continue
		}
		for _, r := range extendedRules {
			if _, claimed := cols[r.role]; claimed {
				continue
			}
			if r.match(h) {
				cols[r.role] = i
				break
			}
		}
	}
	if len(cols) == 0 {
		return schema.Batch{}, false
	}

	return buildBatch("table/extended", g, cols), true
}

// MapBasic is the loose four-column fallback: operation date, charge date,
// description and a single amount. The amount column is searched
// right-to-left to prefer the right-most monetary column. Mapping fails
// outright unless both description and amount resolve.
func MapBasic(g grid.RawGrid) (schema.Batch, bool) {
	headers := headerRow(g)
	if headers == nil {
		return schema.Batch{}, false
	}

	opIdx, chargeIdx, descIdx, amountIdx := -1, -1, -1, -1

	for i, h := range headers {
		if opIdx == -1 && strings.Contains(h, "fecha") && contains(h, "oper", "mov", "trans") {
			opIdx = i
		}
		if chargeIdx == -1 && strings.Contains(h, "fecha") && contains(h, "cargo", "abono", "val") {
			chargeIdx = i
		}
		if descIdx == -1 && contains(h, "desc", "concept", "detalle") {
			descIdx = i
		}
	}
	if opIdx == -1 {
		for i, h := range headers {
			if strings.HasPrefix(h, "fecha") {
				opIdx = i
				break
			}
		}
	}
	for i := len(headers) - 1; i >= 0; i-- {
		h := headers[i]
		if contains(h, "monto", "importe") || h == "cargo" || h == "abono" || h == "saldo" {
			amountIdx = i
			break
		}
	}

	if descIdx == -1 || amountIdx == -1 {
		return schema.Batch{}, false
	}

	cols := map[schema.Role]int{
		schema.RoleDescription: descIdx,
		schema.RoleAmount:      amountIdx,
	}
	if opIdx >= 0 {
		cols[schema.RoleOperationDate] = opIdx
	}
	if chargeIdx >= 0 && chargeIdx != opIdx {
		cols[schema.RoleChargeDate] = chargeIdx
	}

	return buildBatch("table/basic", g, cols), true
}

// BasicSchema reports whether the batch carries no roles beyond the minimal
// four-column scheme. The date-from-description rescue applies only then.
func BasicSchema(b schema.Batch) bool {
	for _, r := range b.Roles {
		switch r {
		case schema.RoleOperationDate, schema.RoleChargeDate,
			schema.RoleDescription, schema.RoleAmount:
		default:
			return false
		}
	}
	return true
}

func headerRow(g grid.RawGrid) []string {
	if len(g) < 2 {
		return nil
	}
	headers := make([]string, len(g[0]))
	for i, h := range g[0] {
		headers[i] = grid.Fold(h)
	}
	return headers
}

func buildBatch(source string, g grid.RawGrid, cols map[schema.Role]int) schema.Batch {
	var roles []schema.Role
	for _, r := range schema.CanonicalOrder {
		if _, ok := cols[r]; ok {
			roles = append(roles, r)
		}
	}

	rows := make([]schema.Row, 0, len(g)-1)
	for _, raw := range g[1:] {
		row := make(schema.Row, len(cols))
		for role, idx := range cols {
			if idx >= len(raw) {
				continue
			}
			// Blank cells stay absent so rows from different strategies
			// share one identity during deduplication.
			if v := strings.TrimSpace(raw[idx]); v != "" {
				row[role] = v
			}
		}
		if len(row) == 0 {
			continue
		}
		rows = append(rows, row)
	}

	return schema.Batch{Source: source, Roles: roles, Rows: rows}
}
