// Package schema defines the canonical ledger schema shared by every
// extraction strategy: the fixed role set, raw row batches, and the
// align/merge/dedup operations that union heterogeneous batches into one
// table per document.
package schema

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/conversor-edc/backend/internal/domain/convert/coerce"
)

// Role names one canonical ledger field. Raw cell values are kept as strings
// until the output assembler performs the final coercion.
type Role string

const (
	RoleOperationDate     Role = "fecha_operacion"
	RoleChargeDate        Role = "fecha_cargo"
	RoleSettlementDate    Role = "fecha_liquidacion"
	RoleDescription       Role = "descripcion"
	RoleReference         Role = "referencia"
	RoleCharge            Role = "cargos"
	RoleCredit            Role = "abonos"
	RoleOperationBalance  Role = "saldo_operacion"
	RoleSettlementBalance Role = "saldo_liquidacion"
	RoleAmount            Role = "monto"
	RoleCategory          Role = "categoria"
)

// CanonicalOrder fixes the column order of every aligned table and of the
// exported spreadsheet.
var CanonicalOrder = []Role{
	RoleOperationDate,
	RoleChargeDate,
	RoleSettlementDate,
	RoleDescription,
	RoleReference,
	RoleCharge,
	RoleCredit,
	RoleOperationBalance,
	RoleSettlementBalance,
	RoleAmount,
	RoleCategory,
}

// Labels maps roles to the spreadsheet column headers.
var Labels = map[Role]string{
	RoleOperationDate:     "Fecha de Operacion",
	RoleChargeDate:        "Fecha de Cargo",
	RoleSettlementDate:    "Fecha de Liquidacion",
	RoleDescription:       "Descripcion",
	RoleReference:         "Referencia",
	RoleCharge:            "Cargos",
	RoleCredit:            "Abonos",
	RoleOperationBalance:  "Saldo Operacion",
	RoleSettlementBalance: "Saldo Liquidacion",
	RoleAmount:            "Monto",
	RoleCategory:          "Categoria",
}

// RoleForLabel resolves a spreadsheet/AI column label back to its role.
// Matching is case-insensitive; unknown labels return ok=false.
func RoleForLabel(label string) (Role, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	for role, name := range Labels {
		if strings.ToLower(name) == l || string(role) == l {
			return role, true
		}
	}
	return "", false
}

// Row holds the raw cell values of one candidate transaction, keyed by role.
// Absent roles are simply missing keys.
type Row map[Role]string

// Clone returns a copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Empty reports whether no role carries a non-blank value.
func (r Row) Empty() bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Batch is the output of one mapping attempt over one source (a grid or a
// run of text lines): an ordered row sequence under a subset of the roles.
type Batch struct {
	Source string // strategy that produced the batch, for logging
	Roles  []Role
	Rows   []Row
}

// HasRole reports whether the batch schema includes the role.
func (b Batch) HasRole(role Role) bool {
	for _, r := range b.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Table is the aligned, merged result for one document. It is immutable
// after deduplication.
type Table struct {
	Roles []Role
	Rows  []Row
}

// Align unions a list of batches into one table under the superset schema.
// Before concatenation each batch gets its signed amount derived as
// credit minus charge (missing side treated as zero) wherever the batch carries
// charge/credit columns but no usable amount value. Batch order is
// preserved: callers pass higher-fidelity sources first.
func Align(batches []Batch) Table {
	roleSet := make(map[Role]bool)
	for _, b := range batches {
		for _, r := range b.Roles {
			roleSet[r] = true
		}
	}

	var roles []Role
	for _, r := range CanonicalOrder {
		if roleSet[r] {
			roles = append(roles, r)
		}
	}

	needAmount := roleSet[RoleCharge] || roleSet[RoleCredit]
	if needAmount && !roleSet[RoleAmount] {
		roles = insertCanonical(roles, RoleAmount)
	}

	var rows []Row
	for _, b := range batches {
		derive := b.HasRole(RoleCharge) || b.HasRole(RoleCredit)
		if derive && b.HasRole(RoleAmount) {
			// Only derive when the batch's amount column is entirely empty.
			derive = true
			for _, r := range b.Rows {
				if strings.TrimSpace(r[RoleAmount]) != "" {
					derive = false
					break
				}
			}
		}
		for _, r := range b.Rows {
			row := r.Clone()
			if derive {
				if amt, ok := deriveAmount(row); ok {
					row[RoleAmount] = amt
				}
			}
			rows = append(rows, row)
		}
	}

	return Table{Roles: roles, Rows: rows}
}

// deriveAmount computes credit minus charge from the row's raw cells. A missing
// side counts as zero; both sides missing yields no amount.
func deriveAmount(row Row) (string, bool) {
	charge, chargeOK := coerce.ParseAmount(row[RoleCharge])
	credit, creditOK := coerce.ParseAmount(row[RoleCredit])
	if !chargeOK && !creditOK {
		return "", false
	}
	if !chargeOK {
		charge = decimal.Zero
	}
	if !creditOK {
		credit = decimal.Zero
	}
	return credit.Abs().Sub(charge.Abs()).StringFixed(2), true
}

func insertCanonical(roles []Role, role Role) []Role {
	for _, r := range roles {
		if r == role {
			return roles
		}
	}
	out := make([]Role, 0, len(roles)+1)
	present := make(map[Role]bool, len(roles)+1)
	for _, r := range roles {
		present[r] = true
	}
	present[role] = true
	for _, r := range CanonicalOrder {
		if present[r] {
			out = append(out, r)
		}
	}
	return out
}

// Dedup removes rows that are identical across every populated role,
// keeping the first occurrence. Rows differing in any single field are
// retained: under-merging is preferred over losing a real transaction.
// Empty cells are excluded from the identity so that a row mapped from a
// grid with a blank cell still collapses with the same row recovered by a
// strategy that omits absent values.
func Dedup(t Table) Table {
	seen := make(map[string]bool, len(t.Rows))
	out := Table{Roles: t.Roles, Rows: make([]Row, 0, len(t.Rows))}
	var sb strings.Builder
	for _, row := range t.Rows {
		sb.Reset()
		for _, role := range CanonicalOrder {
			if v, ok := row[role]; ok && strings.TrimSpace(v) != "" {
				sb.WriteString(string(role))
				sb.WriteByte('=')
				sb.WriteString(v)
				sb.WriteByte('\x1f')
			}
		}
		key := sb.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out.Rows = append(out.Rows, row)
	}
	return out
}
