// Package budget holds the pure admission rules for project ledgers:
// whether a proposed payment or expense fits under the project budget, and
// which milestone a payment settles.
package budget

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"agencyledger/internal/core"
)

var errAmountOutOfRange = core.Invalid("amount", fmt.Sprintf(
	"Amount must have at most %d decimal places and %d digits", core.MaxAmountScale, core.MaxAmountDigits))

// Decision is the outcome of an admission check.
type Decision struct {
	Kind     core.EntryKind
	Admitted bool
	Budget   decimal.Decimal

	// Projected is the ledger total if the proposal were applied.
	Projected decimal.Decimal
}

// Exceeds reports whether the proposal was refused for going over budget.
func (d Decision) Exceeds() bool {
	return !d.Admitted
}

// ValidateAmount checks a ledger amount before any budget computation.
// A nil amount means the caller sent none.
func ValidateAmount(amount *decimal.Decimal) error {
	if amount == nil || !amount.IsPositive() {
		return core.Invalid("amount", "Amount must be greater than zero")
	}
	if !core.AmountInRange(*amount) {
		return errAmountOutOfRange
	}
	return nil
}

// Evaluate decides whether proposed may be added to existing under budget.
//
// A budget of zero or less leaves the ledger unconstrained. Otherwise the
// proposal is admitted when existing+proposed <= budget; landing exactly on
// the budget is allowed. Payments and expenses are separate ledgers, so
// existing must only ever hold totals of the given kind.
func Evaluate(kind core.EntryKind, projectBudget, existing, proposed decimal.Decimal) Decision {
	projected := existing.Add(proposed)
	if !projectBudget.IsPositive() {
		return Decision{Kind: kind, Admitted: true, Budget: projectBudget, Projected: projected}
	}
	return Decision{
		Kind:      kind,
		Admitted:  projected.LessThanOrEqual(projectBudget),
		Budget:    projectBudget,
		Projected: projected,
	}
}

// Total sums sibling amounts, skipping the entry identified by exclude.
// Pass uuid.Nil to include every entry.
func Total(entries []core.EntryAmount, exclude uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if exclude != uuid.Nil && e.ID == exclude {
			continue
		}
		total = total.Add(e.Amount)
	}
	return total
}

// Within reports whether total respects budget; used for post-write checks.
func Within(projectBudget, total decimal.Decimal) bool {
	return !projectBudget.IsPositive() || total.LessThanOrEqual(projectBudget)
}

// ExceedsCode returns the conflict code for the ledger kind.
func ExceedsCode(kind core.EntryKind) string {
	if kind == core.ExpenseEntry {
		return core.CodeExpenseExceedsBudget
	}
	return core.CodePaymentExceedsBudget
}

// ExceedsError builds the conflict returned when a proposal is refused.
func ExceedsError(kind core.EntryKind, update bool) *core.Error {
	noun := "Payment"
	if kind == core.ExpenseEntry {
		noun = "Expense"
	}
	msg := noun + " would exceed project budget"
	if update {
		msg = "Updated " + strings.ToLower(noun) + " would exceed project budget"
	}
	return core.Conflict(ExceedsCode(kind), msg)
}
