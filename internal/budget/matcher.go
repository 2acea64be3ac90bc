package budget

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"agencyledger/internal/core"
)

// SelectAutoComplete returns the milestone a payment of amount settles.
//
// Only incomplete milestones whose amount equals the payment exactly are
// eligible. When several qualify the earliest due date wins, then the
// earliest creation time, then the lowest id, so the choice never depends
// on the order a store happens to return rows in.
func SelectAutoComplete(candidates []core.Milestone, amount decimal.Decimal) (core.Milestone, bool) {
	eligible := make([]core.Milestone, 0, len(candidates))
	for _, m := range candidates {
		if m.Completed || !m.Amount.Equal(amount) {
			continue
		}
		eligible = append(eligible, m)
	}
	if len(eligible) == 0 {
		return core.Milestone{}, false
	}
	SortForMatch(eligible)
	return eligible[0], true
}

// SortForMatch orders milestones by the auto-completion tie-break.
func SortForMatch(ms []core.Milestone) {
	sort.Slice(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

// Complete returns m transitioned to completed at now.
func Complete(m core.Milestone, now time.Time) core.Milestone {
	m.SetStatus(core.MilestoneCompleted, now)
	m.UpdatedAt = now
	return m
}

// MilestoneWarning reports when a project's milestone amounts drift from its
// budget. The message is advisory and never blocks a write.
func MilestoneWarning(milestones []core.Milestone, projectBudget decimal.Decimal) (string, bool) {
	sum := decimal.Zero
	for _, m := range milestones {
		sum = sum.Add(m.Amount)
	}
	if sum.Equal(projectBudget) {
		return "", false
	}
	return fmt.Sprintf("Sum of milestone amounts (%s) does not match project budget (%s)", sum, projectBudget), true
}
