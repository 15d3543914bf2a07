package engine

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradebot/backoffice/internal/domain"
)

// Requirement returns the balance a plan requires during the given week. The
// requirement is flat across weeks.
func Requirement(plan *domain.Plan, _ domain.WeekNumber) decimal.Decimal {
	return plan.WeeklyRequiredAmount
}

// RecordWeek marks week in the ledger. A week that was met once stays met for
// the rest of the subscription, even if the balance dips later. The input
// slice is not modified.
func RecordWeek(deposits []domain.WeeklyDeposit, week domain.WeekNumber, balance, requirement decimal.Decimal, at time.Time) []domain.WeeklyDeposit {
	met := balance.GreaterThanOrEqual(requirement)

	out := make([]domain.WeeklyDeposit, len(deposits), len(deposits)+1)
	copy(out, deposits)
	for i := range out {
		if out[i].Week == week {
			out[i].Completed = out[i].Completed || met
			return out
		}
	}
	return append(out, domain.WeeklyDeposit{
		Week:      week,
		Amount:    balance,
		Date:      at,
		Completed: met,
	})
}

// WeekCompleted reports whether week is marked as met in the ledger.
func WeekCompleted(deposits []domain.WeeklyDeposit, week domain.WeekNumber) bool {
	for _, d := range deposits {
		if d.Week == week {
			return d.Completed
		}
	}
	return false
}
