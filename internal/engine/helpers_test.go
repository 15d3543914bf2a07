package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradebot/backoffice/internal/domain"
)

var t0 = time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func basicPlan() *domain.Plan {
	return &domain.Plan{
		ID:                   "basic-v1",
		Name:                 "Basic",
		Version:              1,
		WeeklyRequiredAmount: dec("1000"),
		ProfitRateDaily:      dec("0.01"),
	}
}

// subscribedAt returns a subscription that started at start and was last
// checked at last.
func subscribedAt(plan *domain.Plan, start, last time.Time) *domain.Subscription {
	id := plan.ID
	return &domain.Subscription{
		UserID:           "u1",
		PlanID:           &id,
		StartDate:        &start,
		LastBalanceCheck: &last,
		FakeProfits:      decimal.Zero,
		WeeklyDeposits:   []domain.WeeklyDeposit{},
	}
}

func assertDecimal(t *testing.T, name string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Errorf("%s = %s, want %s", name, got.String(), want.String())
	}
}
