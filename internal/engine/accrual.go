package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradebot/backoffice/internal/domain"
)

// USDTPlaces is the precision every accrued amount is truncated to.
const USDTPlaces = 6

// AccrualResult describes what a single Advance call did.
type AccrualResult struct {
	Days       int             `json:"days"`
	ActiveDays int             `json:"activeDays"`
	Accrued    decimal.Decimal `json:"accrued"`
}

// DailyRate returns the plan's base rate plus the bonus of the highest
// threshold the balance reaches. Threshold order in the plan does not matter.
func DailyRate(plan *domain.Plan, balance decimal.Decimal) decimal.Decimal {
	var best *domain.BonusRate
	for i := range plan.BonusRateThresholds {
		b := &plan.BonusRateThresholds[i]
		if balance.LessThan(b.Threshold) {
			continue
		}
		if best == nil || b.Threshold.GreaterThan(best.Threshold) {
			best = b
		}
	}
	if best == nil {
		return plan.ProfitRateDaily
	}
	return plan.ProfitRateDaily.Add(best.Rate)
}

// Advance accrues simulated profit for every whole day since the last check.
//
// Balance is assumed constant across the window. lastBalanceCheck moves
// forward by exactly the number of whole days processed, so a partial day is
// carried into the next call and calling twice with the same now is a no-op.
func Advance(sub *domain.Subscription, plan *domain.Plan, balance decimal.Decimal, now time.Time) (AccrualResult, error) {
	res := AccrualResult{Accrued: decimal.Zero}

	if balance.IsNegative() {
		return res, domain.ErrValidation("balance must not be negative")
	}
	if err := sub.CheckConsistency(); err != nil {
		return res, err
	}
	if !sub.Subscribed() || plan == nil {
		sub.BotActive = false
		return res, nil
	}
	if plan.ID != *sub.PlanID {
		return res, domain.ErrInconsistency(fmt.Sprintf("plan %s does not match subscription plan %s", plan.ID, *sub.PlanID))
	}

	last := *sub.StartDate
	if sub.LastBalanceCheck != nil {
		last = *sub.LastBalanceCheck
	}
	days := WholeDays(last, now)
	if days == 0 {
		return res, nil
	}

	daily := balance.Mul(DailyRate(plan, balance)).Truncate(USDTPlaces)
	deposits := sub.WeeklyDeposits
	profits := sub.FakeProfits
	active := false

	for d := 1; d <= days; d++ {
		day := last.Add(time.Duration(d) * Day)
		week, err := domain.NewWeekNumber(int(CurrentWeek(sub.StartDate, day)))
		if err != nil {
			return AccrualResult{Accrued: decimal.Zero}, err
		}
		req := Requirement(plan, week)
		active = balance.GreaterThanOrEqual(req)
		deposits = RecordWeek(deposits, week, balance, req, day)
		if active {
			profits = profits.Add(daily)
			res.ActiveDays++
			res.Accrued = res.Accrued.Add(daily)
		}
	}

	next := last.Add(time.Duration(days) * Day)
	sub.WeeklyDeposits = deposits
	sub.FakeProfits = profits
	sub.BotActive = active
	sub.LastBalanceCheck = &next
	res.Days = days
	return res, nil
}

// Status computes the bot's live state for the current balance without
// touching the subscription.
func Status(sub *domain.Subscription, plan *domain.Plan, balance decimal.Decimal, now time.Time) *domain.BotStatus {
	if sub == nil || !sub.Subscribed() || plan == nil {
		return nil
	}
	week := CurrentWeek(sub.StartDate, now)
	req := Requirement(plan, week)
	st := &domain.BotStatus{
		Week:        week,
		Requirement: req,
		Active:      balance.GreaterThanOrEqual(req),
		DailyRate:   decimal.Zero,
		Shortfall:   decimal.Zero,
	}
	if st.Active {
		st.DailyRate = DailyRate(plan, balance)
	} else {
		st.Shortfall = req.Sub(balance)
	}
	return st
}
