package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradebot/backoffice/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// CanWithdraw fails closed: without a plan, a start date, or enough completed
// weeks the answer is no.
func CanWithdraw(balance decimal.Decimal, sub *domain.Subscription, plan *domain.Plan, now time.Time) domain.Eligibility {
	if plan == nil {
		return domain.Eligibility{Reason: "no active plan"}
	}
	if sub == nil || sub.StartDate == nil {
		return domain.Eligibility{Reason: "subscription has not started"}
	}
	if balance.IsNegative() {
		return domain.Eligibility{Reason: "balance is invalid"}
	}
	weeks := CompletedWeeks(*sub.StartDate, now)
	if minWeeks := plan.WithdrawalConditions.MinWeeks; weeks < minWeeks {
		return domain.Eligibility{
			Reason: fmt.Sprintf("withdrawals open after %d weeks, %d completed", minWeeks, weeks),
		}
	}
	return domain.Eligibility{Allowed: true}
}

// PenaltyPercentage returns the deduction for a withdrawal in the given tenure
// week. When several brackets match, the highest percentage wins.
func PenaltyPercentage(wc domain.WithdrawalConditions, week domain.WeekNumber) decimal.Decimal {
	w := int(week)
	if wc.MaturityWeeks > 0 && w >= wc.MaturityWeeks {
		return decimal.Zero
	}

	pct := decimal.Zero
	for _, pb := range wc.Penalties {
		var match bool
		switch {
		case pb.WeekRange != nil:
			match = pb.WeekRange.Contains(w)
		case pb.WeeksEarly != nil:
			match = wc.MaturityWeeks > 0 && wc.MaturityWeeks-w >= *pb.WeeksEarly
		}
		if match && pb.Percentage.GreaterThan(pct) {
			pct = pb.Percentage
		}
	}
	return pct
}

// CalculateWithdrawalAmount applies the tenure penalty to requested. The
// payout is always within [0, requested]; rejecting a zero payout is left to
// the caller.
func CalculateWithdrawalAmount(sub *domain.Subscription, balance decimal.Decimal, plan *domain.Plan, requested decimal.Decimal, now time.Time) (domain.WithdrawalQuote, error) {
	var q domain.WithdrawalQuote
	if plan == nil || sub == nil || sub.StartDate == nil {
		return q, domain.ErrValidation("no active subscription")
	}
	if requested.IsNegative() {
		return q, domain.ErrValidation("requested amount must not be negative")
	}
	if balance.IsNegative() {
		return q, domain.ErrValidation("balance must not be negative")
	}

	week, err := domain.NewWeekNumber(int(CurrentWeek(sub.StartDate, now)))
	if err != nil {
		return q, err
	}
	pct := PenaltyPercentage(plan.WithdrawalConditions, week)
	penalty := requested.Mul(pct).Div(hundred).Round(USDTPlaces)
	if penalty.GreaterThan(requested) {
		penalty = requested
	}
	amount := requested.Sub(penalty)
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	return domain.WithdrawalQuote{
		RequestedAmount:   requested,
		Amount:            amount,
		PenaltyAmount:     penalty,
		PenaltyPercentage: pct,
		TenureWeek:        week,
	}, nil
}
