package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradebot/backoffice/internal/domain"
)

// Subscribe starts a subscription. balance must be a live, uncached reading.
func Subscribe(sub *domain.Subscription, plan *domain.Plan, balance decimal.Decimal, now time.Time) error {
	if plan == nil {
		return domain.ErrValidation("plan is required")
	}
	if sub.Subscribed() {
		return domain.ErrIneligible("already subscribed, change the plan instead")
	}
	if err := checkJoinable(plan, balance); err != nil {
		return err
	}
	reset(sub, plan, now)
	return nil
}

// ChangePlan moves the user to next. It is a full reset: profits and the
// weekly ledger of the old plan are not carried over.
func ChangePlan(sub *domain.Subscription, current, next *domain.Plan, balance decimal.Decimal, now time.Time) error {
	if !sub.Subscribed() {
		return domain.ErrValidation("no active plan to change")
	}
	if current == nil {
		return domain.ErrInconsistency(fmt.Sprintf("subscription plan %s does not exist", *sub.PlanID))
	}
	if next == nil {
		return domain.ErrValidation("plan is required")
	}
	if current.ID != *sub.PlanID {
		return domain.ErrInconsistency(fmt.Sprintf("plan %s does not match subscription plan %s", current.ID, *sub.PlanID))
	}
	if next.ID == current.ID {
		return domain.ErrIneligible("already subscribed to this plan")
	}
	if next.WeeklyRequiredAmount.LessThan(current.WeeklyRequiredAmount) {
		return domain.ErrIneligible("downgrading to a plan with a lower weekly requirement is not allowed")
	}
	if err := checkJoinable(next, balance); err != nil {
		return err
	}
	reset(sub, next, now)
	return nil
}

func checkJoinable(plan *domain.Plan, balance decimal.Decimal) error {
	if plan.Archived {
		return domain.ErrIneligible("plan is no longer offered")
	}
	if balance.LessThan(plan.WeeklyRequiredAmount) {
		return domain.ErrIneligible(fmt.Sprintf("balance %s is below the plan requirement of %s",
			balance.StringFixed(2), plan.WeeklyRequiredAmount.StringFixed(2)))
	}
	return nil
}

func reset(sub *domain.Subscription, plan *domain.Plan, now time.Time) {
	id := plan.ID
	start := now
	last := now
	sub.PlanID = &id
	sub.StartDate = &start
	sub.LastBalanceCheck = &last
	sub.FakeProfits = decimal.Zero
	sub.BotActive = true
	sub.WeeklyDeposits = []domain.WeeklyDeposit{}
}
