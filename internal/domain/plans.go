package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan is an admin-authored trading-bot plan. A stored plan is never edited in
// place: a revision archives the row and inserts the next version, so a
// subscriber keeps the exact terms they signed up for. Family is the ID of the
// first version and is shared by all its revisions.
type Plan struct {
	ID                   string               `json:"id"`
	Family               string               `json:"family"`
	Name                 string               `json:"name"`
	Version              int                  `json:"version"`
	WeeklyRequiredAmount decimal.Decimal      `json:"weeklyRequiredAmount"`
	ProfitRateDaily      decimal.Decimal      `json:"profitRateDaily"`
	BonusRateThresholds  []BonusRate          `json:"bonusRateThresholds"`
	WithdrawalConditions WithdrawalConditions `json:"withdrawalConditions"`
	Archived             bool                 `json:"archived"`
	CreatedAt            time.Time            `json:"createdAt"`
}

// BonusRate is an extra daily rate unlocked once the balance reaches Threshold.
type BonusRate struct {
	Threshold decimal.Decimal `json:"threshold"`
	Rate      decimal.Decimal `json:"rate"`
}

// WithdrawalConditions holds the tenure rules applied at withdrawal time.
type WithdrawalConditions struct {
	MinWeeks int `json:"minWeeks"`
	// MaturityWeeks is the tenure week from which no penalty applies.
	// WeeksEarly brackets count backwards from it.
	MaturityWeeks int              `json:"maturityWeeks,omitempty"`
	Penalties     []PenaltyBracket `json:"penalties"`
}

// PenaltyBracket maps a tenure window to a percentage deduction. Exactly one
// of WeeksEarly or WeekRange is set.
type PenaltyBracket struct {
	WeeksEarly *int            `json:"weeksEarly,omitempty"`
	WeekRange  *WeekRange      `json:"weekRange,omitempty"`
	Percentage decimal.Decimal `json:"percentage"`
}

// WeekRange is an inclusive tenure-week window. Max 0 leaves it open-ended.
type WeekRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether week falls inside the range.
func (r WeekRange) Contains(week int) bool {
	if week < r.Min {
		return false
	}
	return r.Max == 0 || week <= r.Max
}

var hundred = decimal.NewFromInt(100)

// Column scales of plans.weekly_required_amount and plans.profit_rate_daily.
const (
	amountScale = 6
	rateScale   = 8
)

func fitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// Validate checks the plan's shape. It is called before a plan is stored and
// again when one is loaded, so the engine can rely on the invariants.
func (p *Plan) Validate() error {
	if p.Name == "" {
		return ErrValidation("plan name is required")
	}
	if p.WeeklyRequiredAmount.IsNegative() {
		return ErrValidation("weeklyRequiredAmount must not be negative")
	}
	if !fitsScale(p.WeeklyRequiredAmount, amountScale) {
		return ErrValidation(fmt.Sprintf("weeklyRequiredAmount allows at most %d decimal places", amountScale))
	}
	if p.ProfitRateDaily.IsNegative() || p.ProfitRateDaily.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return ErrValidation("profitRateDaily must be in [0, 1)")
	}
	if !fitsScale(p.ProfitRateDaily, rateScale) {
		return ErrValidation(fmt.Sprintf("profitRateDaily allows at most %d decimal places", rateScale))
	}

	seen := make(map[string]bool, len(p.BonusRateThresholds))
	for _, b := range p.BonusRateThresholds {
		if b.Threshold.IsNegative() || b.Rate.IsNegative() {
			return ErrValidation("bonus thresholds and rates must not be negative")
		}
		key := b.Threshold.String()
		if seen[key] {
			return ErrValidation(fmt.Sprintf("duplicate bonus threshold %s", key))
		}
		seen[key] = true
	}

	wc := p.WithdrawalConditions
	if wc.MinWeeks < 0 || wc.MaturityWeeks < 0 {
		return ErrValidation("withdrawal week counts must not be negative")
	}
	for i, pb := range wc.Penalties {
		if (pb.WeeksEarly == nil) == (pb.WeekRange == nil) {
			return ErrValidation(fmt.Sprintf("penalty %d: set exactly one of weeksEarly or weekRange", i))
		}
		if pb.Percentage.IsNegative() || pb.Percentage.GreaterThan(hundred) {
			return ErrValidation(fmt.Sprintf("penalty %d: percentage must be in [0, 100]", i))
		}
		if pb.WeeksEarly != nil {
			if *pb.WeeksEarly < 1 {
				return ErrValidation(fmt.Sprintf("penalty %d: weeksEarly must be at least 1", i))
			}
			if wc.MaturityWeeks == 0 {
				return ErrValidation("maturityWeeks is required when a penalty uses weeksEarly")
			}
		}
		if r := pb.WeekRange; r != nil {
			if r.Min < 1 || (r.Max != 0 && r.Max < r.Min) {
				return ErrValidation(fmt.Sprintf("penalty %d: invalid week range [%d, %d]", i, r.Min, r.Max))
			}
		}
	}
	return nil
}

// PlanRequest is the admin input for creating or revising a plan.
type PlanRequest struct {
	Name                 string               `json:"name" validate:"required,min=1,max=100"`
	WeeklyRequiredAmount decimal.Decimal      `json:"weeklyRequiredAmount"`
	ProfitRateDaily      decimal.Decimal      `json:"profitRateDaily"`
	BonusRateThresholds  []BonusRate          `json:"bonusRateThresholds"`
	WithdrawalConditions WithdrawalConditions `json:"withdrawalConditions"`
}

// Revise builds the next version of p from req. The result is not archived
// and still has to be validated.
func (p *Plan) Revise(req PlanRequest, now time.Time) Plan {
	next := req.ToPlan(p.Family, now)
	next.Version = p.Version + 1
	next.ID = fmt.Sprintf("%s-v%d", p.Family, next.Version)
	return next
}

// ToPlan builds version 1 of a plan in the given family.
func (r PlanRequest) ToPlan(family string, now time.Time) Plan {
	return Plan{
		ID:                   family,
		Family:               family,
		Name:                 r.Name,
		Version:              1,
		WeeklyRequiredAmount: r.WeeklyRequiredAmount,
		ProfitRateDaily:      r.ProfitRateDaily,
		BonusRateThresholds:  r.BonusRateThresholds,
		WithdrawalConditions: r.WithdrawalConditions,
		CreatedAt:            now,
	}
}

// NewPlanFamily generates the ID for a new plan family.
func NewPlanFamily() string {
	return uuid.New().String()
}

func intPtr(v int) *int { return &v }

// DefaultPlans returns the plans seeded into an empty database.
func DefaultPlans() []Plan {
	return []Plan{
		{
			ID:                   "starter",
			Family:               "starter",
			Name:                 "Starter",
			Version:              1,
			WeeklyRequiredAmount: decimal.NewFromInt(100),
			ProfitRateDaily:      decimal.RequireFromString("0.005"),
			BonusRateThresholds: []BonusRate{
				{Threshold: decimal.NewFromInt(500), Rate: decimal.RequireFromString("0.001")},
			},
			WithdrawalConditions: WithdrawalConditions{
				MinWeeks:      2,
				MaturityWeeks: 8,
				Penalties: []PenaltyBracket{
					{WeekRange: &WeekRange{Min: 1, Max: 4}, Percentage: decimal.NewFromInt(20)},
					{WeekRange: &WeekRange{Min: 5, Max: 7}, Percentage: decimal.NewFromInt(10)},
				},
			},
		},
		{
			ID:                   "pro",
			Family:               "pro",
			Name:                 "Pro",
			Version:              1,
			WeeklyRequiredAmount: decimal.NewFromInt(1000),
			ProfitRateDaily:      decimal.RequireFromString("0.01"),
			BonusRateThresholds: []BonusRate{
				{Threshold: decimal.NewFromInt(2500), Rate: decimal.RequireFromString("0.002")},
				{Threshold: decimal.NewFromInt(5000), Rate: decimal.RequireFromString("0.004")},
			},
			WithdrawalConditions: WithdrawalConditions{
				MinWeeks:      4,
				MaturityWeeks: 12,
				Penalties: []PenaltyBracket{
					{WeeksEarly: intPtr(2), Percentage: decimal.NewFromInt(20)},
					{WeeksEarly: intPtr(6), Percentage: decimal.NewFromInt(35)},
				},
			},
		},
		{
			ID:                   "whale",
			Family:               "whale",
			Name:                 "Whale",
			Version:              1,
			WeeklyRequiredAmount: decimal.NewFromInt(10000),
			ProfitRateDaily:      decimal.RequireFromString("0.015"),
			BonusRateThresholds: []BonusRate{
				{Threshold: decimal.NewFromInt(25000), Rate: decimal.RequireFromString("0.003")},
			},
			WithdrawalConditions: WithdrawalConditions{
				MinWeeks:      6,
				MaturityWeeks: 16,
				Penalties: []PenaltyBracket{
					{WeekRange: &WeekRange{Min: 1, Max: 8}, Percentage: decimal.NewFromInt(30)},
					{WeekRange: &WeekRange{Min: 9, Max: 15}, Percentage: decimal.NewFromInt(15)},
				},
			},
		},
	}
}
