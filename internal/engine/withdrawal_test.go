package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradebot/backoffice/internal/domain"
)

func weeksEarly(n int) *int { return &n }

func TestCanWithdraw(t *testing.T) {
	plan := basicPlan()
	plan.WithdrawalConditions.MinWeeks = 4

	tests := []struct {
		name    string
		sub     *domain.Subscription
		plan    *domain.Plan
		now     time.Time
		allowed bool
	}{
		{"no plan", subscribedAt(plan, t0, t0), nil, t0.Add(60 * Day), false},
		{"no start date", &domain.Subscription{UserID: "u1"}, plan, t0.Add(60 * Day), false},
		{"three weeks of tenure", subscribedAt(plan, t0, t0), plan, t0.Add(21 * Day), false},
		{"one hour short of four weeks", subscribedAt(plan, t0, t0), plan, t0.Add(28*Day - time.Hour), false},
		{"exactly four weeks", subscribedAt(plan, t0, t0), plan, t0.Add(28 * Day), true},
		{"well past the minimum", subscribedAt(plan, t0, t0), plan, t0.Add(90 * Day), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanWithdraw(dec("1500"), tt.sub, tt.plan, tt.now)
			if got.Allowed != tt.allowed {
				t.Errorf("CanWithdraw() = %+v, want allowed=%v", got, tt.allowed)
			}
			if !got.Allowed && got.Reason == "" {
				t.Error("a refusal should carry a reason")
			}
		})
	}
}

func TestCalculateWithdrawalAmount_WeeksEarly(t *testing.T) {
	plan := basicPlan()
	plan.WithdrawalConditions = domain.WithdrawalConditions{
		MinWeeks:      1,
		MaturityWeeks: 4,
		Penalties: []domain.PenaltyBracket{
			{WeeksEarly: weeksEarly(2), Percentage: dec("20")},
		},
	}
	sub := subscribedAt(plan, t0, t0)

	tests := []struct {
		name    string
		now     time.Time
		week    domain.WeekNumber
		amount  string
		penalty string
	}{
		{"week 2 is two weeks early", t0.Add(8 * Day), 2, "80", "20"},
		{"week 1 is three weeks early", t0, 1, "80", "20"},
		{"week 3 is only one week early", t0.Add(15 * Day), 3, "100", "0"},
		{"week 4 is mature", t0.Add(22 * Day), 4, "100", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := CalculateWithdrawalAmount(sub, dec("1500"), plan, dec("100"), tt.now)
			if err != nil {
				t.Fatalf("CalculateWithdrawalAmount() error = %v", err)
			}
			if q.TenureWeek != tt.week {
				t.Errorf("tenureWeek = %d, want %d", q.TenureWeek, tt.week)
			}
			assertDecimal(t, "amount", q.Amount, dec(tt.amount))
			assertDecimal(t, "penaltyAmount", q.PenaltyAmount, dec(tt.penalty))
		})
	}
}

func TestCalculateWithdrawalAmount_WeekRange(t *testing.T) {
	plan := basicPlan()
	plan.WithdrawalConditions = domain.WithdrawalConditions{
		Penalties: []domain.PenaltyBracket{
			{WeekRange: &domain.WeekRange{Min: 1, Max: 4}, Percentage: dec("30")},
			{WeekRange: &domain.WeekRange{Min: 5, Max: 8}, Percentage: dec("12.5")},
		},
	}
	sub := subscribedAt(plan, t0, t0)

	tests := []struct {
		week int
		pct  string
	}{
		{1, "30"}, {4, "30"}, {5, "12.5"}, {8, "12.5"}, {9, "0"},
	}
	for _, tt := range tests {
		now := t0.Add(time.Duration(tt.week-1) * 7 * Day)
		q, err := CalculateWithdrawalAmount(sub, dec("0"), plan, dec("200"), now)
		if err != nil {
			t.Fatal(err)
		}
		assertDecimal(t, "penaltyPercentage", q.PenaltyPercentage, dec(tt.pct))
		want := dec("200").Sub(dec("200").Mul(dec(tt.pct)).Div(decimal.NewFromInt(100)))
		assertDecimal(t, "amount", q.Amount, want)
	}
}

func TestPenaltyPercentage_HighestMatchWins(t *testing.T) {
	wc := domain.WithdrawalConditions{
		MaturityWeeks: 12,
		Penalties: []domain.PenaltyBracket{
			{WeekRange: &domain.WeekRange{Min: 1, Max: 6}, Percentage: dec("10")},
			{WeekRange: &domain.WeekRange{Min: 3, Max: 0}, Percentage: dec("25")},
			{WeeksEarly: weeksEarly(8), Percentage: dec("40")},
		},
	}

	tests := []struct {
		week domain.WeekNumber
		want string
	}{
		{1, "40"},  // 11 early, all but the open range match
		{3, "40"},  // all three match
		{5, "25"},  // 7 early: ranges only
		{11, "25"}, // open range
		{12, "0"},  // mature
	}
	for _, tt := range tests {
		assertDecimal(t, "week", PenaltyPercentage(wc, tt.week), dec(tt.want))
	}
}

func TestCalculateWithdrawalAmount_Bounds(t *testing.T) {
	plan := basicPlan()
	plan.WithdrawalConditions = domain.WithdrawalConditions{
		Penalties: []domain.PenaltyBracket{
			{WeekRange: &domain.WeekRange{Min: 1, Max: 1}, Percentage: dec("100")},
			{WeekRange: &domain.WeekRange{Min: 2, Max: 2}, Percentage: dec("33.333333")},
		},
	}
	sub := subscribedAt(plan, t0, t0)

	for _, requested := range []string{"0", "0.000001", "1", "99.99", "123456.789012"} {
		for _, now := range []time.Time{t0, t0.Add(7 * Day), t0.Add(30 * Day)} {
			q, err := CalculateWithdrawalAmount(sub, dec("1"), plan, dec(requested), now)
			if err != nil {
				t.Fatal(err)
			}
			if q.Amount.IsNegative() || q.Amount.GreaterThan(dec(requested)) {
				t.Errorf("amount %s outside [0, %s]", q.Amount, requested)
			}
			if !q.Amount.Add(q.PenaltyAmount).Equal(dec(requested)) {
				t.Errorf("amount %s + penalty %s != requested %s", q.Amount, q.PenaltyAmount, requested)
			}
		}
	}
}

func TestCalculateWithdrawalAmount_Errors(t *testing.T) {
	plan := basicPlan()
	sub := subscribedAt(plan, t0, t0)

	if _, err := CalculateWithdrawalAmount(sub, dec("1"), nil, dec("10"), t0); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("nil plan error = %v, want validation", err)
	}
	if _, err := CalculateWithdrawalAmount(&domain.Subscription{}, dec("1"), plan, dec("10"), t0); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("no start date error = %v, want validation", err)
	}
	if _, err := CalculateWithdrawalAmount(sub, dec("1"), plan, dec("-10"), t0); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("negative request error = %v, want validation", err)
	}
}
