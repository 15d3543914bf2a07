package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradebot/backoffice/internal/domain"
)

func TestAdvance_Scenarios(t *testing.T) {
	now := t0.Add(30 * Day)

	tests := []struct {
		name        string
		balance     string
		wantAccrued string
		wantActive  bool
	}{
		{"balance above requirement accrues two days", "1500", "30", true},
		{"balance below requirement accrues nothing", "500", "0", false},
		{"balance exactly at requirement is active", "1000", "20", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := basicPlan()
			sub := subscribedAt(plan, t0, now.Add(-2*Day))

			res, err := Advance(sub, plan, dec(tt.balance), now)
			if err != nil {
				t.Fatalf("Advance() error = %v", err)
			}
			assertDecimal(t, "fakeProfits", sub.FakeProfits, dec(tt.wantAccrued))
			assertDecimal(t, "accrued", res.Accrued, dec(tt.wantAccrued))
			if sub.BotActive != tt.wantActive {
				t.Errorf("botActive = %v, want %v", sub.BotActive, tt.wantActive)
			}
			if res.Days != 2 {
				t.Errorf("days = %d, want 2", res.Days)
			}
			if !sub.LastBalanceCheck.Equal(now) {
				t.Errorf("lastBalanceCheck = %s, want %s", sub.LastBalanceCheck, now)
			}
		})
	}
}

func TestAdvance_Idempotent(t *testing.T) {
	plan := basicPlan()
	now := t0.Add(3*Day + 5*time.Hour)
	sub := subscribedAt(plan, t0, t0)

	if _, err := Advance(sub, plan, dec("1500"), now); err != nil {
		t.Fatalf("first Advance() error = %v", err)
	}
	profits, active, last := sub.FakeProfits, sub.BotActive, *sub.LastBalanceCheck
	ledger := len(sub.WeeklyDeposits)

	res, err := Advance(sub, plan, dec("1500"), now)
	if err != nil {
		t.Fatalf("second Advance() error = %v", err)
	}
	if res.Days != 0 {
		t.Errorf("second call processed %d days, want 0", res.Days)
	}
	assertDecimal(t, "fakeProfits", sub.FakeProfits, profits)
	if sub.BotActive != active || !sub.LastBalanceCheck.Equal(last) || len(sub.WeeklyDeposits) != ledger {
		t.Error("second Advance with the same now changed state")
	}
}

func TestAdvance_CarriesPartialDay(t *testing.T) {
	plan := basicPlan()
	sub := subscribedAt(plan, t0, t0)

	// 1.5 days: one day accrues, the half day is carried.
	if _, err := Advance(sub, plan, dec("1000"), t0.Add(36*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if !sub.LastBalanceCheck.Equal(t0.Add(Day)) {
		t.Fatalf("lastBalanceCheck = %s, want start + 1 day", sub.LastBalanceCheck)
	}

	// Another 12 hours completes the second day.
	res, err := Advance(sub, plan, dec("1000"), t0.Add(48*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if res.Days != 1 {
		t.Errorf("days = %d, want 1", res.Days)
	}
	assertDecimal(t, "fakeProfits", sub.FakeProfits, dec("20"))
}

func TestAdvance_Monotonic(t *testing.T) {
	plan := basicPlan()
	sub := subscribedAt(plan, t0, t0)
	balances := []string{"1500", "200", "999.99", "5000", "0", "1000"}

	now := t0
	prev := sub.FakeProfits
	for i, b := range balances {
		now = now.Add(time.Duration(i+1) * 17 * time.Hour)
		if _, err := Advance(sub, plan, dec(b), now); err != nil {
			t.Fatalf("step %d: Advance() error = %v", i, err)
		}
		if sub.FakeProfits.LessThan(prev) {
			t.Fatalf("step %d: fakeProfits decreased from %s to %s", i, prev, sub.FakeProfits)
		}
		if sub.LastBalanceCheck.After(now) {
			t.Fatalf("step %d: lastBalanceCheck %s is after now %s", i, sub.LastBalanceCheck, now)
		}
		prev = sub.FakeProfits
	}
}

func TestAdvance_BonusRate(t *testing.T) {
	plan := basicPlan()
	// Deliberately unordered.
	plan.BonusRateThresholds = []domain.BonusRate{
		{Threshold: dec("5000"), Rate: dec("0.004")},
		{Threshold: dec("2500"), Rate: dec("0.002")},
	}

	tests := []struct {
		balance string
		want    string
	}{
		{"1500", "15"},     // base only
		{"2500", "30"},     // 2500 * 0.012
		{"4999", "59.988"}, // 4999 * 0.012
		{"6000", "84"},     // 6000 * 0.014
	}
	for _, tt := range tests {
		sub := subscribedAt(plan, t0, t0)
		if _, err := Advance(sub, plan, dec(tt.balance), t0.Add(Day)); err != nil {
			t.Fatal(err)
		}
		assertDecimal(t, "fakeProfits@"+tt.balance, sub.FakeProfits, dec(tt.want))
	}
}

func TestAdvance_TruncatesToUSDTPrecision(t *testing.T) {
	plan := basicPlan()
	plan.WeeklyRequiredAmount = dec("1")
	plan.ProfitRateDaily = dec("0.0123457")
	sub := subscribedAt(plan, t0, t0)

	// 1234.5678 * 0.0123457 = 15.241726... truncated per day.
	if _, err := Advance(sub, plan, dec("1234.5678"), t0.Add(3*Day)); err != nil {
		t.Fatal(err)
	}
	daily := dec("1234.5678").Mul(dec("0.0123457")).Truncate(USDTPlaces)
	assertDecimal(t, "fakeProfits", sub.FakeProfits, daily.Mul(decimal.NewFromInt(3)))
	if sub.FakeProfits.Exponent() < -USDTPlaces {
		t.Errorf("fakeProfits %s has more than %d decimals", sub.FakeProfits, USDTPlaces)
	}
}

func TestAdvance_RecordsEveryElapsedWeek(t *testing.T) {
	plan := basicPlan()
	sub := subscribedAt(plan, t0, t0)

	if _, err := Advance(sub, plan, dec("1500"), t0.Add(15*Day+3*time.Hour)); err != nil {
		t.Fatal(err)
	}
	// Days 1..15 fall in weeks 1, 2 and 3. Each entry is dated by the first
	// accrued day of its week, not by the time of the catch-up run.
	if len(sub.WeeklyDeposits) != 3 {
		t.Fatalf("ledger has %d weeks, want 3: %+v", len(sub.WeeklyDeposits), sub.WeeklyDeposits)
	}
	wantDates := []time.Time{t0.Add(Day), t0.Add(7 * Day), t0.Add(14 * Day)}
	for i, d := range sub.WeeklyDeposits {
		if int(d.Week) != i+1 || !d.Completed {
			t.Errorf("ledger[%d] = %+v, want completed week %d", i, d, i+1)
		}
		if !d.Date.Equal(wantDates[i]) {
			t.Errorf("ledger[%d].date = %s, want %s", i, d.Date, wantDates[i])
		}
	}
	assertDecimal(t, "fakeProfits", sub.FakeProfits, dec("225"))
}

func TestAdvance_NotSubscribed(t *testing.T) {
	sub := &domain.Subscription{UserID: "u1", BotActive: true}

	res, err := Advance(sub, nil, dec("100000"), t0)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if sub.BotActive {
		t.Error("bot should be inactive without a plan")
	}
	if res.Days != 0 || !sub.FakeProfits.IsZero() {
		t.Error("nothing should accrue without a plan")
	}
}

func TestAdvance_Errors(t *testing.T) {
	plan := basicPlan()

	tests := []struct {
		name    string
		sub     func() *domain.Subscription
		plan    *domain.Plan
		balance string
		kind    domain.ErrorKind
	}{
		{
			name:    "negative balance",
			sub:     func() *domain.Subscription { return subscribedAt(plan, t0, t0) },
			plan:    plan,
			balance: "-1",
			kind:    domain.KindValidation,
		},
		{
			name: "plan without start date",
			sub: func() *domain.Subscription {
				s := subscribedAt(plan, t0, t0)
				s.StartDate = nil
				return s
			},
			plan:    plan,
			balance: "1500",
			kind:    domain.KindInternalInconsistency,
		},
		{
			name:    "plan mismatch",
			sub:     func() *domain.Subscription { return subscribedAt(plan, t0, t0) },
			plan:    &domain.Plan{ID: "other", Name: "Other"},
			balance: "1500",
			kind:    domain.KindInternalInconsistency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := tt.sub()
			before := sub.Clone()
			_, err := Advance(sub, tt.plan, dec(tt.balance), t0.Add(5*Day))
			if !domain.IsKind(err, tt.kind) {
				t.Fatalf("Advance() error = %v, want kind %s", err, tt.kind)
			}
			if !sub.FakeProfits.Equal(before.FakeProfits) {
				t.Error("failed Advance changed fakeProfits")
			}
		})
	}
}

func TestStatus(t *testing.T) {
	plan := basicPlan()
	sub := subscribedAt(plan, t0, t0)

	st := Status(sub, plan, dec("600"), t0.Add(8*Day))
	if st.Active {
		t.Error("status should be inactive below requirement")
	}
	if st.Week != 2 {
		t.Errorf("week = %d, want 2", st.Week)
	}
	assertDecimal(t, "shortfall", st.Shortfall, dec("400"))

	st = Status(sub, plan, dec("1500"), t0)
	if !st.Active {
		t.Error("status should be active at or above requirement")
	}
	assertDecimal(t, "dailyRate", st.DailyRate, dec("0.01"))

	if Status(&domain.Subscription{}, nil, dec("1"), t0) != nil {
		t.Error("status without a plan should be nil")
	}
}
