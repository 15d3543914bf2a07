package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/internal/testutil"
)

var t0 = time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)

const (
	walletA = "0x1111111111111111111111111111111111111111"
	walletB = "0x2222222222222222222222222222222222222222"
	walletC = "0x3333333333333333333333333333333333333333"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func two() *int { n := 2; return &n }

func basicPlan() *domain.Plan {
	return &domain.Plan{
		ID: "basic", Family: "basic", Name: "Basic", Version: 1,
		WeeklyRequiredAmount: dec("1000"),
		ProfitRateDaily:      dec("0.01"),
		WithdrawalConditions: domain.WithdrawalConditions{
			MinWeeks:      4,
			MaturityWeeks: 8,
			Penalties:     []domain.PenaltyBracket{{WeeksEarly: two(), Percentage: dec("20")}},
		},
	}
}

func premiumPlan() *domain.Plan {
	return &domain.Plan{
		ID: "premium", Family: "premium", Name: "Premium", Version: 1,
		WeeklyRequiredAmount: dec("2500"),
		ProfitRateDaily:      dec("0.012"),
	}
}

// fixture wires every service to in-memory stores and a movable clock.
type fixture struct {
	users       *testutil.MockUserRepository
	plans       *testutil.MockPlanRepository
	subs        *testutil.MockSubscriptionRepository
	withdrawals *testutil.MockWithdrawalRepository
	cache       *testutil.MockCacheRepository
	oracle      *testutil.MockOracle
	now         time.Time

	subscriptions *SubscriptionService
	withdraw      *WithdrawalService
	accrual       *AccrualService
	planSvc       *PlanService
	admin         *AdminService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:       testutil.NewMockUserRepository(),
		plans:       testutil.NewMockPlanRepository(basicPlan(), premiumPlan()),
		subs:        testutil.NewMockSubscriptionRepository(),
		withdrawals: testutil.NewMockWithdrawalRepository(),
		cache:       testutil.NewMockCacheRepository(),
		oracle:      testutil.NewMockOracle(),
		now:         t0,
	}
	f.users.Subs = f.subs
	f.subs.Withdrawals = f.withdrawals
	log := zerolog.Nop()

	f.subscriptions = NewSubscriptionService(f.users, f.plans, f.subs, f.withdrawals, f.oracle, log)
	f.subscriptions.now = f.clock
	f.withdraw = NewWithdrawalService(f.users, f.plans, f.subs, f.withdrawals, f.oracle, log)
	f.withdraw.now = f.clock
	f.accrual = NewAccrualService(f.users, f.plans, f.subs, f.oracle, f.cache, 4, log)
	f.accrual.now = f.clock
	f.planSvc = NewPlanService(f.plans, log)
	f.planSvc.now = f.clock
	f.admin = NewAdminService(f.users, f.subs, f.withdrawals, f.accrual, log)
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

// subscribe creates a user with the given balance and subscribes it at the
// current fixture time.
func (f *fixture) subscribe(t *testing.T, userID, wallet, balance, planID string) *domain.Subscription {
	t.Helper()
	f.users.AddUser(userID, wallet)
	f.oracle.SetBalance(wallet, balance)
	sub, err := f.subscriptions.Subscribe(context.Background(), userID, planID)
	if err != nil {
		t.Fatalf("Subscribe(%s) error = %v", userID, err)
	}
	return sub
}

func assertKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	if !domain.IsKind(err, kind) {
		t.Fatalf("error = %v, want kind %s", err, kind)
	}
}

func assertDecimal(t *testing.T, name string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}
