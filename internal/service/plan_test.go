package service

import (
	"context"
	"testing"

	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/internal/engine"
)

func TestPlanService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     domain.PlanRequest
		wantErr bool
	}{
		{
			name: "valid plan",
			req:  domain.PlanRequest{Name: "Gold", WeeklyRequiredAmount: dec("5000"), ProfitRateDaily: dec("0.02")},
		},
		{
			name:    "rate of 100% a day",
			req:     domain.PlanRequest{Name: "Moon", WeeklyRequiredAmount: dec("1"), ProfitRateDaily: dec("1")},
			wantErr: true,
		},
		{
			name: "rate with trailing zeros past the column scale",
			req:  domain.PlanRequest{Name: "Exact", WeeklyRequiredAmount: dec("1"), ProfitRateDaily: dec("0.0123456700")},
		},
		{
			name:    "rate finer than 8 decimal places",
			req:     domain.PlanRequest{Name: "Fine", WeeklyRequiredAmount: dec("1"), ProfitRateDaily: dec("0.012345678")},
			wantErr: true,
		},
		{
			name:    "requirement finer than USDT precision",
			req:     domain.PlanRequest{Name: "Dust", WeeklyRequiredAmount: dec("1000.0000001"), ProfitRateDaily: dec("0.01")},
			wantErr: true,
		},
		{
			name: "weeksEarly without maturity",
			req: domain.PlanRequest{Name: "Odd", WeeklyRequiredAmount: dec("1"), ProfitRateDaily: dec("0.01"),
				WithdrawalConditions: domain.WithdrawalConditions{
					Penalties: []domain.PenaltyBracket{{WeeksEarly: two(), Percentage: dec("10")}},
				}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.planSvc.Create(ctx, &tt.req)
			if tt.wantErr {
				assertKind(t, err, domain.KindValidation)
				return
			}
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if p.Version != 1 || p.ID != p.Family || !p.CreatedAt.Equal(t0) {
				t.Errorf("unexpected plan %+v", p)
			}
		})
	}
}

func TestPlanService_ReviseKeepsSubscribersOnTheirVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.subscribe(t, "u1", walletA, "1500", "basic")

	next, err := f.planSvc.Revise(ctx, "basic", &domain.PlanRequest{
		Name:                 "Basic",
		WeeklyRequiredAmount: dec("1200"),
		ProfitRateDaily:      dec("0.005"),
	})
	if err != nil {
		t.Fatalf("Revise() error = %v", err)
	}
	if next.ID != "basic-v2" || next.Version != 2 || next.Family != "basic" {
		t.Errorf("unexpected revision %+v", next)
	}

	active, _ := f.planSvc.List(ctx, false)
	for _, p := range active {
		if p.ID == "basic" {
			t.Error("old version should no longer be on sale")
		}
	}

	// The existing subscriber still earns at the old 1% rate.
	f.advance(engine.Day)
	dash, err := f.subscriptions.Dashboard(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if dash.Plan.ID != "basic" {
		t.Errorf("subscriber moved to %s", dash.Plan.ID)
	}
	assertDecimal(t, "fakeProfits", dash.Subscription.FakeProfits, dec("15"))

	// New subscribers cannot join the archived version.
	f.users.AddUser("u2", walletB)
	f.oracle.SetBalance(walletB, "5000")
	_, err = f.subscriptions.Subscribe(ctx, "u2", "basic")
	assertKind(t, err, domain.KindIneligible)

	_, err = f.planSvc.Revise(ctx, "basic", &domain.PlanRequest{Name: "Again", ProfitRateDaily: dec("0.01")})
	assertKind(t, err, domain.KindIneligible)
}

func TestPlanService_SeedDefaults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.plans.Plans = map[string]*domain.Plan{}

	if err := f.planSvc.SeedDefaults(ctx); err != nil {
		t.Fatal(err)
	}
	plans, _ := f.planSvc.List(ctx, false)
	if len(plans) != len(domain.DefaultPlans()) {
		t.Fatalf("seeded %d plans", len(plans))
	}
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			t.Errorf("default plan %s invalid: %v", p.ID, err)
		}
	}
}

func TestPlanService_Archive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.planSvc.Archive(ctx, "premium"); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	assertKind(t, f.planSvc.Archive(ctx, "premium"), domain.KindValidation)

	all, _ := f.planSvc.List(ctx, true)
	live, _ := f.planSvc.List(ctx, false)
	if len(all) != 2 || len(live) != 1 {
		t.Errorf("all = %d, live = %d", len(all), len(live))
	}
}
