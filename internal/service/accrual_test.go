package service

import (
	"context"
	"testing"

	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/internal/engine"
)

func TestAccrualService_RunOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.subscribe(t, "active", walletA, "1500", "basic")
	f.subscribe(t, "short", walletB, "1000", "basic")
	f.oracle.SetBalance(walletB, "500") // fell below the requirement after joining
	f.subscribe(t, "broken", walletC, "1000", "basic")
	delete(f.oracle.Balances, walletC)
	f.users.AddUser("idle", "0x4444444444444444444444444444444444444444")

	f.advance(3 * engine.Day)
	report, err := f.accrual.RunOnce(ctx, TriggerManual)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if report.Processed != 3 || report.Advanced != 2 || report.Failed != 1 || report.ActiveBots != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if len(report.Errors) != 1 {
		t.Errorf("errors = %v, want one entry", report.Errors)
	}
	assertDecimal(t, "accrued", report.Accrued, dec("45"))

	active, _ := f.subs.FindByUserID(ctx, "active")
	assertDecimal(t, "active profits", active.FakeProfits, dec("45"))
	short, _ := f.subs.FindByUserID(ctx, "short")
	if short.BotActive || !short.FakeProfits.IsZero() {
		t.Errorf("below-requirement user accrued: %+v", short)
	}

	// Same instant: nothing left to settle.
	again, err := f.accrual.RunOnce(ctx, TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if again.Advanced != 0 || again.Skipped != 2 || !again.Accrued.IsZero() {
		t.Errorf("second run should be a no-op, got %+v", again)
	}
}

func TestAccrualService_LastReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.subscribe(t, "u1", walletA, "1500", "basic")
	f.advance(engine.Day)

	if _, err := f.accrual.RunOnce(ctx, TriggerCLI); err != nil {
		t.Fatal(err)
	}
	last, err := f.accrual.LastReport(ctx)
	if err != nil || last == nil {
		t.Fatalf("LastReport() = %v, %v", last, err)
	}
	if last.Trigger != TriggerCLI || last.Processed != 1 {
		t.Errorf("unexpected stored report %+v", last)
	}

	stats, err := f.admin.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.LastAccrual == nil || stats.SubscribedUsers != 1 || stats.ActiveBots != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	assertDecimal(t, "totalFakeProfits", stats.TotalFakeProfits, dec("15"))
}

func TestAccrualService_RefusesOverlap(t *testing.T) {
	f := newFixture(t)
	f.accrual.running.Lock()
	defer f.accrual.running.Unlock()

	_, err := f.accrual.RunOnce(context.Background(), TriggerManual)
	assertKind(t, err, domain.KindIneligible)
}

func TestAccrualService_StartRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	if err := f.accrual.Start(context.Background(), "every now and then"); err == nil {
		f.accrual.Stop()
		t.Fatal("expected an error for an invalid schedule")
	}

	if err := f.accrual.Start(context.Background(), "@every 1h"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.accrual.Start(context.Background(), "@every 1h"); err == nil {
		t.Error("second Start should fail")
	}
	f.accrual.Stop()
}
