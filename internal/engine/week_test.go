package engine

import (
	"testing"
	"time"

	"github.com/tradebot/backoffice/internal/domain"
)

func TestCurrentWeek(t *testing.T) {
	start := t0

	tests := []struct {
		name string
		now  time.Time
		want domain.WeekNumber
	}{
		{"same instant is week 1", start, 1},
		{"six days 23 hours is still week 1", start.Add(6*Day + 23*time.Hour), 1},
		{"exactly seven days is week 2", start.Add(7 * Day), 2},
		{"thirteen days is week 2", start.Add(13 * Day), 2},
		{"fourteen days is week 3", start.Add(14 * Day), 3},
		{"clock behind start clamps to week 1", start.Add(-3 * Day), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CurrentWeek(&start, tt.now); got != tt.want {
				t.Errorf("CurrentWeek() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCurrentWeek_NilStart(t *testing.T) {
	if got := CurrentWeek(nil, t0); got != 0 {
		t.Errorf("CurrentWeek(nil) = %d, want 0", got)
	}
}

func TestCompletedWeeks(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 0},
		{6 * Day, 0},
		{7 * Day, 1},
		{21 * Day, 3},
		{27*Day + 23*time.Hour, 3},
		{28 * Day, 4},
	}
	for _, tt := range tests {
		if got := CompletedWeeks(t0, t0.Add(tt.elapsed)); got != tt.want {
			t.Errorf("CompletedWeeks(+%s) = %d, want %d", tt.elapsed, got, tt.want)
		}
	}
}

func TestRecordWeek(t *testing.T) {
	req := dec("1000")

	ledger := RecordWeek(nil, 1, dec("1200"), req, t0)
	if len(ledger) != 1 || !ledger[0].Completed {
		t.Fatalf("first record = %+v, want one completed entry", ledger)
	}
	assertDecimal(t, "amount", ledger[0].Amount, dec("1200"))

	// A later dip in the same week does not un-mark it.
	ledger = RecordWeek(ledger, 1, dec("10"), req, t0.Add(Day))
	if len(ledger) != 1 || !ledger[0].Completed {
		t.Fatalf("after dip = %+v, want week 1 still completed", ledger)
	}

	ledger = RecordWeek(ledger, 2, dec("10"), req, t0.Add(7*Day))
	if len(ledger) != 2 || ledger[1].Completed {
		t.Fatalf("week 2 = %+v, want an incomplete entry", ledger)
	}

	// A later top-up in the same week completes it.
	ledger = RecordWeek(ledger, 2, dec("1000"), req, t0.Add(8*Day))
	if !ledger[1].Completed {
		t.Error("week 2 should be completed once the requirement is met")
	}
	if !ledger[1].Date.Equal(t0.Add(7 * Day)) {
		t.Errorf("week 2 date = %s, want the first check of the week", ledger[1].Date)
	}
}

func TestRecordWeek_DoesNotMutateInput(t *testing.T) {
	in := []domain.WeeklyDeposit{{Week: 1, Amount: dec("5"), Date: t0, Completed: false}}
	out := RecordWeek(in, 1, dec("5000"), dec("1000"), t0)

	if in[0].Completed {
		t.Error("input ledger was modified")
	}
	if !out[0].Completed {
		t.Error("output ledger should be completed")
	}
}
