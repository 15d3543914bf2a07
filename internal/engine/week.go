// Package engine holds the pure rules of the trading-bot simulation: tenure
// weeks, weekly compliance, profit accrual, withdrawal penalties and the
// subscription lifecycle. Nothing here reads the clock or does I/O; callers
// pass "now" explicitly.
package engine

import (
	"time"

	"github.com/tradebot/backoffice/internal/domain"
)

// Day is the accrual granularity.
const Day = 24 * time.Hour

// WholeDays returns the number of complete days from -> to, or 0 when to is
// not after from.
func WholeDays(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / Day)
}

// CurrentWeek returns the 1-based tenure week that now falls in. Day 0 through
// day 6 are week 1, day 7 starts week 2. It returns 0 for a nil start; callers
// must guard against that.
func CurrentWeek(start *time.Time, now time.Time) domain.WeekNumber {
	if start == nil {
		return 0
	}
	return domain.WeekNumber(WholeDays(*start, now)/7 + 1)
}

// CompletedWeeks returns how many full weeks have elapsed since start.
func CompletedWeeks(start time.Time, now time.Time) int {
	return WholeDays(start, now) / 7
}
