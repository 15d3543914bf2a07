package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// WeekNumber is a 1-based tenure week. Week 0 is never assigned.
type WeekNumber int

// NewWeekNumber validates n as a tenure week.
func NewWeekNumber(n int) (WeekNumber, error) {
	if n < 1 {
		return 0, ErrInconsistency(fmt.Sprintf("week number %d is not a valid tenure week", n))
	}
	return WeekNumber(n), nil
}

// Subscription is the per-user trading bot state. A user without a plan still
// has a row, with PlanID and StartDate both nil.
type Subscription struct {
	UserID           string          `json:"userId"`
	PlanID           *string         `json:"subscriptionPlan"`
	StartDate        *time.Time      `json:"subscriptionStartDate"`
	LastBalanceCheck *time.Time      `json:"lastBalanceCheck"`
	FakeProfits      decimal.Decimal `json:"fakeProfits"`
	BotActive        bool            `json:"botActive"`
	WeeklyDeposits   []WeeklyDeposit `json:"weeklyDeposits"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// WeeklyDeposit is one row of the weekly compliance ledger.
type WeeklyDeposit struct {
	Week      WeekNumber      `json:"week"`
	Amount    decimal.Decimal `json:"amount"`
	Date      time.Time       `json:"date"`
	Completed bool            `json:"completed"`
}

// Subscribed reports whether the user currently holds a plan.
func (s *Subscription) Subscribed() bool {
	return s.PlanID != nil
}

// CheckConsistency verifies the plan/start-date pairing and the profit floor.
func (s *Subscription) CheckConsistency() error {
	if (s.PlanID == nil) != (s.StartDate == nil) {
		return ErrInconsistency(fmt.Sprintf("subscription for user %s has plan and start date out of sync", s.UserID))
	}
	if s.FakeProfits.IsNegative() {
		return ErrInconsistency(fmt.Sprintf("subscription for user %s has negative profits", s.UserID))
	}
	return nil
}

// Clone returns a deep copy, used to keep a pristine version around while a
// mutator works on the original.
func (s *Subscription) Clone() *Subscription {
	c := *s
	if s.PlanID != nil {
		id := *s.PlanID
		c.PlanID = &id
	}
	if s.StartDate != nil {
		t := *s.StartDate
		c.StartDate = &t
	}
	if s.LastBalanceCheck != nil {
		t := *s.LastBalanceCheck
		c.LastBalanceCheck = &t
	}
	c.WeeklyDeposits = append([]WeeklyDeposit(nil), s.WeeklyDeposits...)
	return &c
}

// SubscribeRequest is the input for subscribing to or switching a plan.
type SubscribeRequest struct {
	PlanID string `json:"planId" validate:"required,max=64"`
}

// BotStatus is the live activity view computed from the current balance,
// independent of what the last accrual recorded.
type BotStatus struct {
	Week        WeekNumber      `json:"week"`
	Requirement decimal.Decimal `json:"requirement"`
	Active      bool            `json:"active"`
	DailyRate   decimal.Decimal `json:"dailyRate"`
	Shortfall   decimal.Decimal `json:"shortfall"`
}

// Dashboard is the user-facing summary of the bot.
type Dashboard struct {
	Subscription    *Subscription   `json:"subscription"`
	Plan            *Plan           `json:"plan,omitempty"`
	WalletAddress   string          `json:"walletAddress,omitempty"`
	Balance         decimal.Decimal `json:"balance"`
	BalanceAt       time.Time       `json:"balanceAt"`
	Degraded        bool            `json:"degraded"`
	Status          *BotStatus      `json:"status,omitempty"`
	AvailableProfit decimal.Decimal `json:"availableProfit"`
	Withdrawal      *Eligibility    `json:"withdrawal,omitempty"`
}

// Eligibility is the outcome of a withdrawal eligibility check.
type Eligibility struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}
