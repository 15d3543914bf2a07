package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Withdrawal statuses.
const (
	WithdrawalPending  = "pending"
	WithdrawalApproved = "approved"
	WithdrawalRejected = "rejected"
)

// WithdrawalQuote is the penalty-adjusted payout for a requested amount.
type WithdrawalQuote struct {
	RequestedAmount   decimal.Decimal `json:"requestedAmount"`
	Amount            decimal.Decimal `json:"amount"`
	PenaltyAmount     decimal.Decimal `json:"penaltyAmount"`
	PenaltyPercentage decimal.Decimal `json:"penaltyPercentage"`
	TenureWeek        WeekNumber      `json:"tenureWeek"`
}

// Withdrawal is a recorded withdrawal request awaiting or past admin review.
type Withdrawal struct {
	ID                string          `json:"id"`
	UserID            string          `json:"userId"`
	PlanID            string          `json:"planId"`
	RequestedAmount   decimal.Decimal `json:"requestedAmount"`
	Amount            decimal.Decimal `json:"amount"`
	PenaltyAmount     decimal.Decimal `json:"penaltyAmount"`
	PenaltyPercentage decimal.Decimal `json:"penaltyPercentage"`
	TenureWeek        WeekNumber      `json:"tenureWeek"`
	Status            string          `json:"status"`
	Note              string          `json:"note,omitempty"`
	DecidedBy         *string         `json:"decidedBy,omitempty"`
	DecidedAt         *time.Time      `json:"decidedAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// WithdrawalRequest is the validated input for quoting or requesting a withdrawal.
type WithdrawalRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// WithdrawalDecision is the admin input for approving or rejecting a withdrawal.
type WithdrawalDecision struct {
	Note string `json:"note" validate:"max=500"`
}

// NewWithdrawalID generates a new UUID for a withdrawal.
func NewWithdrawalID() string {
	return uuid.New().String()
}
