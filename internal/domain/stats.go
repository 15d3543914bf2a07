package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdminStats is the admin dashboard summary.
type AdminStats struct {
	TotalUsers         int             `json:"totalUsers"`
	SubscribedUsers    int             `json:"subscribedUsers"`
	ActiveBots         int             `json:"activeBots"`
	TotalFakeProfits   decimal.Decimal `json:"totalFakeProfits"`
	PendingWithdrawals int             `json:"pendingWithdrawals"`
	PendingAmount      decimal.Decimal `json:"pendingAmount"`
	LastAccrual        *AccrualReport  `json:"lastAccrual,omitempty"`
}

// SubscriptionStats is the subscription part of AdminStats.
type SubscriptionStats struct {
	Subscribed       int
	ActiveBots       int
	TotalFakeProfits decimal.Decimal
}

// AccrualReport summarises one accrual batch.
type AccrualReport struct {
	Trigger    string          `json:"trigger"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Processed  int             `json:"processed"`
	Advanced   int             `json:"advanced"`
	Skipped    int             `json:"skipped"`
	Failed     int             `json:"failed"`
	Degraded   int             `json:"degraded"`
	Accrued    decimal.Decimal `json:"accrued"`
	ActiveBots int             `json:"activeBots"`
	Errors     []string        `json:"errors,omitempty"`
}
