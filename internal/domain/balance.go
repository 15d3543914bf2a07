package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSnapshot is a balance observed for a wallet at a point in time.
type BalanceSnapshot struct {
	Address   string          `json:"address"`
	Amount    decimal.Decimal `json:"amount"`
	FetchedAt time.Time       `json:"fetchedAt"`
}
