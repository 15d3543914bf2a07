package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/internal/oracle"
	"github.com/tradebot/backoffice/internal/repository"
)

// UserStore is implemented by repository.UserRepository.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Exists(ctx context.Context, email string) (bool, error)
	ListAll(ctx context.Context) ([]*domain.User, error)
	Count(ctx context.Context) (int, error)
	UpdateWallet(ctx context.Context, id, wallet string, now time.Time) error
	Delete(ctx context.Context, id string) error
}

// PlanStore is implemented by repository.PlanRepository.
type PlanStore interface {
	Create(ctx context.Context, p *domain.Plan) error
	FindByID(ctx context.Context, id string) (*domain.Plan, error)
	List(ctx context.Context, includeArchived bool) ([]*domain.Plan, error)
	Revise(ctx context.Context, oldID string, next *domain.Plan) error
	Archive(ctx context.Context, id string) error
	SeedDefaults(ctx context.Context, plans []domain.Plan) (int, error)
}

// SubscriptionStore is implemented by repository.SubscriptionRepository.
type SubscriptionStore interface {
	FindByUserID(ctx context.Context, userID string) (*domain.Subscription, error)
	ListSubscribedUserIDs(ctx context.Context) ([]string, error)
	Update(ctx context.Context, userID string, mutate func(*domain.Subscription) error) (*domain.Subscription, error)
	UpdateWithWithdrawal(ctx context.Context, userID string, build func(*domain.Subscription) (*domain.Withdrawal, error)) (*domain.Subscription, error)
	Stats(ctx context.Context) (domain.SubscriptionStats, error)
}

// WithdrawalStore is implemented by repository.WithdrawalRepository.
type WithdrawalStore interface {
	Create(ctx context.Context, w *domain.Withdrawal) error
	FindByID(ctx context.Context, id string) (*domain.Withdrawal, error)
	List(ctx context.Context, userID, status string) ([]*domain.Withdrawal, error)
	Committed(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error)
	Decide(ctx context.Context, id, status, adminID, note string, at time.Time) (*domain.Withdrawal, error)
	PendingStats(ctx context.Context) (int, decimal.Decimal, error)
}

// KeyValueStore is implemented by repository.CacheRepository.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (*repository.CacheEntry, error)
	Set(ctx context.Context, key string, data interface{}) error
}

// BalanceOracle is implemented by oracle.Oracle.
type BalanceOracle interface {
	Balance(ctx context.Context, address string) (oracle.Reading, error)
	LiveBalance(ctx context.Context, address string) (decimal.Decimal, error)
}
