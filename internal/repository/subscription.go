package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradebot/backoffice/internal/domain"
)

const subscriptionColumns = `user_id, plan_id, start_date, last_balance_check, fake_profits,
	bot_active, weekly_deposits, updated_at`

// SubscriptionRepository stores the per-user bot state. Every write goes
// through Update, which holds a row lock for the duration of the mutation.
type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		sub      domain.Subscription
		deposits []byte
	)
	err := row.Scan(&sub.UserID, &sub.PlanID, &sub.StartDate, &sub.LastBalanceCheck, &sub.FakeProfits,
		&sub.BotActive, &deposits, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(deposits, &sub.WeeklyDeposits); err != nil {
		return nil, fmt.Errorf("subscription %s: bad weekly deposits: %w", sub.UserID, err)
	}
	return &sub, nil
}

// FindByUserID returns the subscription row of a user, or nil if the user has
// never had one.
func (r *SubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return sub, nil
}

// ListSubscribedUserIDs returns the users that currently hold a plan.
func (r *SubscriptionRepository) ListSubscribedUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM subscriptions WHERE plan_id IS NOT NULL ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Update loads the user's subscription under SELECT ... FOR UPDATE, applies
// mutate and writes the result back in the same transaction. A row is created
// for users that have none. If mutate fails nothing is written and its error
// is returned unchanged.
func (r *SubscriptionRepository) Update(ctx context.Context, userID string, mutate func(*domain.Subscription) error) (*domain.Subscription, error) {
	return r.update(ctx, userID, func(_ pgx.Tx, sub *domain.Subscription) error {
		return mutate(sub)
	})
}

// UpdateWithWithdrawal is Update for a mutation that also records a
// withdrawal. The withdrawal returned by build is inserted in the same
// transaction, so it commits or rolls back together with the subscription.
// A nil withdrawal writes only the subscription.
func (r *SubscriptionRepository) UpdateWithWithdrawal(ctx context.Context, userID string, build func(*domain.Subscription) (*domain.Withdrawal, error)) (*domain.Subscription, error) {
	return r.update(ctx, userID, func(tx pgx.Tx, sub *domain.Subscription) error {
		w, err := build(sub)
		if err != nil || w == nil {
			return err
		}
		return insertWithdrawal(ctx, tx, w)
	})
}

func (r *SubscriptionRepository) update(ctx context.Context, userID string, mutate func(pgx.Tx, *domain.Subscription) error) (*domain.Subscription, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO subscriptions (user_id) VALUES ($1) ON CONFLICT DO NOTHING`, userID); err != nil {
		return nil, fmt.Errorf("failed to ensure subscription row: %w", err)
	}

	sub, err := scanSubscription(tx.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock subscription: %w", err)
	}

	if err := mutate(tx, sub); err != nil {
		return nil, err
	}
	if err := sub.CheckConsistency(); err != nil {
		return nil, err
	}

	deposits, err := json.Marshal(sub.WeeklyDeposits)
	if err != nil {
		return nil, fmt.Errorf("failed to encode weekly deposits: %w", err)
	}
	if sub.WeeklyDeposits == nil {
		deposits = []byte("[]")
	}

	err = tx.QueryRow(ctx, `
		UPDATE subscriptions
		SET plan_id = $2, start_date = $3, last_balance_check = $4, fake_profits = $5,
		    bot_active = $6, weekly_deposits = $7, updated_at = NOW()
		WHERE user_id = $1
		RETURNING updated_at
	`, sub.UserID, sub.PlanID, sub.StartDate, sub.LastBalanceCheck, sub.FakeProfits,
		sub.BotActive, deposits).Scan(&sub.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit subscription: %w", err)
	}
	return sub, nil
}

// Stats aggregates subscription counters for the admin dashboard.
func (r *SubscriptionRepository) Stats(ctx context.Context) (domain.SubscriptionStats, error) {
	var (
		s     domain.SubscriptionStats
		total decimal.NullDecimal
	)
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE plan_id IS NOT NULL),
		       COUNT(*) FILTER (WHERE plan_id IS NOT NULL AND bot_active),
		       SUM(fake_profits)
		FROM subscriptions
	`).Scan(&s.Subscribed, &s.ActiveBots, &total)
	if err != nil {
		return s, fmt.Errorf("failed to aggregate subscriptions: %w", err)
	}
	s.TotalFakeProfits = total.Decimal
	return s, nil
}
